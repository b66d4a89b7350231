package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/repository"
	"cashback-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	db := testutil.NewTestDB(t, &Entry{})
	return NewService(ServiceParams{
		Repo: repository.ProvideStore[Entry](db),
		Node: testutil.NewNode(t),
	})
}

func TestRecord_Persists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Record(ctx, Record{
		Action:     ActionOrderWorkflowTransition,
		EntityType: EntityOrder,
		EntityID:   "42",
		Actor:      Actor{UserID: "ops-1", Roles: []string{"ops"}},
		Metadata:   map[string]any{"from": "CREATED", "to": "REDIRECTED"},
	})

	rows, info, err := svc.List(ctx, EntityOrder, "42", pagination.Pagination{})
	require.NoError(t, err)
	require.False(t, info.HasMore)
	require.Len(t, rows, 1)
	require.Equal(t, "ops-1", rows[0].ActorUserID)
	require.Equal(t, []string{"ops"}, []string(rows[0].ActorRoles))
	require.Equal(t, "REDIRECTED", rows[0].Metadata["to"])
}

type failingRepo struct {
	repository.Repository[Entry]
}

func (failingRepo) Create(ctx context.Context, resource *Entry) error {
	return fmt.Errorf("disk full")
}

func TestRecord_FailureIsSwallowed(t *testing.T) {
	svc := NewService(ServiceParams{Repo: failingRepo{}, Node: testutil.NewNode(t)})

	require.NotPanics(t, func() {
		svc.Record(context.Background(), Record{Action: ActionOrderFrozen, EntityType: EntityOrder, EntityID: "1"})
	})
}

func TestList_NewestFirstWithCursor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		svc.Record(ctx, Record{Action: fmt.Sprintf("A%d", i), EntityType: EntityWallet, EntityID: "brand-1"})
	}
	svc.Record(ctx, Record{Action: "OTHER", EntityType: EntityWallet, EntityID: "brand-2"})

	page, info, err := svc.List(ctx, EntityWallet, "brand-1", pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.True(t, info.HasMore)
	require.Equal(t, "A4", page[0].Action)
	require.Equal(t, "A2", page[2].Action)

	page, info, err = svc.List(ctx, EntityWallet, "brand-1", pagination.Pagination{Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.False(t, info.HasMore)
	require.Equal(t, "A1", page[0].Action)

	_, _, err = svc.List(ctx, EntityWallet, "brand-1", pagination.Pagination{Cursor: "!!"})
	require.Error(t, err)
}
