package repository

import (
	"context"
	"testing"
	"time"

	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	Owner     string
	Qty       int
	CreatedAt time.Time
}

func TestStore_CRUD(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &widget{ID: 1, Owner: "a", Qty: 1}))
	require.NoError(t, repo.BatchCreate(ctx, []*widget{{ID: 2, Owner: "a", Qty: 5}, {ID: 3, Owner: "b", Qty: 9}}))

	got, err := repo.FindOne(ctx, &widget{ID: 2})
	require.NoError(t, err)
	require.Equal(t, 5, got.Qty)

	missing, err := repo.FindOne(ctx, &widget{ID: 99})
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Update(ctx, 2, map[string]any{"qty": 7}))
	got, err = repo.FindOne(ctx, &widget{ID: 2})
	require.NoError(t, err)
	require.Equal(t, 7, got.Qty)

	rows, err := repo.Find(ctx, &widget{Owner: "a"}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "qty",
		OrderBy: "desc",
		Allow:   map[string]bool{"qty": true},
	}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].ID)

	n, err := repo.Count(ctx, nil, option.ApplyOperator(option.Condition{Field: "qty", Operator: option.GT, Value: 5}))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
