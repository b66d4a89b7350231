package identity

import (
	"context"
	"testing"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/repository"
	"cashback-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestResolvePrincipal(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	svc := NewService(ServiceParams{Repo: repository.ProvideStore[User](db)})
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &User{
		ID:           "med-1",
		Roles:        Roles{"Mediator", " "},
		MediatorCode: "MED_X",
		ParentCode:   "AG_1",
	}))

	p, err := svc.ResolvePrincipal(ctx, "med-1")
	require.NoError(t, err)
	require.Equal(t, []string{"mediator"}, p.Roles)
	require.Equal(t, "MED_X", p.MediatorCode)
	require.Equal(t, "AG_1", p.ParentCode)

	// roles changed server side are picked up on the next call
	require.NoError(t, db.Model(&User{}).Where("id = ?", "med-1").Update("roles", Roles{"mediator", "ops"}).Error)
	p, err = svc.ResolvePrincipal(ctx, "med-1")
	require.NoError(t, err)
	require.Equal(t, []string{"mediator", "ops"}, p.Roles)
}

func TestResolvePrincipal_SuspendedAndMissing(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	svc := NewService(ServiceParams{Repo: repository.ProvideStore[User](db)})
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &User{ID: "ag-1", Roles: Roles{"agency"}, AgencyCode: "AG_1", Suspended: true}))

	p, err := svc.ResolvePrincipal(ctx, "ag-1")
	require.NoError(t, err)
	require.Empty(t, p.Roles)
	require.Equal(t, "AG_1", p.AgencyCode)

	_, err = svc.ResolvePrincipal(ctx, "nobody")
	require.Error(t, err)
	require.Equal(t, ReasonUserNotFound, errutil.ReasonOf(err))
}

func TestUser_MigratesAndKeepsRoles(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, db.AutoMigrate(&User{}))
	require.True(t, db.Migrator().HasColumn(&User{}, "roles"))

	require.NoError(t, db.Create(&User{ID: "ops-1", Roles: Roles{"ops", "admin"}}).Error)

	var got User
	require.NoError(t, db.First(&got, "id = ?", "ops-1").Error)
	require.Equal(t, Roles{"ops", "admin"}, got.Roles)

	// a user created without roles reads back empty
	require.NoError(t, db.Create(&User{ID: "shopper-1"}).Error)
	var bare User
	require.NoError(t, db.First(&bare, "id = ?", "shopper-1").Error)
	require.Empty(t, bare.Roles)
}
