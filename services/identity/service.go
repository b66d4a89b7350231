package identity

import (
	"context"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/middleware"
	"cashback-controlplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const ReasonUserNotFound = "USER_NOT_FOUND"

type Service struct {
	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	Repo repository.Repository[User]
}

func NewService(p ServiceParams) *Service {
	return &Service{users: p.Repo}
}

// ResolvePrincipal loads roles and codes from the store on every call.
// Suspended users resolve to a principal without roles.
func (s *Service) ResolvePrincipal(ctx context.Context, userID string) (*middleware.Principal, error) {
	u, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		logger.FromContext(ctx).Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil, errutil.WithReason(ReasonUserNotFound))
	}

	p := &middleware.Principal{
		UserID:       u.ID,
		MediatorCode: u.MediatorCode,
		AgencyCode:   u.AgencyCode,
		BrandCode:    u.BrandCode,
		ParentCode:   u.ParentCode,
	}
	if !u.Suspended {
		p.Roles = u.normalizedRoles()
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, u *User) error {
	return s.users.Create(ctx, u)
}
