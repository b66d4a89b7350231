package audit

import (
	"context"
	"time"

	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Recorder is what other services depend on.
type Recorder interface {
	Record(ctx context.Context, r Record)
}

type Service struct {
	node    *snowflake.Node
	entries repository.Repository[Entry]
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	Repo repository.Repository[Entry]
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		entries: p.Repo,
		now:     time.Now,
	}
}

// Record inserts one entry. Failures are logged and swallowed so the
// documented business operation is never affected.
func (s *Service) Record(ctx context.Context, r Record) {
	entry := &Entry{
		ID:          s.node.Generate().Int64(),
		Action:      r.Action,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		ActorUserID: r.Actor.UserID,
		ActorRoles:  r.Actor.Roles,
		Metadata:    r.Metadata,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("failed to write audit entry",
			zap.String("action", r.Action),
			zap.String("entity_type", r.EntityType),
			zap.String("entity_id", r.EntityID),
			zap.Error(err),
		)
	}
}

// List returns entries for one entity, newest first.
func (s *Service) List(ctx context.Context, entityType, entityID string, p pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	p = p.Normalize()
	cursor, err := option.ApplyCursor(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.entries.Find(ctx, &Entry{EntityType: entityType, EntityID: entityID}, cursor)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list audit entries", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list audit entries", err)
	}

	return pagination.BuildCursorPageInfo(rows, p.Limit, func(e *Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
}
