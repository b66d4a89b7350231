package order

import (
	"context"
	"strconv"
	"strings"

	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"
	"cashback-controlplane/services/realtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const auditFanout = 4

// FreezeQuery selects orders to freeze. Fields combine with AND; at least one
// must be set.
type FreezeQuery struct {
	OrderIDs     []int64 `json:"order_ids"`
	ShopperID    string  `json:"shopper_id"`
	MediatorCode string  `json:"mediator_code"`
	AgencyCode   string  `json:"agency_code"`
	BrandID      string  `json:"brand_id"`
}

func (q FreezeQuery) empty() bool {
	return len(q.OrderIDs) == 0 &&
		strings.TrimSpace(q.ShopperID) == "" &&
		strings.TrimSpace(q.MediatorCode) == "" &&
		strings.TrimSpace(q.AgencyCode) == "" &&
		strings.TrimSpace(q.BrandID) == ""
}

func (q FreezeQuery) apply(db *gorm.DB) *gorm.DB {
	if len(q.OrderIDs) > 0 {
		db = db.Where("id IN ?", q.OrderIDs)
	}
	if v := strings.TrimSpace(q.ShopperID); v != "" {
		db = db.Where("shopper_id = ?", v)
	}
	if v := strings.TrimSpace(q.MediatorCode); v != "" {
		db = db.Where("LOWER(mediator_code) = LOWER(?)", v)
	}
	if v := strings.TrimSpace(q.AgencyCode); v != "" {
		db = db.Where("LOWER(agency_code) = LOWER(?)", v)
	}
	if v := strings.TrimSpace(q.BrandID); v != "" {
		db = db.Where("brand_id = ?", v)
	}
	return db
}

type frozenRow struct {
	ID        int64
	ShopperID string
}

// Freeze halts every live, unfrozen order matching q in one database
// transaction and returns the ids it froze.
func (s *Service) Freeze(ctx context.Context, q FreezeQuery, reason string, actor audit.Actor) ([]int64, error) {
	if q.empty() {
		return nil, errutil.BadRequest("freeze query must select something", nil, errutil.WithReason(ReasonEmptyFreezeQuery))
	}

	now := s.now().UTC()
	var rows []frozenRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := q.apply(tx.Model(&Order{})).
			Where("frozen = ? AND workflow_status NOT IN ?", false, terminalValues()).
			Scopes(option.LockingUpdate)
		if err := scope.Select("id", "shopper_id").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		if s.beforeFreeze != nil {
			s.beforeFreeze(tx, ids)
		}
		res := tx.Model(&Order{}).
			Where("id IN ? AND frozen = ?", ids, false).
			Updates(map[string]any{
				"frozen":        true,
				"frozen_at":     now,
				"frozen_reason": reason,
				"frozen_by":     actor.UserID,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		// another freeze took some of the selected rows first
		if res.RowsAffected != int64(len(ids)) {
			return errutil.Conflict("orders changed while freezing, retry", nil, errutil.WithReason(ReasonFreezeConflict))
		}

		events := make([]*Event, 0, len(ids))
		for _, id := range ids {
			events = append(events, s.newEvent(id, EventWorkflowFrozen, actor, EventMetadata{
				Freeze: &FreezeMeta{Reason: reason},
			}, now))
		}
		return s.events.WithTrx(tx).BatchCreate(ctx, events)
	})
	if err != nil {
		return nil, s.classify(ctx, "failed to freeze orders", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	logger.FromContext(ctx).Info("orders frozen", zap.Int("count", len(ids)), zap.String("reason", reason))
	s.afterFreeze(ctx, q, rows, reason, actor)
	return ids, nil
}

// afterFreeze writes one audit entry per order and a single realtime event.
func (s *Service) afterFreeze(ctx context.Context, q FreezeQuery, rows []frozenRow, reason string, actor audit.Actor) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auditFanout)
	for _, r := range rows {
		id := strconv.FormatInt(r.ID, 10)
		g.Go(func() error {
			s.audit.Record(gctx, audit.Record{
				Action:     audit.ActionOrderFrozen,
				EntityType: audit.EntityOrder,
				EntityID:   id,
				Actor:      actor,
				Metadata:   map[string]any{"reason": reason},
			})
			return nil
		})
	}
	_ = g.Wait()

	if s.hub == nil {
		return
	}

	orderIDs := make([]string, 0, len(rows))
	audience := &realtime.Audience{Roles: []string{identity.RoleOps, identity.RoleAdmin}}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		orderIDs = append(orderIDs, strconv.FormatInt(r.ID, 10))
		if !seen[r.ShopperID] {
			seen[r.ShopperID] = true
			audience.UserIDs = append(audience.UserIDs, r.ShopperID)
		}
	}
	if q.MediatorCode != "" {
		audience.MediatorCodes = []string{q.MediatorCode}
	}
	if q.AgencyCode != "" {
		audience.AgencyCodes = []string{q.AgencyCode}
	}
	if q.BrandID != "" {
		audience.BrandCodes = []string{q.BrandID}
	}

	s.hub.Publish(ctx, realtime.Event{
		Type:     realtime.EventOrdersFrozen,
		At:       s.now().UTC(),
		Payload:  realtime.OrdersFrozenPayload{OrderIDs: orderIDs, Reason: reason},
		Audience: audience,
	})
}
