package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/repository"
	"cashback-controlplane/pkg/sequence"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"
	"cashback-controlplane/services/realtime"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	orders   repository.Repository[Order]
	items    repository.Repository[Item]
	events   repository.Repository[Event]
	hub      realtime.Hub
	audit    audit.Recorder
	notifier Notifier
	codes    sequence.Generator
	now      func() time.Time

	// beforeUpdate runs after the order is read and checked and before the
	// conditional update. Tests use it to change the row underneath.
	beforeUpdate func(tx *gorm.DB, cur *Order)
	// beforeFreeze runs between selecting and freezing the matching rows.
	beforeFreeze func(tx *gorm.DB, ids []int64)
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Hub      realtime.Hub
	Audit    audit.Recorder
	Notifier Notifier           `optional:"true"`
	Codes    sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		orders:   repository.ProvideStore[Order](p.DB),
		items:    repository.ProvideStore[Item](p.DB),
		events:   repository.ProvideStore[Event](p.DB),
		hub:      p.Hub,
		audit:    p.Audit,
		notifier: p.Notifier,
		codes:    p.Codes,
		now:      time.Now,
	}
}

type ItemParams struct {
	CampaignID      string `json:"campaign_id"`
	DealType        string `json:"deal_type"`
	Title           string `json:"title"`
	PricePaise      int64  `json:"price_paise"`
	CommissionPaise int64  `json:"commission_paise"`
}

type CreateParams struct {
	ShopperID    string
	BrandID      string
	MediatorCode string
	AgencyCode   string
	DealID       string
	Items        []ItemParams
	Actor        audit.Actor
}

// Create registers a shopper's claim on a deal. A shopper holds at most one
// live order per deal.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Order, error) {
	if strings.TrimSpace(p.ShopperID) == "" || strings.TrimSpace(p.DealID) == "" {
		return nil, invalid("shopper and deal are required")
	}
	if len(p.Items) == 0 {
		return nil, invalid("an order needs at least one item")
	}
	for _, it := range p.Items {
		if it.PricePaise < 0 || it.CommissionPaise < 0 {
			return nil, invalid("item amounts must not be negative")
		}
	}

	claim := claimKey(p.ShopperID, p.DealID)
	existing, err := s.orders.FindOne(ctx, &Order{ActiveClaimKey: claim})
	if err != nil {
		return nil, s.internal(ctx, "failed to check active orders", err)
	}
	if existing != nil {
		return nil, ErrDuplicateActive()
	}

	id := s.node.Generate()
	now := s.now().UTC()
	o := &Order{
		ID:             id.Int64(),
		Code:           s.nextCode(ctx, id),
		ShopperID:      p.ShopperID,
		BrandID:        p.BrandID,
		MediatorCode:   p.MediatorCode,
		AgencyCode:     p.AgencyCode,
		DealID:         p.DealID,
		WorkflowStatus: StatusCreated,
		ActiveClaimKey: claim,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	items := make([]*Item, 0, len(p.Items))
	for i, it := range p.Items {
		items = append(items, &Item{
			ID:              s.node.Generate().Int64(),
			OrderID:         o.ID,
			Position:        i,
			CampaignID:      it.CampaignID,
			DealType:        it.DealType,
			Title:           it.Title,
			PricePaise:      it.PricePaise,
			CommissionPaise: it.CommissionPaise,
		})
	}
	ev := s.newEvent(o.ID, EventOrderCreated, p.Actor, EventMetadata{
		Transition: &TransitionMeta{To: StatusCreated},
	}, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.WithTrx(tx).Create(ctx, o); err != nil {
			return err
		}
		if err := s.items.WithTrx(tx).BatchCreate(ctx, items); err != nil {
			return err
		}
		return s.events.WithTrx(tx).Create(ctx, ev)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateActive()
		}
		return nil, s.internal(ctx, "failed to create order", err)
	}

	o.Items = items
	o.Events = []*Event{ev}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderCreated,
		EntityType: audit.EntityOrder,
		EntityID:   o.idString(),
		Actor:      p.Actor,
		Metadata:   map[string]any{"code": o.Code, "deal_id": o.DealID},
	})
	s.publish(ctx, realtime.EventOrderCreated, o, "")

	return o, nil
}

func (s *Service) nextCode(ctx context.Context, id snowflake.ID) string {
	if s.codes != nil {
		code, err := s.codes.NextOrderCode(ctx)
		if err == nil {
			return code
		}
		logger.FromContext(ctx).Warn("order code sequence unavailable, using id based code", zap.Error(err))
	}
	return "ORD-" + strings.ToUpper(id.Base36())
}

type TransitionRequest struct {
	OrderID int64
	From    Status
	To      Status
	Actor   audit.Actor
	Details Details
}

// Transition moves an order from one state to the next. The update is
// conditioned on the observed state, so of two concurrent callers with the
// same from exactly one wins.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if !CanTransition(req.From, req.To) {
		return nil, ErrIllegalTransition(req.From, req.To)
	}
	if req.OrderID <= 0 {
		return nil, ErrNotFound(req.OrderID)
	}

	now := s.now().UTC()
	var o *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTrx(tx)

		cur, err := orders.FindOne(ctx, &Order{ID: req.OrderID})
		if err != nil {
			return err
		}
		if err := checkTransition(cur, req.OrderID, req.From); err != nil {
			return err
		}
		if s.beforeUpdate != nil {
			s.beforeUpdate(tx, cur)
		}

		updates := map[string]any{
			"workflow_status": string(req.To),
			"updated_at":      now,
		}
		if req.To.IsTerminal() {
			updates["active_claim_key"] = nil
		}
		res := tx.Model(&Order{}).
			Where("id = ? AND workflow_status = ? AND frozen = ?", req.OrderID, string(req.From), false).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			cur, err := orders.FindOne(ctx, &Order{ID: req.OrderID})
			if err != nil {
				return err
			}
			if err := checkTransition(cur, req.OrderID, req.From); err != nil {
				return err
			}
			return ErrStateMismatch(req.From, cur.WorkflowStatus)
		}

		ev := s.newEvent(req.OrderID, EventWorkflowTransition, req.Actor, EventMetadata{
			Transition: &TransitionMeta{From: req.From, To: req.To, Details: req.Details},
		}, now)
		if err := s.events.WithTrx(tx).Create(ctx, ev); err != nil {
			return err
		}

		cur.WorkflowStatus = req.To
		cur.UpdatedAt = now
		if req.To.IsTerminal() {
			cur.ActiveClaimKey = nil
		}
		o = cur
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "failed to transition order", err)
	}

	transitionsTotal.WithLabelValues(string(req.From), string(req.To)).Inc()

	meta := map[string]any{"from": string(req.From), "to": string(req.To)}
	if req.Details.Note != "" {
		meta["note"] = req.Details.Note
	}
	if len(req.Details.TransactionIDs) > 0 {
		meta["transaction_ids"] = req.Details.TransactionIDs
	}
	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderWorkflowTransition,
		EntityType: audit.EntityOrder,
		EntityID:   o.idString(),
		Actor:      req.Actor,
		Metadata:   meta,
	})
	s.publish(ctx, realtime.EventOrderUpdated, o, req.From)

	if s.notifier != nil {
		if err := s.loadItems(ctx, o); err != nil {
			logger.FromContext(ctx).Warn("failed to load items for notification", zap.Int64("order_id", o.ID), zap.Error(err))
		}
		s.notifier.OrderStatusChanged(ctx, StatusChange{
			OrderID:       o.ID,
			Code:          o.Code,
			ShopperID:     o.ShopperID,
			From:          req.From,
			To:            req.To,
			CashbackPaise: o.CashbackPaise(),
		})
	}

	return o, nil
}

func checkTransition(cur *Order, id int64, from Status) error {
	switch {
	case cur == nil:
		return ErrNotFound(id)
	case cur.Frozen:
		return ErrFrozen(id)
	case cur.WorkflowStatus != from:
		return ErrStateMismatch(from, cur.WorkflowStatus)
	}
	return nil
}

// Reactivate lifts a freeze. Terminal, missing and unfrozen orders are all
// reported as not found. The workflow status is left untouched.
func (s *Service) Reactivate(ctx context.Context, orderID int64, actor audit.Actor, reason string) (*Order, error) {
	now := s.now().UTC()
	var o *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Order{}).
			Where("id = ? AND frozen = ? AND workflow_status NOT IN ?", orderID, true, terminalValues()).
			Updates(map[string]any{
				"frozen":        false,
				"frozen_at":     nil,
				"frozen_reason": "",
				"frozen_by":     "",
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound(orderID)
		}

		ev := s.newEvent(orderID, EventWorkflowReactivated, actor, EventMetadata{Note: reason}, now)
		if err := s.events.WithTrx(tx).Create(ctx, ev); err != nil {
			return err
		}

		cur, err := s.orders.WithTrx(tx).FindOne(ctx, &Order{ID: orderID})
		if err != nil {
			return err
		}
		o = cur
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "failed to reactivate order", err)
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderReactivated,
		EntityType: audit.EntityOrder,
		EntityID:   o.idString(),
		Actor:      actor,
		Metadata:   map[string]any{"reason": reason},
	})
	s.publish(ctx, realtime.EventOrderUpdated, o, o.WorkflowStatus)

	return o, nil
}

// RecordVerification stamps one verification step. A step is stamped once.
func (s *Service) RecordVerification(ctx context.Context, orderID int64, step Step, actor audit.Actor) (*Order, error) {
	atCol, byCol, ok := step.columns()
	if !ok {
		return nil, invalid("unknown verification step")
	}
	if orderID <= 0 {
		return nil, ErrNotFound(orderID)
	}

	now := s.now().UTC()
	var o *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTrx(tx)

		res := tx.Model(&Order{}).
			Where("id = ? AND frozen = ? AND "+atCol+" IS NULL", orderID, false).
			Updates(map[string]any{
				atCol:        now,
				byCol:        actor.UserID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			cur, err := orders.FindOne(ctx, &Order{ID: orderID})
			if err != nil {
				return err
			}
			switch {
			case cur == nil:
				return ErrNotFound(orderID)
			case cur.Frozen:
				return ErrFrozen(orderID)
			}
			return ErrAlreadyVerified(step)
		}

		ev := s.newEvent(orderID, EventVerificationRecorded, actor, EventMetadata{
			Verification: &VerificationMeta{Step: step},
		}, now)
		if err := s.events.WithTrx(tx).Create(ctx, ev); err != nil {
			return err
		}

		cur, err := orders.FindOne(ctx, &Order{ID: orderID})
		if err != nil {
			return err
		}
		o = cur
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "failed to record verification", err)
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderVerified,
		EntityType: audit.EntityOrder,
		EntityID:   o.idString(),
		Actor:      actor,
		Metadata:   map[string]any{"step": string(step)},
	})
	s.publish(ctx, realtime.EventOrderUpdated, o, o.WorkflowStatus)

	return o, nil
}

// SoftDelete hides the order and releases its deal claim.
func (s *Service) SoftDelete(ctx context.Context, orderID int64, actor audit.Actor) error {
	if orderID <= 0 {
		return ErrNotFound(orderID)
	}
	now := s.now().UTC()
	var o *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.orders.WithTrx(tx).FindOne(ctx, &Order{ID: orderID})
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound(orderID)
		}

		res := tx.Model(&Order{}).
			Where("id = ?", orderID).
			Updates(map[string]any{
				"deleted_at":       now,
				"active_claim_key": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound(orderID)
		}

		o = cur
		return s.events.WithTrx(tx).Create(ctx, s.newEvent(orderID, EventOrderDeleted, actor, EventMetadata{}, now))
	})
	if err != nil {
		return s.classify(ctx, "failed to delete order", err)
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderDeleted,
		EntityType: audit.EntityOrder,
		EntityID:   o.idString(),
		Actor:      actor,
	})
	s.publish(ctx, realtime.EventOrderUpdated, o, o.WorkflowStatus)

	return nil
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

// Get returns the order with its items and event history.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	if orderID <= 0 {
		return nil, ErrNotFound(orderID)
	}
	o, err := s.orders.FindOne(ctx, &Order{ID: orderID}, withDetails)
	if err != nil {
		return nil, s.internal(ctx, "failed to load order", err)
	}
	if o == nil {
		return nil, ErrNotFound(orderID)
	}
	return o, nil
}

// ListByShopper returns the shopper's orders, newest first.
func (s *Service) ListByShopper(ctx context.Context, shopperID string, p pagination.Pagination) ([]*Order, *pagination.PageInfo, error) {
	if strings.TrimSpace(shopperID) == "" {
		return nil, nil, invalid("shopper id is required")
	}

	p = p.Normalize()
	cursor, err := option.ApplyCursor(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.orders.Find(ctx, &Order{ShopperID: shopperID}, cursor)
	if err != nil {
		return nil, nil, s.internal(ctx, "failed to list orders", err)
	}

	return pagination.BuildCursorPageInfo(rows, p.Limit, func(o *Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
}

func (s *Service) loadItems(ctx context.Context, o *Order) error {
	if o.Items != nil {
		return nil
	}
	items, err := s.items.Find(ctx, &Item{OrderID: o.ID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "position",
		OrderBy: "asc",
		Allow:   map[string]bool{"position": true},
	}))
	if err != nil {
		return err
	}
	o.Items = items
	return nil
}

func (s *Service) newEvent(orderID int64, typ string, actor audit.Actor, meta EventMetadata, at time.Time) *Event {
	return &Event{
		ID:          s.node.Generate().Int64(),
		OrderID:     orderID,
		Type:        typ,
		ActorUserID: actor.UserID,
		Metadata:    datatypes.NewJSONType(meta),
		At:          at,
	}
}

func (s *Service) publish(ctx context.Context, typ string, o *Order, prev Status) {
	if s.hub == nil {
		return
	}
	payload := realtime.OrderPayload{
		OrderID: o.ID,
		Code:    o.Code,
		Status:  string(o.WorkflowStatus),
		Frozen:  o.Frozen,
	}
	if prev != "" && prev != o.WorkflowStatus {
		payload.PrevStatus = string(prev)
	}
	s.hub.Publish(ctx, realtime.Event{
		Type:     typ,
		At:       s.now().UTC(),
		Payload:  payload,
		Audience: audienceFor(o),
	})
}

// audienceFor scopes order events to the shopper, the parties in the
// order's chain and operations staff.
func audienceFor(o *Order) *realtime.Audience {
	a := &realtime.Audience{
		UserIDs: []string{o.ShopperID},
		Roles:   []string{identity.RoleOps, identity.RoleAdmin},
	}
	if o.MediatorCode != "" {
		a.MediatorCodes = []string{o.MediatorCode}
	}
	if o.AgencyCode != "" {
		a.AgencyCodes = []string{o.AgencyCode}
	}
	if o.BrandID != "" {
		a.BrandCodes = []string{o.BrandID}
	}
	return a
}

// classify passes domain errors through and wraps everything else.
func (s *Service) classify(ctx context.Context, msg string, err error) error {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}
	return s.internal(ctx, msg, err)
}

func (s *Service) internal(ctx context.Context, msg string, err error) error {
	logger.FromContext(ctx).Error(msg, zap.Error(err))
	return errutil.Internal(msg, err)
}

func terminalValues() []string {
	out := make([]string, 0, 2)
	for _, st := range terminalStatuses() {
		out = append(out, string(st))
	}
	return out
}
