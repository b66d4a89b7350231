package settlement

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/identity"
	"cashback-controlplane/services/order"
	"cashback-controlplane/services/realtime"
	"cashback-controlplane/services/wallet"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service drives the money-moving parts of the order workflow. Every step is
// resumable: calling it again after a partial failure picks up where the
// previous attempt stopped.
type Service struct {
	orders  *order.Service
	wallets *wallet.Service
	hub     realtime.Hub
	audit   audit.Recorder
}

type ServiceParams struct {
	fx.In
	Orders  *order.Service
	Wallets *wallet.Service
	Hub     realtime.Hub
	Audit   audit.Recorder
}

func NewService(p ServiceParams) *Service {
	return &Service{
		orders:  p.Orders,
		wallets: p.Wallets,
		hub:     p.Hub,
		audit:   p.Audit,
	}
}

// Outcome is the result of proof extraction for a purchase screenshot.
type Outcome struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// VerifyPurchase moves a submitted proof through review to APPROVED, or to
// REJECTED when the outcome is negative.
func (s *Service) VerifyPurchase(ctx context.Context, orderID int64, actor audit.Actor, outcome Outcome) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	confidence := outcome.Confidence
	details := order.Details{Confidence: &confidence}

	if o.WorkflowStatus == order.StatusProofSubmitted {
		o, err = s.orders.Transition(ctx, order.TransitionRequest{
			OrderID: orderID,
			From:    order.StatusProofSubmitted,
			To:      order.StatusUnderReview,
			Actor:   actor,
			Details: details,
		})
		if err != nil {
			return nil, err
		}
	}
	if o.WorkflowStatus != order.StatusUnderReview {
		return nil, order.ErrStateMismatch(order.StatusProofSubmitted, o.WorkflowStatus)
	}

	if !outcome.Verified {
		details.Note = "purchase proof rejected"
		return s.orders.Transition(ctx, order.TransitionRequest{
			OrderID: orderID,
			From:    order.StatusUnderReview,
			To:      order.StatusRejected,
			Actor:   actor,
			Details: details,
		})
	}

	if _, err := s.orders.RecordVerification(ctx, orderID, order.StepPurchase, actor); err != nil &&
		!errutil.HasReason(err, order.ReasonAlreadyVerified) {
		return nil, err
	}

	return s.orders.Transition(ctx, order.TransitionRequest{
		OrderID: orderID,
		From:    order.StatusUnderReview,
		To:      order.StatusApproved,
		Actor:   actor,
		Details: details,
	})
}

// SettlementKey is the idempotency key of an order's cashback transfer.
func SettlementKey(orderID int64) string {
	return "order_settlement:" + strconv.FormatInt(orderID, 10)
}

type SettleResult struct {
	Order  *order.Order        `json:"order"`
	Debit  *wallet.Transaction `json:"debit,omitempty"`
	Credit *wallet.Transaction `json:"credit,omitempty"`
}

// SettleOrder pays the order's cashback from the brand to the shopper and
// completes the order. On failure the order stays in REWARD_PENDING.
func (s *Service) SettleOrder(ctx context.Context, orderID int64, actor audit.Actor) (*SettleResult, error) {
	log := logger.FromContext(ctx).With(zap.Int64("order_id", orderID))

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BrandID == "" {
		return nil, errutil.UnprocessableEntity("order has no brand to settle against", nil,
			errutil.WithReason(order.ReasonInvalidOrder))
	}
	amount := o.CashbackPaise()

	if o.WorkflowStatus == order.StatusApproved {
		if _, err := s.orders.Transition(ctx, order.TransitionRequest{
			OrderID: orderID,
			From:    order.StatusApproved,
			To:      order.StatusRewardPending,
			Actor:   actor,
		}); err != nil {
			return nil, err
		}
	} else if o.WorkflowStatus != order.StatusRewardPending {
		return nil, order.ErrStateMismatch(order.StatusApproved, o.WorkflowStatus)
	}

	result := &SettleResult{}
	details := order.Details{}
	if amount > 0 {
		transfer, err := s.wallets.Transfer(ctx, wallet.TransferRequest{
			IdempotencyKey: SettlementKey(orderID),
			Type:           wallet.TypeOrderSettlement,
			FromOwnerID:    o.BrandID,
			ToOwnerID:      o.ShopperID,
			ToOwnerType:    wallet.OwnerShopper,
			AmountPaise:    amount,
			Metadata: wallet.Metadata{Settlement: &wallet.SettlementMeta{
				OrderID:   strconv.FormatInt(orderID, 10),
				ShopperID: o.ShopperID,
				BrandID:   o.BrandID,
			}},
		})
		if err != nil {
			log.Warn("settlement transfer failed, order left in reward pending", zap.Error(err))
			return nil, err
		}
		result.Debit = transfer.Debit.Transaction
		result.Credit = transfer.Credit.Transaction
		details.TransactionIDs = []string{
			strconv.FormatInt(result.Debit.ID, 10),
			strconv.FormatInt(result.Credit.ID, 10),
		}
		s.publishWallet(ctx, transfer.Debit, o.BrandID, &realtime.Audience{BrandCodes: []string{o.BrandID}})
		s.publishWallet(ctx, transfer.Credit, o.ShopperID, &realtime.Audience{UserIDs: []string{o.ShopperID}})
	}

	completed, err := s.orders.Transition(ctx, order.TransitionRequest{
		OrderID: orderID,
		From:    order.StatusRewardPending,
		To:      order.StatusCompleted,
		Actor:   actor,
		Details: details,
	})
	if err != nil {
		return nil, err
	}
	result.Order = completed

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionOrderSettled,
		EntityType: audit.EntityOrder,
		EntityID:   strconv.FormatInt(orderID, 10),
		Actor:      actor,
		Metadata: map[string]any{
			"amount_paise":    amount,
			"transaction_ids": details.TransactionIDs,
		},
	})

	return result, nil
}

// PayoutKey is the idempotency key of a brand to agency payout.
func PayoutKey(brandID, agencyID, ref string) string {
	return fmt.Sprintf("brand_agency_payout:%s:%s:%s", brandID, agencyID, ref)
}

// ManualKey is the idempotency key of the unfunded entry recorded when a
// payout cannot be paid from the wallet.
func ManualKey(key string) string {
	return key + ":manual"
}

type PayoutRequest struct {
	BrandID     string
	AgencyID    string
	Ref         string
	AmountPaise int64
	Actor       audit.Actor
}

type PayoutResult struct {
	Mode   string              `json:"mode"`
	Debit  *wallet.Transaction `json:"debit,omitempty"`
	Credit *wallet.Transaction `json:"credit,omitempty"`
	Manual *wallet.Transaction `json:"manual,omitempty"`
}

// PayAgency transfers money from a brand wallet to an agency wallet. When the
// brand cannot pay from its wallet the payout is recorded as a manual,
// off-platform entry instead; the wallet debit is never retried in that case.
func (s *Service) PayAgency(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if strings.TrimSpace(req.BrandID) == "" || strings.TrimSpace(req.AgencyID) == "" || strings.TrimSpace(req.Ref) == "" {
		return nil, errutil.BadRequest("brand, agency and ref are required", nil)
	}

	key := PayoutKey(req.BrandID, req.AgencyID, req.Ref)
	meta := wallet.Metadata{Payout: &wallet.PayoutMeta{BrandID: req.BrandID, AgencyID: req.AgencyID, Ref: req.Ref}}

	debited, err := s.wallets.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if debited == nil {
		manual, err := s.wallets.FindByKey(ctx, ManualKey(key))
		if err != nil {
			return nil, err
		}
		if manual != nil {
			return s.recordManual(ctx, req, key, meta)
		}
	}

	transfer, err := s.wallets.Transfer(ctx, wallet.TransferRequest{
		IdempotencyKey: key,
		Type:           wallet.TypeAgencyPayout,
		FromOwnerID:    req.BrandID,
		ToOwnerID:      req.AgencyID,
		ToOwnerType:    wallet.OwnerAgency,
		AmountPaise:    req.AmountPaise,
		Metadata:       meta,
	})
	if err != nil {
		if transfer == nil && wallet.ShouldFallBackToManual(err) {
			logger.FromContext(ctx).Info("brand cannot fund payout from wallet, recording manual entry",
				zap.String("idempotency_key", key), zap.String("reason", errutil.ReasonOf(err)))
			return s.recordManual(ctx, req, key, meta)
		}
		return nil, err
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionAgencyPayout,
		EntityType: audit.EntityAgency,
		EntityID:   req.AgencyID,
		Actor:      req.Actor,
		Metadata: map[string]any{
			"brand_id":     req.BrandID,
			"ref":          req.Ref,
			"amount_paise": req.AmountPaise,
			"replayed":     transfer.Debit.Replayed && transfer.Credit.Replayed,
		},
	})
	s.publishWallet(ctx, transfer.Debit, req.BrandID, &realtime.Audience{BrandCodes: []string{req.BrandID}})
	s.publishWallet(ctx, transfer.Credit, req.AgencyID, &realtime.Audience{AgencyCodes: []string{req.AgencyID}})

	return &PayoutResult{
		Mode:   wallet.ModeWallet,
		Debit:  transfer.Debit.Transaction,
		Credit: transfer.Credit.Transaction,
	}, nil
}

func (s *Service) recordManual(ctx context.Context, req PayoutRequest, key string, meta wallet.Metadata) (*PayoutResult, error) {
	res, err := s.wallets.RecordManual(ctx, wallet.ManualRequest{
		IdempotencyKey: ManualKey(key),
		Type:           wallet.TypeAgencyPayout,
		FromParty:      req.BrandID,
		ToParty:        req.AgencyID,
		AmountPaise:    req.AmountPaise,
		Metadata:       meta,
	})
	if err != nil {
		return nil, err
	}

	if !res.Replayed {
		s.audit.Record(ctx, audit.Record{
			Action:     audit.ActionAgencyPayoutManual,
			EntityType: audit.EntityAgency,
			EntityID:   req.AgencyID,
			Actor:      req.Actor,
			Metadata: map[string]any{
				"brand_id":       req.BrandID,
				"ref":            req.Ref,
				"amount_paise":   req.AmountPaise,
				"transaction_id": strconv.FormatInt(res.Transaction.ID, 10),
			},
		})
	}
	return &PayoutResult{Mode: wallet.ModeManual, Manual: res.Transaction}, nil
}

// SuspendMediator freezes every live order handled by the mediator.
func (s *Service) SuspendMediator(ctx context.Context, mediatorCode, reason string, actor audit.Actor) ([]int64, error) {
	return s.suspend(ctx, audit.EntityMediator, mediatorCode, order.FreezeQuery{MediatorCode: mediatorCode}, reason, actor)
}

// SuspendAgency freezes every live order under the agency, including those
// of its mediators.
func (s *Service) SuspendAgency(ctx context.Context, agencyCode, reason string, actor audit.Actor) ([]int64, error) {
	return s.suspend(ctx, audit.EntityAgency, agencyCode, order.FreezeQuery{AgencyCode: agencyCode}, reason, actor)
}

func (s *Service) suspend(ctx context.Context, entity, code string, q order.FreezeQuery, reason string, actor audit.Actor) ([]int64, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errutil.BadRequest("code is required", nil)
	}
	if reason == "" {
		reason = "upstream suspended"
	}

	ids, err := s.orders.Freeze(ctx, q, reason, actor)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Record{
		Action:     audit.ActionUpstreamSuspended,
		EntityType: entity,
		EntityID:   code,
		Actor:      actor,
		Metadata:   map[string]any{"reason": reason, "frozen_orders": len(ids)},
	})
	return ids, nil
}

func (s *Service) publishWallet(ctx context.Context, res *wallet.Result, ownerID string, audience *realtime.Audience) {
	if s.hub == nil || res == nil || res.Wallet == nil {
		return
	}
	audience.UserIDs = append(audience.UserIDs, ownerID)
	audience.Roles = append(audience.Roles, identity.RoleOps, identity.RoleAdmin)

	s.hub.Publish(ctx, realtime.Event{
		Type: realtime.EventWalletUpdated,
		Payload: realtime.WalletPayload{
			OwnerID:        ownerID,
			AvailablePaise: res.Wallet.AvailablePaise,
			PendingPaise:   res.Wallet.PendingPaise,
			LockedPaise:    res.Wallet.LockedPaise,
			TransactionID:  res.Transaction.ID,
		},
		Audience: audience,
	})
}
