package wallet

import (
	"context"
	"errors"
	"time"

	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreditKey is the idempotency key of the credit side of a transfer.
func CreditKey(key string) string {
	return key + ":credit"
}

type TransferRequest struct {
	IdempotencyKey string
	Type           string
	FromOwnerID    string
	ToOwnerID      string
	ToOwnerType    OwnerType
	AmountPaise    int64
	Metadata       Metadata
}

type TransferResult struct {
	Debit  *Result
	Credit *Result
}

// Transfer debits the payer under key and credits the payee under
// CreditKey(key). The sides are independent: when the credit fails the debit
// stays applied and retrying the transfer only completes the missing side.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	debit, err := s.Debit(ctx, Request{
		IdempotencyKey: req.IdempotencyKey,
		Type:           req.Type,
		OwnerID:        req.FromOwnerID,
		AmountPaise:    req.AmountPaise,
		Counterparty:   req.ToOwnerID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	credit, err := s.Credit(ctx, Request{
		IdempotencyKey: CreditKey(req.IdempotencyKey),
		Type:           req.Type,
		OwnerID:        req.ToOwnerID,
		OwnerType:      req.ToOwnerType,
		AmountPaise:    req.AmountPaise,
		Counterparty:   req.FromOwnerID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("transfer credit side failed after debit",
			zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
		return &TransferResult{Debit: debit}, err
	}

	return &TransferResult{Debit: debit, Credit: credit}, nil
}

type ManualRequest struct {
	IdempotencyKey string
	Type           string
	FromParty      string
	ToParty        string
	AmountPaise    int64
	Metadata       Metadata
}

// RecordManual records an off-platform money movement. No wallet is touched;
// the entry exists so the movement stays auditable.
func (s *Service) RecordManual(ctx context.Context, req ManualRequest) (*Result, error) {
	if err := validate(req.IdempotencyKey, req.Type, req.FromParty, req.AmountPaise, req.Metadata); err != nil {
		return nil, err
	}

	if res, err := s.replay(ctx, req.IdempotencyKey, req.Type, DirectionDebit, req.FromParty, req.AmountPaise); err != nil || res != nil {
		observe(ModeManual, res, err)
		return res, err
	}

	t := &Transaction{
		ID:             s.node.Generate().Int64(),
		IdempotencyKey: req.IdempotencyKey,
		Type:           req.Type,
		Direction:      DirectionDebit,
		Status:         StatusCompleted,
		Mode:           ModeManual,
		AmountPaise:    req.AmountPaise,
		Currency:       s.cfg.Currency,
		OwnerID:        req.FromParty,
		FromParty:      req.FromParty,
		ToParty:        req.ToParty,
		Metadata:       datatypes.NewJSONType(req.Metadata),
		CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
	}
	t.Hash = t.GenerateHash()

	if err := s.txns.Create(ctx, t); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			res, err := s.replay(ctx, req.IdempotencyKey, req.Type, DirectionDebit, req.FromParty, req.AmountPaise)
			observe(ModeManual, res, err)
			return res, err
		}
		logger.FromContext(ctx).Error("failed to record manual entry", zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
		return nil, errutil.Internal("failed to record manual entry", err)
	}

	observe(ModeManual, &Result{Transaction: t}, nil)
	return &Result{Transaction: t}, nil
}

// ShouldFallBackToManual reports whether a failed debit may be recorded as an
// unfunded manual entry instead.
func ShouldFallBackToManual(err error) bool {
	switch errutil.ReasonOf(err) {
	case ReasonInsufficientFunds, ReasonWalletNotFound:
		return true
	}
	return false
}
