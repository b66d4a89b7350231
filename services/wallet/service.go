package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/pkg/db/pagination"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/pkg/logger"
	"cashback-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errVersionConflict = errors.New("wallet version changed")

type Config struct {
	MaxBalancePaise int64
	Currency        string
	MaxCASRetries   int
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	wallets repository.Repository[Wallet]
	txns    repository.Repository[Transaction]
	cfg     Config
	now     func() time.Time

	// beforeCAS runs after the wallet is read and before the conditional
	// update. Tests use it to force version conflicts.
	beforeCAS func(tx *gorm.DB, w *Wallet)
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return newService(p.DB, p.Node, Config{
		MaxBalancePaise: p.Config.Wallet.MaxBalancePaise,
		Currency:        p.Config.Wallet.Currency,
		MaxCASRetries:   p.Config.Wallet.MaxCASRetries,
	})
}

func newService(db *gorm.DB, node *snowflake.Node, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.MaxCASRetries < 0 {
		cfg.MaxCASRetries = 0
	}
	return &Service{
		db:      db,
		node:    node,
		wallets: repository.ProvideStore[Wallet](db),
		txns:    repository.ProvideStore[Transaction](db),
		cfg:     cfg,
		now:     time.Now,
	}
}

type Request struct {
	IdempotencyKey string
	Type           string
	OwnerID        string
	// OwnerType is used when a credit creates the wallet lazily.
	OwnerType    OwnerType
	AmountPaise  int64
	Counterparty string
	Metadata     Metadata
}

type Result struct {
	Transaction *Transaction
	Wallet      *Wallet
	Replayed    bool
}

func (s *Service) Credit(ctx context.Context, req Request) (*Result, error) {
	return s.mutate(ctx, req, DirectionCredit)
}

func (s *Service) Debit(ctx context.Context, req Request) (*Result, error) {
	return s.mutate(ctx, req, DirectionDebit)
}

func (s *Service) mutate(ctx context.Context, req Request, direction string) (*Result, error) {
	log := logger.FromContext(ctx).With(
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("owner_id", req.OwnerID),
		zap.String("direction", direction),
	)

	if err := validate(req.IdempotencyKey, req.Type, req.OwnerID, req.AmountPaise, req.Metadata); err != nil {
		return nil, err
	}

	if res, err := s.replay(ctx, req.IdempotencyKey, req.Type, direction, req.OwnerID, req.AmountPaise); err != nil || res != nil {
		observe(direction, res, err)
		return res, err
	}

	if direction == DirectionCredit {
		if _, err := s.EnsureWallet(ctx, req.OwnerID, req.OwnerType); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt <= s.cfg.MaxCASRetries; attempt++ {
		var res *Result
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.applyOnce(ctx, tx, req, direction)
			return err
		})

		switch {
		case err == nil:
			observe(direction, res, nil)
			return res, nil
		case errors.Is(err, errVersionConflict):
			log.Debug("wallet version conflict, retrying", zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// a concurrent call with the same key committed first
			res, err := s.replay(ctx, req.IdempotencyKey, req.Type, direction, req.OwnerID, req.AmountPaise)
			if err == nil && res == nil {
				err = errutil.Internal("transaction vanished after duplicate key", nil)
			}
			observe(direction, res, err)
			return res, err
		default:
			var be errutil.BaseError
			if !errors.As(err, &be) {
				log.Error("wallet mutation failed", zap.Error(err))
				err = errutil.Internal("wallet mutation failed", err)
			}
			observe(direction, nil, err)
			return nil, err
		}
	}

	log.Warn("wallet CAS retries exhausted", zap.Int("retries", s.cfg.MaxCASRetries))
	err := ErrConcurrentUpdate()
	observe(direction, nil, err)
	return nil, err
}

func (s *Service) applyOnce(ctx context.Context, tx *gorm.DB, req Request, direction string) (*Result, error) {
	w, err := s.wallets.WithTrx(tx).FindOne(ctx, &Wallet{OwnerID: req.OwnerID})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound(req.OwnerID)
	}

	if s.beforeCAS != nil {
		s.beforeCAS(tx, w)
	}

	available := w.AvailablePaise
	from, to := req.Counterparty, req.OwnerID
	switch direction {
	case DirectionDebit:
		if available < req.AmountPaise {
			return nil, ErrInsufficientFunds()
		}
		available -= req.AmountPaise
		from, to = req.OwnerID, req.Counterparty
	case DirectionCredit:
		if s.cfg.MaxBalancePaise > 0 && w.TotalPaise()+req.AmountPaise > s.cfg.MaxBalancePaise {
			return nil, ErrLimitExceeded()
		}
		available += req.AmountPaise
	}

	prevHash, err := s.lastHash(ctx, tx, w.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	upd := tx.Model(&Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]any{
			"available_paise": available,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      now,
		})
	if upd.Error != nil {
		return nil, upd.Error
	}
	if upd.RowsAffected == 0 {
		return nil, errVersionConflict
	}

	walletID := w.ID
	t := &Transaction{
		ID:             s.node.Generate().Int64(),
		IdempotencyKey: req.IdempotencyKey,
		Type:           req.Type,
		Direction:      direction,
		Status:         StatusCompleted,
		Mode:           ModeWallet,
		AmountPaise:    req.AmountPaise,
		Currency:       w.Currency,
		WalletID:       &walletID,
		OwnerID:        req.OwnerID,
		FromParty:      from,
		ToParty:        to,
		BalanceAfter:   available,
		Metadata:       datatypes.NewJSONType(req.Metadata),
		PreviousHash:   prevHash,
		CreatedAt:      now,
	}
	t.Hash = t.GenerateHash()

	if err := s.txns.WithTrx(tx).Create(ctx, t); err != nil {
		return nil, err
	}

	w.AvailablePaise = available
	w.Version++
	w.UpdatedAt = now
	return &Result{Transaction: t, Wallet: w}, nil
}

func (s *Service) lastHash(ctx context.Context, tx *gorm.DB, walletID int64) (string, error) {
	last, err := s.txns.WithTrx(tx).FindOne(ctx, &Transaction{WalletID: &walletID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "id",
		OrderBy: "desc",
		Allow:   map[string]bool{"id": true},
	}))
	if err != nil {
		return "", err
	}
	if last == nil {
		return genesisHash, nil
	}
	return last.Hash, nil
}

// replay returns the recorded result for key, nil when the key is unused.
func (s *Service) replay(ctx context.Context, key, typ, direction, ownerID string, amount int64) (*Result, error) {
	existing, err := s.txns.FindOne(ctx, &Transaction{IdempotencyKey: key})
	if err != nil {
		return nil, errutil.Internal("failed to look up idempotency key", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !existing.sameRequest(typ, direction, ownerID, amount) {
		return nil, ErrKeyReused(key)
	}

	w, err := s.wallets.FindOne(ctx, &Wallet{OwnerID: existing.OwnerID})
	if err != nil {
		return nil, errutil.Internal("failed to load wallet", err)
	}
	return &Result{Transaction: existing, Wallet: w, Replayed: true}, nil
}

// FindByKey returns the transaction recorded under key, nil when unused.
func (s *Service) FindByKey(ctx context.Context, key string) (*Transaction, error) {
	t, err := s.txns.FindOne(ctx, &Transaction{IdempotencyKey: key})
	if err != nil {
		return nil, errutil.Internal("failed to look up idempotency key", err)
	}
	return t, nil
}

func validate(key, typ, ownerID string, amount int64, meta Metadata) error {
	if strings.TrimSpace(key) == "" || len(key) > 255 {
		return errutil.BadRequest("idempotency key is required", nil, errutil.WithReason(ReasonInvalidKey))
	}
	if amount <= 0 {
		return errutil.BadRequest("amount must be a positive number of paise", nil, errutil.WithReason(ReasonInvalidAmount))
	}
	if strings.TrimSpace(ownerID) == "" || typ == "" {
		return errutil.BadRequest("owner and type are required", nil)
	}
	if meta.Settlement != nil && meta.Payout != nil {
		return errutil.BadRequest("metadata carries more than one variant", nil, errutil.WithReason(ReasonInvalidMetadata))
	}
	switch typ {
	case TypeOrderSettlement:
		if meta.Settlement == nil {
			return errutil.BadRequest("settlement metadata is required", nil, errutil.WithReason(ReasonInvalidMetadata))
		}
	case TypeAgencyPayout:
		if meta.Payout == nil {
			return errutil.BadRequest("payout metadata is required", nil, errutil.WithReason(ReasonInvalidMetadata))
		}
	}
	return nil
}

// EnsureWallet returns the owner's wallet, creating an empty one if needed.
func (s *Service) EnsureWallet(ctx context.Context, ownerID string, ownerType OwnerType) (*Wallet, error) {
	w, err := s.wallets.FindOne(ctx, &Wallet{OwnerID: ownerID})
	if err != nil {
		return nil, errutil.Internal("failed to load wallet", err)
	}
	if w != nil {
		return w, nil
	}

	w = &Wallet{
		ID:        s.node.Generate().Int64(),
		OwnerID:   ownerID,
		OwnerType: ownerType,
		Currency:  s.cfg.Currency,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.FromContext(ctx).Error("failed to create wallet", zap.String("owner_id", ownerID), zap.Error(err))
			return nil, errutil.Internal("failed to create wallet", err)
		}
		// created concurrently, or closed (soft deleted)
		w, err = s.wallets.FindOne(ctx, &Wallet{OwnerID: ownerID})
		if err != nil {
			return nil, errutil.Internal("failed to load wallet", err)
		}
		if w == nil {
			return nil, ErrWalletNotFound(ownerID)
		}
	}
	return w, nil
}

func (s *Service) GetWallet(ctx context.Context, ownerID string) (*Wallet, error) {
	w, err := s.wallets.FindOne(ctx, &Wallet{OwnerID: ownerID})
	if err != nil {
		return nil, errutil.Internal("failed to load wallet", err)
	}
	if w == nil {
		return nil, ErrWalletNotFound(ownerID)
	}
	return w, nil
}

func (s *Service) ListTransactions(ctx context.Context, ownerID string, p pagination.Pagination) ([]*Transaction, *pagination.PageInfo, error) {
	p = p.Normalize()
	cursor, err := option.ApplyCursor(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.txns.Find(ctx, &Transaction{OwnerID: ownerID}, cursor)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list transactions", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list transactions", err)
	}

	return pagination.BuildCursorPageInfo(rows, p.Limit, func(t *Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
}
