package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OwnerType string

const (
	OwnerBrand    OwnerType = "brand"
	OwnerAgency   OwnerType = "agency"
	OwnerMediator OwnerType = "mediator"
	OwnerShopper  OwnerType = "shopper"
)

// Transaction types.
const (
	TypeOrderSettlement = "order_settlement"
	TypeAgencyPayout    = "agency_payout"
	TypeReceipt         = "receipt"
	TypeAdjustment      = "adjustment"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"

	StatusCompleted = "completed"

	ModeWallet = "wallet"
	ModeManual = "manual"
)

const genesisHash = "GENESIS"

type Wallet struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	OwnerID        string         `gorm:"column:owner_id;size:128;not null;uniqueIndex" json:"owner_id"`
	OwnerType      OwnerType      `gorm:"column:owner_type;size:16;not null" json:"owner_type"`
	Currency       string         `gorm:"column:currency;size:3;not null" json:"currency"`
	AvailablePaise int64          `gorm:"column:available_paise;not null;default:0;check:chk_wallets_available_nonneg,available_paise >= 0" json:"available_paise"`
	PendingPaise   int64          `gorm:"column:pending_paise;not null;default:0" json:"pending_paise"`
	LockedPaise    int64          `gorm:"column:locked_paise;not null;default:0" json:"locked_paise"`
	Version        int64          `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (w *Wallet) TotalPaise() int64 {
	return w.AvailablePaise + w.PendingPaise + w.LockedPaise
}

// Metadata is a tagged variant: exactly the field matching the transaction
// type is set.
type Metadata struct {
	Settlement *SettlementMeta `json:"settlement,omitempty"`
	Payout     *PayoutMeta     `json:"payout,omitempty"`
	Note       string          `json:"note,omitempty"`
}

type SettlementMeta struct {
	OrderID   string `json:"order_id"`
	ShopperID string `json:"shopper_id"`
	BrandID   string `json:"brand_id"`
}

type PayoutMeta struct {
	BrandID  string `json:"brand_id"`
	AgencyID string `json:"agency_id"`
	Ref      string `json:"ref"`
}

// Transaction is immutable once inserted.
type Transaction struct {
	ID             int64                        `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	IdempotencyKey string                       `gorm:"column:idempotency_key;size:255;not null;uniqueIndex" json:"idempotency_key"`
	Type           string                       `gorm:"column:type;size:32;not null" json:"type"`
	Direction      string                       `gorm:"column:direction;size:8;not null" json:"direction"`
	Status         string                       `gorm:"column:status;size:16;not null" json:"status"`
	Mode           string                       `gorm:"column:mode;size:8;not null" json:"mode"`
	AmountPaise    int64                        `gorm:"column:amount_paise;not null" json:"amount_paise"`
	Currency       string                       `gorm:"column:currency;size:3;not null" json:"currency"`
	WalletID       *int64                       `gorm:"column:wallet_id;index" json:"wallet_id,omitempty"`
	OwnerID        string                       `gorm:"column:owner_id;size:128;not null;index" json:"owner_id"`
	FromParty      string                       `gorm:"column:from_party;size:128" json:"from_party,omitempty"`
	ToParty        string                       `gorm:"column:to_party;size:128" json:"to_party,omitempty"`
	BalanceAfter   int64                        `gorm:"column:balance_after" json:"balance_after"`
	Metadata       datatypes.JSONType[Metadata] `gorm:"column:metadata" json:"metadata"`
	PreviousHash   string                       `gorm:"column:previous_hash;size:64" json:"previous_hash"`
	Hash           string                       `gorm:"column:hash;size:64" json:"hash"`
	CreatedAt      time.Time                    `gorm:"column:created_at" json:"created_at"`
}

func (t *Transaction) HashFields() map[string]string {
	walletID := ""
	if t.WalletID != nil {
		walletID = fmt.Sprintf("%d", *t.WalletID)
	}
	return map[string]string{
		"id":              fmt.Sprintf("%d", t.ID),
		"idempotency_key": t.IdempotencyKey,
		"type":            t.Type,
		"direction":       t.Direction,
		"mode":            t.Mode,
		"amount_paise":    fmt.Sprintf("%d", t.AmountPaise),
		"currency":        t.Currency,
		"wallet_id":       walletID,
		"owner_id":        t.OwnerID,
		"from_party":      t.FromParty,
		"to_party":        t.ToParty,
		"balance_after":   fmt.Sprintf("%d", t.BalanceAfter),
		"created_at":      t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":   t.PreviousHash,
	}
}

// GenerateHash hashes the sorted k=v pairs joined with "|".
func (t *Transaction) GenerateHash() string {
	fields := t.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// sameRequest reports whether a replayed call carries the arguments the
// recorded transaction was created with.
func (t *Transaction) sameRequest(typ, direction, ownerID string, amount int64) bool {
	return t.Type == typ && t.Direction == direction && t.OwnerID == ownerID && t.AmountPaise == amount
}
