package order

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types appended to an order's own history.
const (
	EventOrderCreated         = "ORDER_CREATED"
	EventWorkflowTransition   = "WORKFLOW_TRANSITION"
	EventWorkflowFrozen       = "WORKFLOW_FROZEN"
	EventWorkflowReactivated  = "WORKFLOW_REACTIVATED"
	EventVerificationRecorded = "VERIFICATION_RECORDED"
	EventOrderDeleted         = "ORDER_DELETED"
)

// Step is one verification checkpoint of an order.
type Step string

const (
	StepPurchase     Step = "purchase"
	StepReview       Step = "review"
	StepRating       Step = "rating"
	StepReturnWindow Step = "return_window"
)

func (s Step) columns() (at, by string, ok bool) {
	switch s {
	case StepPurchase, StepReview, StepRating, StepReturnWindow:
		return string(s) + "_verified_at", string(s) + "_verified_by", true
	}
	return "", "", false
}

type Order struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Code           string `gorm:"column:code;size:32;not null;uniqueIndex" json:"code"`
	ShopperID      string `gorm:"column:shopper_id;size:128;not null;index" json:"shopper_id"`
	BrandID        string `gorm:"column:brand_id;size:128;index" json:"brand_id,omitempty"`
	MediatorCode   string `gorm:"column:mediator_code;size:64;index" json:"mediator_code,omitempty"`
	AgencyCode     string `gorm:"column:agency_code;size:64;index" json:"agency_code,omitempty"`
	DealID         string `gorm:"column:deal_id;size:128;not null" json:"deal_id"`
	WorkflowStatus Status `gorm:"column:workflow_status;size:32;not null;index" json:"workflow_status"`

	// ActiveClaimKey is shopper:deal while the order is live and NULL once it
	// is terminal or deleted, so the unique index only binds live orders.
	ActiveClaimKey *string `gorm:"column:active_claim_key;size:300;uniqueIndex" json:"-"`

	Frozen       bool       `gorm:"column:frozen;not null;default:false;index" json:"frozen"`
	FrozenAt     *time.Time `gorm:"column:frozen_at" json:"frozen_at,omitempty"`
	FrozenReason string     `gorm:"column:frozen_reason;size:255" json:"frozen_reason,omitempty"`
	FrozenBy     string     `gorm:"column:frozen_by;size:128" json:"frozen_by,omitempty"`

	PurchaseVerifiedAt     *time.Time `gorm:"column:purchase_verified_at" json:"purchase_verified_at,omitempty"`
	PurchaseVerifiedBy     string     `gorm:"column:purchase_verified_by;size:128" json:"purchase_verified_by,omitempty"`
	ReviewVerifiedAt       *time.Time `gorm:"column:review_verified_at" json:"review_verified_at,omitempty"`
	ReviewVerifiedBy       string     `gorm:"column:review_verified_by;size:128" json:"review_verified_by,omitempty"`
	RatingVerifiedAt       *time.Time `gorm:"column:rating_verified_at" json:"rating_verified_at,omitempty"`
	RatingVerifiedBy       string     `gorm:"column:rating_verified_by;size:128" json:"rating_verified_by,omitempty"`
	ReturnWindowVerifiedAt *time.Time `gorm:"column:return_window_verified_at" json:"return_window_verified_at,omitempty"`
	ReturnWindowVerifiedBy string     `gorm:"column:return_window_verified_by;size:128" json:"return_window_verified_by,omitempty"`

	Items  []*Item  `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Events []*Event `gorm:"foreignKey:OrderID" json:"events,omitempty"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (o *Order) idString() string {
	return strconv.FormatInt(o.ID, 10)
}

// CashbackPaise is the amount owed to the shopper on settlement.
func (o *Order) CashbackPaise() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.CommissionPaise
	}
	return total
}

// VerifiedAt returns when step was verified, nil if it has not been.
func (o *Order) VerifiedAt(step Step) *time.Time {
	switch step {
	case StepPurchase:
		return o.PurchaseVerifiedAt
	case StepReview:
		return o.ReviewVerifiedAt
	case StepRating:
		return o.RatingVerifiedAt
	case StepReturnWindow:
		return o.ReturnWindowVerifiedAt
	}
	return nil
}

func claimKey(shopperID, dealID string) *string {
	k := shopperID + ":" + dealID
	return &k
}

type Item struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	OrderID         int64  `gorm:"column:order_id;not null;index" json:"-"`
	Position        int    `gorm:"column:position;not null" json:"position"`
	CampaignID      string `gorm:"column:campaign_id;size:128" json:"campaign_id,omitempty"`
	DealType        string `gorm:"column:deal_type;size:32" json:"deal_type,omitempty"`
	Title           string `gorm:"column:title;size:255" json:"title,omitempty"`
	PricePaise      int64  `gorm:"column:price_paise;not null" json:"price_paise"`
	CommissionPaise int64  `gorm:"column:commission_paise;not null" json:"commission_paise"`
}

func (Item) TableName() string {
	return "order_items"
}

// Event is append-only. Exactly one of the metadata variants is set,
// matching Type.
type Event struct {
	ID          int64                             `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	OrderID     int64                             `gorm:"column:order_id;not null;index" json:"-"`
	Type        string                            `gorm:"column:type;size:32;not null" json:"type"`
	ActorUserID string                            `gorm:"column:actor_user_id;size:128" json:"actor_user_id"`
	Metadata    datatypes.JSONType[EventMetadata] `gorm:"column:metadata" json:"metadata"`
	At          time.Time                         `gorm:"column:at;not null" json:"at"`
}

func (Event) TableName() string {
	return "order_events"
}

type EventMetadata struct {
	Transition   *TransitionMeta   `json:"transition,omitempty"`
	Freeze       *FreezeMeta       `json:"freeze,omitempty"`
	Verification *VerificationMeta `json:"verification,omitempty"`
	Note         string            `json:"note,omitempty"`
}

type TransitionMeta struct {
	From Status `json:"from"`
	To   Status `json:"to"`
	Details
}

// Details is the caller supplied part of a transition record.
type Details struct {
	Note             string   `json:"note,omitempty"`
	ProofKey         string   `json:"proof_key,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
	TransactionIDs   []string `json:"transaction_ids,omitempty"`
	ManualSettlement bool     `json:"manual_settlement,omitempty"`
}

type FreezeMeta struct {
	Reason string `json:"reason"`
}

type VerificationMeta struct {
	Step Step `json:"step"`
}
