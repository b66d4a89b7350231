package audit

import (
	"time"

	"cashback-controlplane/pkg/middleware"

	"gorm.io/datatypes"
)

// Actions recorded by the core.
const (
	ActionOrderCreated            = "ORDER_CREATED"
	ActionOrderWorkflowTransition = "ORDER_WORKFLOW_TRANSITION"
	ActionOrderFrozen             = "ORDER_FROZEN"
	ActionOrderReactivated        = "ORDER_REACTIVATED"
	ActionOrderVerified           = "ORDER_VERIFICATION_RECORDED"
	ActionOrderDeleted            = "ORDER_DELETED"
	ActionOrderProofSubmitted     = "ORDER_PROOF_SUBMITTED"
	ActionOrderSettled            = "ORDER_SETTLED"
	ActionAgencyPayout            = "AGENCY_PAYOUT"
	ActionAgencyPayoutManual      = "AGENCY_PAYOUT_MANUAL"
	ActionUpstreamSuspended       = "UPSTREAM_SUSPENDED"
)

const (
	EntityOrder    = "order"
	EntityWallet   = "wallet"
	EntityAgency   = "agency"
	EntityMediator = "mediator"
)

// Actor identifies who performed a privileged mutation.
type Actor struct {
	UserID string
	Roles  []string
}

// ActorFrom converts an authenticated principal into an actor.
func ActorFrom(p *middleware.Principal) Actor {
	if p == nil {
		return SystemActor
	}
	return Actor{UserID: p.UserID, Roles: p.Roles}
}

// SystemActor is used for mutations without a human caller.
var SystemActor = Actor{UserID: "system", Roles: []string{"system"}}

// Entry is append-only. Nothing in the application updates or deletes rows.
type Entry struct {
	ID          int64                       `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Action      string                      `gorm:"column:action;size:64;not null;index" json:"action"`
	EntityType  string                      `gorm:"column:entity_type;size:32;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID    string                      `gorm:"column:entity_id;size:128;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	ActorUserID string                      `gorm:"column:actor_user_id;size:64;index" json:"actor_user_id"`
	ActorRoles  datatypes.JSONSlice[string] `gorm:"column:actor_roles" json:"actor_roles"`
	Metadata    datatypes.JSONMap           `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time                   `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Entry) TableName() string {
	return "audit_logs"
}

type Record struct {
	Action     string
	EntityType string
	EntityID   string
	Actor      Actor
	Metadata   map[string]any
}
