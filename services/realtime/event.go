package realtime

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	EventReady         = "ready"
	EventPing          = "ping"
	EventOrderCreated  = "order.created"
	EventOrderUpdated  = "order.updated"
	EventOrdersFrozen  = "orders.frozen"
	EventWalletUpdated = "wallet.updated"
)

// Event is ephemeral and never persisted.
type Event struct {
	Type     string    `json:"type"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload"`
	Audience *Audience `json:"audience,omitempty"`
}

// Audience selects who may receive an event. A nil or empty audience
// matches nobody.
type Audience struct {
	Broadcast     bool     `json:"broadcast,omitempty"`
	UserIDs       []string `json:"user_ids,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	AgencyCodes   []string `json:"agency_codes,omitempty"`
	MediatorCodes []string `json:"mediator_codes,omitempty"`
	BrandCodes    []string `json:"brand_codes,omitempty"`
	ParentCodes   []string `json:"parent_codes,omitempty"`
}

// Viewer is the identity behind one stream connection.
type Viewer struct {
	UserID       string
	Roles        []string
	AgencyCode   string
	MediatorCode string
	BrandCode    string
	ParentCode   string
}

func (a *Audience) Matches(v Viewer) bool {
	if a == nil {
		return false
	}
	if a.Broadcast {
		return true
	}
	if v.UserID != "" && contains(a.UserIDs, v.UserID, false) {
		return true
	}
	for _, r := range v.Roles {
		if contains(a.Roles, r, true) {
			return true
		}
	}
	return containsCode(a.AgencyCodes, v.AgencyCode) ||
		containsCode(a.MediatorCodes, v.MediatorCode) ||
		containsCode(a.BrandCodes, v.BrandCode) ||
		containsCode(a.ParentCodes, v.ParentCode)
}

func containsCode(list []string, code string) bool {
	code = strings.TrimSpace(code)
	return code != "" && contains(list, code, true)
}

func contains(list []string, s string, fold bool) bool {
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == s || (fold && strings.EqualFold(item, s)) {
			return true
		}
	}
	return false
}

// Payloads. Every event type has exactly one payload struct.

type OrderPayload struct {
	OrderID    int64  `json:"order_id,string"`
	Code       string `json:"code,omitempty"`
	Status     string `json:"status"`
	PrevStatus string `json:"prev_status,omitempty"`
	Frozen     bool   `json:"frozen"`
}

type OrdersFrozenPayload struct {
	OrderIDs []string `json:"order_ids"`
	Reason   string   `json:"reason"`
}

type WalletPayload struct {
	OwnerID        string `json:"owner_id"`
	AvailablePaise int64  `json:"available_paise"`
	PendingPaise   int64  `json:"pending_paise"`
	LockedPaise    int64  `json:"locked_paise"`
	TransactionID  int64  `json:"transaction_id,string,omitempty"`
}

type wireEvent struct {
	Type     string          `json:"type"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
	Audience *Audience       `json:"audience,omitempty"`
}

// decodeEvent restores the typed payload of an event received from another
// process.
func decodeEvent(b []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return Event{}, err
	}

	var (
		payload any
		err     error
	)
	switch w.Type {
	case EventOrderCreated, EventOrderUpdated:
		var p OrderPayload
		err = json.Unmarshal(w.Payload, &p)
		payload = p
	case EventOrdersFrozen:
		var p OrdersFrozenPayload
		err = json.Unmarshal(w.Payload, &p)
		payload = p
	case EventWalletUpdated:
		var p WalletPayload
		err = json.Unmarshal(w.Payload, &p)
		payload = p
	default:
		var p map[string]any
		err = json.Unmarshal(w.Payload, &p)
		payload = p
	}
	if err != nil {
		return Event{}, err
	}

	return Event{Type: w.Type, At: w.At, Payload: payload, Audience: w.Audience}, nil
}
