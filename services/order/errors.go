package order

import (
	"fmt"
	"strings"

	"cashback-controlplane/pkg/errutil"
)

const (
	ReasonIllegalTransition = "ILLEGAL_ORDER_TRANSITION"
	ReasonFrozen            = "ORDER_FROZEN"
	ReasonStateMismatch     = "ORDER_STATE_MISMATCH"
	ReasonNotFound          = "ORDER_NOT_FOUND"
	ReasonDuplicateActive   = "DUPLICATE_ACTIVE_ORDER"
	ReasonInvalidOrder      = "INVALID_ORDER"
	ReasonAlreadyVerified   = "VERIFICATION_ALREADY_RECORDED"
	ReasonEmptyFreezeQuery  = "EMPTY_FREEZE_QUERY"
	ReasonUnknownStatus     = "UNKNOWN_ORDER_STATUS"
	ReasonFreezeConflict    = "FREEZE_CONFLICT"
)

func ErrIllegalTransition(from, to Status) error {
	allowed := make([]string, 0, 3)
	for _, s := range Allowed(from) {
		allowed = append(allowed, string(s))
	}
	next := "none"
	if len(allowed) > 0 {
		next = strings.Join(allowed, ", ")
	}
	return errutil.Conflict(fmt.Sprintf("cannot move order from %s to %s", from, to), nil,
		errutil.WithReason(ReasonIllegalTransition),
		errutil.WithDetails(errutil.Detail{Field: "to", Message: "allowed: " + next}))
}

func ErrUnknownStatus(s Status) error {
	return errutil.BadRequest(fmt.Sprintf("unknown order status %q", s), nil, errutil.WithReason(ReasonUnknownStatus))
}

func ErrFrozen(id int64) error {
	return errutil.Conflict(fmt.Sprintf("order %d is frozen", id), nil, errutil.WithReason(ReasonFrozen))
}

func ErrStateMismatch(expected, actual Status) error {
	return errutil.Conflict(fmt.Sprintf("order is %s, not %s", actual, expected), nil,
		errutil.WithReason(ReasonStateMismatch))
}

func ErrNotFound(id int64) error {
	return errutil.NotFound(fmt.Sprintf("order %d not found", id), nil, errutil.WithReason(ReasonNotFound))
}

func ErrDuplicateActive() error {
	return errutil.Conflict("shopper already has an active order for this deal", nil,
		errutil.WithReason(ReasonDuplicateActive))
}

func ErrAlreadyVerified(step Step) error {
	return errutil.Conflict(fmt.Sprintf("%s verification already recorded", step), nil,
		errutil.WithReason(ReasonAlreadyVerified))
}

func invalid(msg string) error {
	return errutil.BadRequest(msg, nil, errutil.WithReason(ReasonInvalidOrder))
}
