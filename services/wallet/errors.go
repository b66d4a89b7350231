package wallet

import "cashback-controlplane/pkg/errutil"

const (
	ReasonWalletNotFound    = "WALLET_NOT_FOUND"
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonLimitExceeded     = "WALLET_LIMIT_EXCEEDED"
	ReasonKeyReused         = "IDEMPOTENCY_KEY_REUSED"
	ReasonConcurrentUpdate  = "WALLET_CONCURRENT_UPDATE"
	ReasonInvalidAmount     = "INVALID_AMOUNT"
	ReasonInvalidKey        = "INVALID_IDEMPOTENCY_KEY"
	ReasonInvalidMetadata   = "INVALID_METADATA"
)

func ErrWalletNotFound(ownerID string) error {
	return errutil.NotFound("wallet not found", nil,
		errutil.WithReason(ReasonWalletNotFound),
		errutil.WithDetails(errutil.Detail{Field: "owner_id", Message: ownerID}))
}

func ErrInsufficientFunds() error {
	return errutil.Conflict("insufficient funds", nil, errutil.WithReason(ReasonInsufficientFunds))
}

func ErrLimitExceeded() error {
	return errutil.Conflict("wallet balance limit exceeded", nil, errutil.WithReason(ReasonLimitExceeded))
}

func ErrKeyReused(key string) error {
	return errutil.Conflict("idempotency key already used for a different operation", nil,
		errutil.WithReason(ReasonKeyReused),
		errutil.WithDetails(errutil.Detail{Field: "idempotency_key", Message: key}))
}

func ErrConcurrentUpdate() error {
	return errutil.Conflict("wallet was modified concurrently, retry", nil, errutil.WithReason(ReasonConcurrentUpdate))
}
