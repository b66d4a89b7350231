package order

import "context"

//go:generate mockgen -source=notifier.go -destination=mock_notifier_test.go -package=order

// Notifier receives best-effort push requests after a transition commits.
// Implementations must not block the caller.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, change StatusChange)
}

type StatusChange struct {
	OrderID       int64
	Code          string
	ShopperID     string
	From          Status
	To            Status
	CashbackPaise int64
}
