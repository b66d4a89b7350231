package notification

import (
	"fmt"

	"cashback-controlplane/services/order"

	"github.com/shopspring/decimal"
)

// FormatRupees renders paise as a rupee amount, e.g. 7050 -> "₹70.50".
func FormatRupees(paise int64) string {
	return "₹" + decimal.New(paise, -2).StringFixed(2)
}

// messageFor returns the push text for a status change. Steps the shopper
// does not care about return ok=false.
func messageFor(c order.StatusChange) (title, body string, ok bool) {
	switch c.To {
	case order.StatusOrdered:
		return "Order confirmed", fmt.Sprintf("We have recorded your order %s. Upload your purchase proof next.", c.Code), true
	case order.StatusUnderReview:
		return "Proof under review", fmt.Sprintf("Your proof for order %s is being reviewed.", c.Code), true
	case order.StatusApproved:
		return "Order approved", fmt.Sprintf("Order %s is approved. Cashback of %s is on its way.", c.Code, FormatRupees(c.CashbackPaise)), true
	case order.StatusRejected:
		return "Proof rejected", fmt.Sprintf("We could not verify the proof for order %s. Please submit it again.", c.Code), true
	case order.StatusCompleted:
		return "Cashback credited", fmt.Sprintf("%s has been added to your wallet for order %s.", FormatRupees(c.CashbackPaise), c.Code), true
	case order.StatusFailed:
		return "Order closed", fmt.Sprintf("Order %s was closed without cashback.", c.Code), true
	}
	return "", "", false
}
