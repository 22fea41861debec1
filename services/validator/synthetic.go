package validator

import (
	"context"
	"fmt"
	"time"

	"iapgate/core/receipt"
)

// Synthetic trusts the fields embedded in a TEST receipt. It is refused when
// the credentials are marked as production.
type Synthetic struct{}

func (Synthetic) Validate(_ context.Context, req Request, creds Credentials) Result {
	if creds.Production {
		return invalid("Test store is not allowed in production")
	}
	if req.OrderID == "" {
		return invalid("Test receipt has no order id")
	}
	purchasedAt := req.PurchasedAt
	if purchasedAt.IsZero() {
		purchasedAt = time.Unix(0, 0).UTC()
	}
	if req.ProductID == "" {
		return invalid(fmt.Sprintf("Test receipt %s has no product id", req.OrderID))
	}
	return valid(&receipt.NormalizedPurchase{
		OrderID:     req.OrderID,
		ProductID:   req.ProductID,
		PurchasedAt: purchasedAt,
		Store:       req.Store,
		Raw:         req.Data,
	})
}
