package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedReceipt is returned when the client payload lacks the fields
// its store requires.
var ErrMalformedReceipt = errors.New("receipt: malformed receipt data")

// NormalizedPurchase is the store independent view of a validated purchase.
type NormalizedPurchase struct {
	OrderID     string
	ProductID   string
	PurchasedAt time.Time
	Store       Store
	// Raw is the store's own response, kept for audit.
	Raw json.RawMessage
}

// OrderData is what can be read from a client receipt before talking to the
// store. ProductID is empty for stores that only reveal it on lookup.
type OrderData struct {
	OrderID       string
	ProductID     string
	PurchasedAt   time.Time
	PurchaseToken string
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type testReceipt struct {
	OrderID      string     `json:"orderId"`
	ProductID    flexString `json:"productId"`
	PurchaseTime int64      `json:"purchaseTime"`
}

type googleOrder struct {
	OrderID       string `json:"orderId"`
	ProductID     string `json:"productId"`
	PurchaseTime  int64  `json:"purchaseTime"`
	PurchaseToken string `json:"purchaseToken"`
}

type unityEnvelope struct {
	Payload       string `json:"Payload"`
	Store         string `json:"Store"`
	TransactionID string `json:"TransactionID"`
}

type webReceipt struct {
	OrderID         string     `json:"orderId"`
	PaymentIntentID string     `json:"paymentIntentId"`
	ProductID       flexString `json:"productId"`
}

// ExtractOrderData reads the order identity out of a client payload.
//
//   - TEST: {orderId, productId, purchaseTime (unix seconds)}
//   - GOOGLE: the Unity envelope whose Payload holds {json: <order>}, or the
//     order object itself; purchaseTime is in milliseconds
//   - APPLE: {TransactionID}; the product is only known after lookup
//   - WEB: {paymentIntentId | orderId, productId}
func ExtractOrderData(store Store, data []byte, now time.Time) (OrderData, error) {
	switch store.Family() {
	case StoreTest:
		var r testReceipt
		if err := json.Unmarshal(data, &r); err != nil {
			return OrderData{}, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
		}
		if r.OrderID == "" {
			return OrderData{}, fmt.Errorf("%w: orderId is required", ErrMalformedReceipt)
		}
		return OrderData{OrderID: r.OrderID, ProductID: string(r.ProductID), PurchasedAt: time.Unix(r.PurchaseTime, 0).UTC()}, nil
	case StoreGoogle:
		order, err := googleOrderFrom(data)
		if err != nil {
			return OrderData{}, err
		}
		if order.OrderID == "" || order.ProductID == "" || order.PurchaseToken == "" {
			return OrderData{}, fmt.Errorf("%w: orderId, productId and purchaseToken are required", ErrMalformedReceipt)
		}
		return OrderData{
			OrderID:       order.OrderID,
			ProductID:     order.ProductID,
			PurchasedAt:   time.Unix(order.PurchaseTime/1000, 0).UTC(),
			PurchaseToken: order.PurchaseToken,
		}, nil
	case StoreApple:
		var env unityEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return OrderData{}, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
		}
		if env.TransactionID == "" {
			return OrderData{}, fmt.Errorf("%w: TransactionID is required", ErrMalformedReceipt)
		}
		return OrderData{OrderID: env.TransactionID, PurchasedAt: now.UTC()}, nil
	case StoreWeb:
		var r webReceipt
		if err := json.Unmarshal(data, &r); err != nil {
			return OrderData{}, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
		}
		id := r.PaymentIntentID
		if id == "" {
			id = r.OrderID
		}
		if id == "" || r.ProductID == "" {
			return OrderData{}, fmt.Errorf("%w: paymentIntentId and productId are required", ErrMalformedReceipt)
		}
		return OrderData{OrderID: id, ProductID: string(r.ProductID), PurchasedAt: now.UTC()}, nil
	default:
		return OrderData{}, fmt.Errorf("%w: %s is unsupported store", ErrMalformedReceipt, store)
	}
}

func googleOrderFrom(data []byte) (googleOrder, error) {
	var env unityEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return googleOrder{}, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	raw := data
	if strings.TrimSpace(env.Payload) != "" {
		var payload struct {
			JSON string `json:"json"`
		}
		if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil {
			return googleOrder{}, fmt.Errorf("%w: payload: %v", ErrMalformedReceipt, err)
		}
		raw = []byte(payload.JSON)
	}
	var order googleOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return googleOrder{}, fmt.Errorf("%w: order: %v", ErrMalformedReceipt, err)
	}
	return order, nil
}
