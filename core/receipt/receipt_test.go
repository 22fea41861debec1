package receipt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreCodesAreStable(t *testing.T) {
	require.Equal(t, 0, int(StoreTest))
	require.Equal(t, 1, int(StoreApple))
	require.Equal(t, 2, int(StoreGoogle))
	require.Equal(t, 3, int(StoreWeb))
	require.Equal(t, 91, int(StoreAppleTest))
	require.Equal(t, 92, int(StoreGoogleTest))
	require.Equal(t, 93, int(StoreWebTest))
}

func TestParseStore(t *testing.T) {
	for _, s := range Stores() {
		byName, err := ParseStore(s.String())
		require.NoError(t, err)
		require.Equal(t, s, byName)
		var decoded Store
		require.NoError(t, decoded.UnmarshalText([]byte(s.String())))
		require.Equal(t, s, decoded)
	}
	s, err := ParseStore("92")
	require.NoError(t, err)
	require.Equal(t, StoreGoogleTest, s)
	require.Equal(t, StoreGoogle, s.Family())
	require.True(t, s.Sandbox())

	_, err = ParseStore("42")
	require.Error(t, err)
	_, err = ParseStore("amazon")
	require.Error(t, err)
}

func TestStateTerminal(t *testing.T) {
	require.False(t, StateInit.Terminal())
	require.False(t, StateValidationRequest.Terminal())
	for _, s := range []State{StateValid, StateRefundedByAdmin, StateInvalid, StateRefundedByBuyer, StatePurchaseLimitExceed, StateTimeLimit, StateUnknown} {
		require.True(t, s.Terminal(), s.String())
		for _, next := range []State{StateInit, StateValidationRequest, StateValid, StateInvalid} {
			require.False(t, s.CanTransition(next), "%s -> %s", s, next)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(StateInit, StateValidationRequest))
	require.NoError(t, CheckTransition(StateValidationRequest, StateValidationRequest))
	require.NoError(t, CheckTransition(StateValidationRequest, StateValid))
	require.NoError(t, CheckTransition(StateValidationRequest, StateTimeLimit))
	require.NoError(t, CheckTransition(StateInit, StateInvalid))

	err := CheckTransition(StateInit, StateValid)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	err = CheckTransition(StateValid, StateRefundedByBuyer)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	require.False(t, StateValidationRequest.CanTransition(State(5)))
}

func TestFailureKinds(t *testing.T) {
	cause := errors.New("deadline")
	var err error = &TransientFailure{Store: StoreApple, Reason: "lookup", Err: cause}
	require.True(t, IsTransient(err))
	require.True(t, errors.Is(err, cause))
	require.Contains(t, err.Error(), "APPLE")

	err = &ValidationFailure{Store: StoreGoogle, Reason: "order mismatch"}
	require.False(t, IsTransient(err))
	require.Contains(t, err.Error(), "order mismatch")
}

func TestExtractOrderDataTest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	od, err := ExtractOrderData(StoreTest, []byte(`{"orderId":"o-1","productId":7,"purchaseTime":1690000000}`), now)
	require.NoError(t, err)
	require.Equal(t, "o-1", od.OrderID)
	require.Equal(t, "7", od.ProductID)
	require.Equal(t, int64(1690000000), od.PurchasedAt.Unix())

	_, err = ExtractOrderData(StoreTest, []byte(`{"productId":"7"}`), now)
	require.True(t, errors.Is(err, ErrMalformedReceipt))
}

func TestExtractOrderDataGoogleEnvelope(t *testing.T) {
	data := []byte(`{"Store":"GooglePlay","TransactionID":"GPA.1","Payload":"{\"json\":\"{\\\"orderId\\\":\\\"GPA.1\\\",\\\"productId\\\":\\\"g_pkg\\\",\\\"purchaseTime\\\":1690000000123,\\\"purchaseToken\\\":\\\"tok\\\"}\"}"}`)
	od, err := ExtractOrderData(StoreGoogle, data, time.Now())
	require.NoError(t, err)
	require.Equal(t, OrderData{OrderID: "GPA.1", ProductID: "g_pkg", PurchasedAt: time.Unix(1690000000, 0).UTC(), PurchaseToken: "tok"}, od)

	flat := []byte(`{"orderId":"GPA.2","productId":"g_pkg","purchaseTime":1000,"purchaseToken":"tok"}`)
	od, err = ExtractOrderData(StoreGoogleTest, flat, time.Now())
	require.NoError(t, err)
	require.Equal(t, "GPA.2", od.OrderID)

	_, err = ExtractOrderData(StoreGoogle, []byte(`{"orderId":"GPA.3","productId":"g_pkg"}`), time.Now())
	require.True(t, errors.Is(err, ErrMalformedReceipt))
}

func TestExtractOrderDataApple(t *testing.T) {
	now := time.Unix(1700000000, 0)
	od, err := ExtractOrderData(StoreAppleTest, []byte(`{"Store":"AppleAppStore","TransactionID":"2000000432373050","Payload":"MIIT"}`), now)
	require.NoError(t, err)
	require.Equal(t, "2000000432373050", od.OrderID)
	require.Empty(t, od.ProductID)
	require.True(t, od.PurchasedAt.Equal(now))
}

func TestExtractOrderDataWeb(t *testing.T) {
	od, err := ExtractOrderData(StoreWeb, []byte(`{"paymentIntentId":"pi_1","productId":320}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, "pi_1", od.OrderID)
	require.Equal(t, "320", od.ProductID)

	_, err = ExtractOrderData(Store(7), []byte(`{}`), time.Now())
	require.True(t, errors.Is(err, ErrMalformedReceipt))
}
