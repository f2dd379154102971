package adapters

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
	"github.com/tupahq/tupasync/pos"
)

func newFudoForTest(t *testing.T) *FudoAdapter {
	t.Helper()
	adapter := NewFudoAdapter(model.ClientConfig{
		ClientID:  "client_abc",
		POSType:   "fudo",
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   "https://fudo.test",
	}).(*FudoAdapter)
	httpmock.ActivateNonDefault(adapter.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return adapter
}

func TestFudoMapToTupaFixture(t *testing.T) {
	fixture, err := pos.LoadFixture("fudo")
	assert.NoError(t, err)

	adapter := NewFudoAdapter(model.ClientConfig{ClientID: "client_abc"}).(*FudoAdapter)
	sales, err := adapter.MapToTupa(fixture)
	assert.NoError(t, err)
	assert.Len(t, sales, 2)

	first := sales[0]
	assert.Equal(t, "client_abc", first.ClientID)
	assert.Equal(t, "fudo-90311", first.POSTransactionID)
	assert.Equal(t, model.PaymentCreditCard, first.PaymentMethod)
	assert.Equal(t, "5400.5", first.Amount.String())
	assert.Len(t, first.Items, 2)
	assert.Equal(t, []string{"sin sal"}, first.Items[0].Modifiers)
	assert.NotNil(t, first.Customer)
	assert.Equal(t, "maria.lopez@example.com", first.Customer.Email)
	assert.Equal(t, "fudo", first.MetaData[model.MetaKeyPOSProvider])

	second := sales[1]
	assert.Equal(t, model.PaymentCash, second.PaymentMethod)
	assert.Nil(t, second.Customer)
}

func TestFudoMapToTupaRejectsBadRecord(t *testing.T) {
	adapter := NewFudoAdapter(model.ClientConfig{ClientID: "client_abc"}).(*FudoAdapter)

	// The second record has no id, which fails the whole payload.
	payload := []byte(`{"sales":[
		{"id":1,"createdAt":"2024-05-14T12:31:05Z","total":100,"items":[{"product":{"name":"Cafe"},"quantity":1,"price":100}]},
		{"createdAt":"2024-05-14T12:35:00Z","total":50,"items":[{"product":{"name":"Te"},"quantity":1,"price":50}]}
	]}`)

	sales, err := adapter.MapToTupa(payload)
	assert.Error(t, err)
	assert.Nil(t, sales)
	assert.Equal(t, apierror.ErrValidation, apierror.Code(err))
	assert.Contains(t, err.Error(), "record 1")
}

func TestFudoMapToTupaUnmappedPaymentFallsBack(t *testing.T) {
	adapter := NewFudoAdapter(model.ClientConfig{ClientID: "client_abc"}).(*FudoAdapter)

	payload := []byte(`{"sales":[
		{"id":7,"createdAt":"2024-05-14T12:31:05Z","total":100,"payments":[{"paymentMethod":"trueque"}],"items":[{"product":{"name":"Cafe"},"quantity":1,"price":100}]}
	]}`)

	sales, err := adapter.MapToTupa(payload)
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentOther, sales[0].PaymentMethod)
}

func TestFudoFetchSalesAuthenticatesFirst(t *testing.T) {
	adapter := newFudoForTest(t)

	httpmock.RegisterResponder("POST", "https://fudo.test/auth",
		httpmock.NewStringResponder(http.StatusOK, `{"token":"tok_123","expiresIn":3600}`))
	httpmock.RegisterResponder("GET", `=~^https://fudo\.test/sales`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok_123", req.Header.Get("Authorization"))
			assert.NotEmpty(t, req.URL.Query().Get("from"))
			fixture, _ := pos.LoadFixture("fudo")
			return httpmock.NewBytesResponse(http.StatusOK, fixture), nil
		})

	sales, err := adapter.FetchSales(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.NoError(t, err)
	assert.Len(t, sales, 2)

	last, err := adapter.LastSync(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, last)
}

func TestFudoFetchSalesRejectedCredentials(t *testing.T) {
	adapter := newFudoForTest(t)

	httpmock.RegisterResponder("POST", "https://fudo.test/auth",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"invalid key"}`))

	_, err := adapter.FetchSales(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrVendorAuth, apierror.Code(err))
}

func TestFudoFetchSalesExpiredSessionResetsToken(t *testing.T) {
	adapter := newFudoForTest(t)
	adapter.token = "stale"
	adapter.tokenExpiry = time.Now().Add(time.Hour)

	httpmock.RegisterResponder("GET", `=~^https://fudo\.test/sales`,
		httpmock.NewStringResponder(http.StatusUnauthorized, ``))

	_, err := adapter.FetchSales(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrVendorAuth, apierror.Code(err))

	// The cached token is dropped so the next call re-authenticates.
	assert.Empty(t, adapter.token)
}

func TestFudoValidateConnection(t *testing.T) {
	adapter := newFudoForTest(t)

	httpmock.RegisterResponder("POST", "https://fudo.test/auth",
		httpmock.NewStringResponder(http.StatusOK, `{"token":"tok_123","expiresIn":3600}`))

	ok, err := adapter.ValidateConnection(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)
}
