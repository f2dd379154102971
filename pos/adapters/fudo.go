package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
	"github.com/tupahq/tupasync/pos"
)

const fudoDefaultBaseURL = "https://api.fu.do/v1alpha1"

// fudoPaymentMethods normalizes Fudo's payment vocabulary. Unmapped vendor
// values fall back to "other".
var fudoPaymentMethods = map[string]model.PaymentMethod{
	"efectivo":              model.PaymentCash,
	"tarjeta_credito":       model.PaymentCreditCard,
	"tarjeta_debito":        model.PaymentDebitCard,
	"transferencia":         model.PaymentBankTransfer,
	"billetera_virtual":     model.PaymentDigitalWallet,
	"mercadopago":           model.PaymentDigitalWallet,
	"cheque":                model.PaymentCheck,
	"cuenta_corriente":      model.PaymentOther,
	"consumo_interno":       model.PaymentOther,
}

type fudoSalesPayload struct {
	Sales []fudoSale `json:"sales"`
}

type fudoSale struct {
	ID        int64         `json:"id"`
	CreatedAt string        `json:"createdAt"`
	Total     float64       `json:"total"`
	SaleState string        `json:"saleState"`
	Payments  []fudoPayment `json:"payments"`
	Customer  *fudoCustomer `json:"customer,omitempty"`
	Items     []fudoItem    `json:"items"`
}

type fudoPayment struct {
	PaymentMethod string `json:"paymentMethod"`
}

type fudoCustomer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type fudoItem struct {
	Product  fudoProduct `json:"product"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price"`
	Comments []string    `json:"comments,omitempty"`
}

type fudoProduct struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// FudoAdapter talks to the Fudo REST API. Authentication exchanges the
// configured key pair for a short-lived bearer token.
type FudoAdapter struct {
	cfg        model.ClientConfig
	baseURL    string
	httpClient *http.Client

	token       string
	tokenExpiry time.Time
	lastSync    *time.Time
}

func NewFudoAdapter(cfg model.ClientConfig) pos.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fudoDefaultBaseURL
	}
	return &FudoAdapter{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (f *FudoAdapter) Name() string {
	return "fudo"
}

func (f *FudoAdapter) SupportedFeatures() []string {
	return []string{pos.FeatureSalesFetch, pos.FeatureCustomerData, pos.FeatureItemModifiers, pos.FeatureDateRange}
}

func (f *FudoAdapter) authenticate(ctx context.Context) error {
	if f.token != "" && time.Now().Before(f.tokenExpiry) {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"apiKey":    f.cfg.APIKey,
		"apiSecret": f.cfg.APISecret,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrVendorAuth, "fudo authentication request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apierror.NewAPIError(apierror.ErrVendorAuth, fmt.Sprintf("fudo authentication rejected with status %d", resp.StatusCode), nil)
	}

	var authResp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return apierror.NewAPIError(apierror.ErrVendorAuth, "fudo auth response could not be decoded", err)
	}
	if authResp.Token == "" {
		return apierror.NewAPIError(apierror.ErrVendorAuth, "fudo auth response missing token", nil)
	}

	f.token = authResp.Token
	f.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn) * time.Second)
	return nil
}

func (f *FudoAdapter) FetchSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	if err := f.authenticate(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, "GET", f.baseURL+"/sales?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sales request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, "fudo sales fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		f.token = ""
		return nil, apierror.NewAPIError(apierror.ErrVendorAuth, "fudo session expired", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, fmt.Sprintf("fudo sales fetch returned status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, "failed to read fudo sales response", err)
	}

	sales, err := f.MapToTupa(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	f.lastSync = &now
	return sales, nil
}

// MapToTupa maps a raw Fudo payload to canonical sales. One canonical sale is
// produced per input record; a record that cannot be mapped fails the whole
// call identifying its index.
func (f *FudoAdapter) MapToTupa(raw []byte) ([]model.Sale, error) {
	var payload fudoSalesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "fudo payload is not valid JSON", err)
	}

	sales := make([]model.Sale, 0, len(payload.Sales))
	for i, record := range payload.Sales {
		sale, err := f.mapSale(record)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("fudo record %d (id %d) failed mapping", i, record.ID), err)
		}
		sales = append(sales, *sale)
	}
	return sales, nil
}

func (f *FudoAdapter) mapSale(record fudoSale) (*model.Sale, error) {
	if record.ID == 0 {
		return nil, fmt.Errorf("sale id is missing")
	}
	timestamp, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("createdAt %q is not a valid timestamp: %w", record.CreatedAt, err)
	}
	if len(record.Items) == 0 {
		return nil, fmt.Errorf("sale has no items")
	}

	items := make([]model.SaleItem, 0, len(record.Items))
	for _, it := range record.Items {
		category := it.Product.Category
		if category == "" {
			category = model.UncategorizedCategory
		}
		items = append(items, model.SaleItem{
			Name:      it.Product.Name,
			Quantity:  it.Quantity,
			UnitPrice: decimal.NewFromFloat(it.Price),
			Category:  category,
			Modifiers: it.Comments,
		})
	}

	paymentMethod := model.PaymentOther
	if len(record.Payments) > 0 {
		if mapped, ok := fudoPaymentMethods[record.Payments[0].PaymentMethod]; ok {
			paymentMethod = mapped
		}
	}

	var customer *model.Customer
	if record.Customer != nil {
		customer = &model.Customer{
			ID:    fmt.Sprintf("%d", record.Customer.ID),
			Name:  record.Customer.Name,
			Email: record.Customer.Email,
			Phone: record.Customer.Phone,
		}
	}

	sale := &model.Sale{
		ClientID:         f.cfg.ClientID,
		Timestamp:        timestamp,
		Amount:           decimal.NewFromFloat(record.Total),
		Items:            items,
		Customer:         customer,
		PaymentMethod:    paymentMethod,
		POSTransactionID: fmt.Sprintf("fudo-%d", record.ID),
		MetaData: map[string]interface{}{
			model.MetaKeyPOSProvider: "fudo",
			"sale_state":             record.SaleState,
		},
	}
	if err := sale.Validate(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (f *FudoAdapter) ValidateConnection(ctx context.Context) (bool, error) {
	if err := f.authenticate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FudoAdapter) LastSync(_ context.Context) (*time.Time, error) {
	return f.lastSync, nil
}
