package adapters

import (
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

const (
	bistrosoftDefaultBaseURL = "https://api.bistrosoft.com/v1"
	bistrosoftTimeLayout     = "2006-01-02 15:04:05"
)

// bistrosoftPaymentMethods normalizes Bistrosoft's payment vocabulary.
var bistrosoftPaymentMethods = map[string]model.PaymentMethod{
	"efectivo":      model.PaymentCash,
	"credito":       model.PaymentCreditCard,
	"debito":        model.PaymentDebitCard,
	"transferencia": model.PaymentBankTransfer,
	"mercadopago":   model.PaymentDigitalWallet,
	"cheque":        model.PaymentCheck,
}

type bistrosoftSalesPayload struct {
	Ventas []bistrosoftSale `json:"ventas"`
}

type bistrosoftSale struct {
	Codigo       string               `json:"codigo"`
	Fecha        string               `json:"fecha"`
	ImporteTotal float64              `json:"importe_total"`
	MedioPago    string               `json:"medio_pago"`
	Cliente      *bistrosoftCustomer  `json:"cliente,omitempty"`
	Detalle      []bistrosoftLineItem `json:"detalle"`
}

type bistrosoftCustomer struct {
	Documento string `json:"documento"`
	Nombre    string `json:"nombre"`
	Correo    string `json:"correo"`
}

type bistrosoftLineItem struct {
	Descripcion    string  `json:"descripcion"`
	Cantidad       int     `json:"cantidad"`
	PrecioUnitario float64 `json:"precio_unitario"`
	Rubro          string  `json:"rubro"`
}

// BistrosoftAdapter talks to the Bistrosoft API. The vendor uses a static
// token plus a company identifier, both config-derived.
type BistrosoftAdapter struct {
	cfg        model.ClientConfig
	baseURL    string
	httpClient *http.Client

	lastSync *time.Time
}

func NewBistrosoftAdapter(cfg model.ClientConfig) pos.Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = bistrosoftDefaultBaseURL
	}
	return &BistrosoftAdapter{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (b *BistrosoftAdapter) Name() string {
	return "bistrosoft"
}

func (b *BistrosoftAdapter) SupportedFeatures() []string {
	return []string{pos.FeatureSalesFetch, pos.FeatureCustomerData, pos.FeatureDateRange}
}

func (b *BistrosoftAdapter) vendorRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Token", b.cfg.APIKey)
	req.Header.Set("X-Company-Id", b.cfg.StoreID)
	return req, nil
}

func (b *BistrosoftAdapter) FetchSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	query := url.Values{}
	query.Set("desde", from.Format(bistrosoftTimeLayout))
	query.Set("hasta", to.Format(bistrosoftTimeLayout))

	req, err := b.vendorRequest(ctx, "/ventas", query)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, "bistrosoft sales fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apierror.NewAPIError(apierror.ErrVendorAuth, fmt.Sprintf("bistrosoft rejected credentials with status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, fmt.Sprintf("bistrosoft sales fetch returned status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrVendorFetch, "failed to read bistrosoft sales response", err)
	}

	sales, err := b.MapToTupa(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	b.lastSync = &now
	return sales, nil
}

// MapToTupa maps a raw Bistrosoft payload to canonical sales.
func (b *BistrosoftAdapter) MapToTupa(raw []byte) ([]model.Sale, error) {
	var payload bistrosoftSalesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "bistrosoft payload is not valid JSON", err)
	}

	sales := make([]model.Sale, 0, len(payload.Ventas))
	for i, record := range payload.Ventas {
		sale, err := b.mapSale(record)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("bistrosoft record %d (codigo %s) failed mapping", i, record.Codigo), err)
		}
		sales = append(sales, *sale)
	}
	return sales, nil
}

func (b *BistrosoftAdapter) mapSale(record bistrosoftSale) (*model.Sale, error) {
	if record.Codigo == "" {
		return nil, fmt.Errorf("sale codigo is missing")
	}
	timestamp, err := time.Parse(bistrosoftTimeLayout, record.Fecha)
	if err != nil {
		return nil, fmt.Errorf("fecha %q is not a valid timestamp: %w", record.Fecha, err)
	}
	if len(record.Detalle) == 0 {
		return nil, fmt.Errorf("sale has no line items")
	}

	items := make([]model.SaleItem, 0, len(record.Detalle))
	for _, it := range record.Detalle {
		category := it.Rubro
		if category == "" {
			category = model.UncategorizedCategory
		}
		items = append(items, model.SaleItem{
			Name:      it.Descripcion,
			Quantity:  it.Cantidad,
			UnitPrice: decimal.NewFromFloat(it.PrecioUnitario),
			Category:  category,
		})
	}

	paymentMethod := model.PaymentOther
	if mapped, ok := bistrosoftPaymentMethods[record.MedioPago]; ok {
		paymentMethod = mapped
	}

	var customer *model.Customer
	if record.Cliente != nil {
		customer = &model.Customer{
			Name:     record.Cliente.Nombre,
			Email:    record.Cliente.Correo,
			Document: record.Cliente.Documento,
		}
	}

	sale := &model.Sale{
		ClientID:         b.cfg.ClientID,
		Timestamp:        timestamp,
		Amount:           decimal.NewFromFloat(record.ImporteTotal),
		Items:            items,
		Customer:         customer,
		PaymentMethod:    paymentMethod,
		POSTransactionID: fmt.Sprintf("bistrosoft-%s", record.Codigo),
		MetaData: map[string]interface{}{
			model.MetaKeyPOSProvider: "bistrosoft",
			"medio_pago":             record.MedioPago,
		},
	}
	if err := sale.Validate(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (b *BistrosoftAdapter) ValidateConnection(ctx context.Context) (bool, error) {
	query := url.Values{}
	req, err := b.vendorRequest(ctx, "/ping", query)
	if err != nil {
		return false, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrVendorFetch, "bistrosoft ping failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, apierror.NewAPIError(apierror.ErrVendorAuth, "bistrosoft rejected credentials", nil)
	}
	return resp.StatusCode == http.StatusOK, nil
}

func (b *BistrosoftAdapter) LastSync(_ context.Context) (*time.Time, error) {
	return b.lastSync, nil
}
