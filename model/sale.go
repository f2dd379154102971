package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the normalized payment vocabulary every vendor maps into.
type PaymentMethod string

const (
	PaymentCash          PaymentMethod = "cash"
	PaymentCreditCard    PaymentMethod = "credit_card"
	PaymentDebitCard     PaymentMethod = "debit_card"
	PaymentBankTransfer  PaymentMethod = "bank_transfer"
	PaymentDigitalWallet PaymentMethod = "digital_wallet"
	PaymentCheck         PaymentMethod = "check"
	PaymentOther         PaymentMethod = "other"
)

const UncategorizedCategory = "uncategorized"

// MetaKeyPOSProvider tags every normalized sale with the vendor it came from.
const MetaKeyPOSProvider = "pos_provider"

// SaleItem is a single line of a normalized sale.
type SaleItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Category  string          `json:"category,omitempty"`
	Modifiers []string        `json:"modifiers,omitempty"`
}

// Customer holds whatever identity data the vendor exposed for the buyer.
// All fields are optional; the ERP side decides how to dedup.
type Customer struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// Sale is the canonical, vendor-agnostic sale record. Every adapter must
// produce this shape; storage and the ERP sync service consume nothing else.
type Sale struct {
	SaleID           string                 `json:"id"`
	ClientID         string                 `json:"client_id"`
	Timestamp        time.Time              `json:"timestamp"`
	Amount           decimal.Decimal        `json:"amount"`
	Items            []SaleItem             `json:"items"`
	Customer         *Customer              `json:"customer,omitempty"`
	PaymentMethod    PaymentMethod          `json:"payment_method"`
	POSTransactionID string                 `json:"pos_transaction_id"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`

	// Sync flags, owned by storage.
	Processed bool      `json:"processed"`
	ErpSynced bool      `json:"erp_synced"`
	ErpID     int64     `json:"erp_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Sale) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Validate enforces the canonical-sale invariant: a sale with an empty item
// list or a negative amount is rejected before storage or ERP submission.
func (s *Sale) Validate() error {
	// SaleID is not checked here: adapters validate before storage assigns it.
	return validation.ValidateStruct(s,
		validation.Field(&s.POSTransactionID, validation.Required),
		validation.Field(&s.Timestamp, validation.Required),
		validation.Field(&s.Amount, validation.By(nonNegativeDecimal)),
		validation.Field(&s.Items, validation.Required, validation.By(validItems)),
		validation.Field(&s.PaymentMethod, validation.Required, validation.In(
			PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer,
			PaymentDigitalWallet, PaymentCheck, PaymentOther,
		)),
	)
}

func nonNegativeDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return fmt.Errorf("amount must be a decimal")
	}
	if d.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}

func validItems(value interface{}) error {
	items, ok := value.([]SaleItem)
	if !ok {
		return fmt.Errorf("items must be a list of sale items")
	}
	if len(items) == 0 {
		return fmt.Errorf("sale must have at least one item")
	}
	for i, item := range items {
		if item.Name == "" {
			return fmt.Errorf("item %d: name is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("item %d: unit price cannot be negative", i)
		}
	}
	return nil
}

// HashSale generates a SHA-256 hash of the fields that identify a sale to the
// ERP. Used to detect payload drift between re-syncs of the same transaction.
func (s *Sale) HashSale() string {
	data := fmt.Sprintf("%s%s%s%d", s.POSTransactionID, s.Amount.String(), s.PaymentMethod, len(s.Items))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Provider returns the vendor tag recorded in the sale metadata.
func (s *Sale) Provider() string {
	if s.MetaData == nil {
		return ""
	}
	if p, ok := s.MetaData[MetaKeyPOSProvider].(string); ok {
		return p
	}
	return ""
}
