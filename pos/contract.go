package pos

import (
	"context"
	"time"

	"github.com/tupahq/tupasync/model"
)

// Adapter features advertised through the registry.
const (
	FeatureSalesFetch    = "sales_fetch"
	FeatureCustomerData  = "customer_data"
	FeatureItemModifiers = "item_modifiers"
	FeatureDateRange     = "date_range"
)

// Adapter is the contract every vendor integration implements. Mapping is
// pure and total: MapToTupa must produce one canonical sale for every raw
// record or fail with a validation error identifying the offending record; it
// never silently drops data.
type Adapter interface {
	Name() string
	FetchSales(ctx context.Context, from, to time.Time) ([]model.Sale, error)
	MapToTupa(raw []byte) ([]model.Sale, error)
	ValidateConnection(ctx context.Context) (bool, error)
	LastSync(ctx context.Context) (*time.Time, error)
	SupportedFeatures() []string
}
