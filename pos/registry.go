package pos

import (
	"fmt"
	"sort"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

// Factory builds an adapter bound to one client's credentials.
type Factory func(cfg model.ClientConfig) Adapter

// Registration describes one vendor integration.
type Registration struct {
	Factory  Factory
	Version  string
	Features []string
}

var registry = map[string]Registration{}

// Register adds a vendor to the registry. Registration happens at process
// start from the adapters package init; there is no dynamic plugin loading.
func Register(vendorKey string, reg Registration) {
	if _, exists := registry[vendorKey]; exists {
		panic(fmt.Sprintf("pos: vendor %q registered twice", vendorKey))
	}
	registry[vendorKey] = reg
}

// GetAdapter resolves a vendor key to a configured adapter instance.
func GetAdapter(vendorKey string, cfg model.ClientConfig) (Adapter, error) {
	reg, ok := registry[vendorKey]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrUnknownVendor, fmt.Sprintf("no adapter registered for vendor %q", vendorKey), nil)
	}
	return reg.Factory(cfg), nil
}

// GetRegistration returns the registry metadata for a vendor key.
func GetRegistration(vendorKey string) (Registration, error) {
	reg, ok := registry[vendorKey]
	if !ok {
		return Registration{}, apierror.NewAPIError(apierror.ErrUnknownVendor, fmt.Sprintf("no adapter registered for vendor %q", vendorKey), nil)
	}
	return reg, nil
}

// Vendors lists the registered vendor keys in stable order.
func Vendors() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
