// Package adapters holds the vendor integrations. Importing it registers
// every supported vendor with the pos registry.
package adapters

import "github.com/tupahq/tupasync/pos"

func init() {
	pos.Register("fudo", pos.Registration{
		Factory:  NewFudoAdapter,
		Version:  "1.2.0",
		Features: []string{pos.FeatureSalesFetch, pos.FeatureCustomerData, pos.FeatureItemModifiers, pos.FeatureDateRange},
	})
	pos.Register("bistrosoft", pos.Registration{
		Factory:  NewBistrosoftAdapter,
		Version:  "1.0.3",
		Features: []string{pos.FeatureSalesFetch, pos.FeatureCustomerData, pos.FeatureDateRange},
	})
}
