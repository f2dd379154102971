package pos

import (
	"embed"
	"fmt"
)

//go:embed fixtures/*.json
var fixtureFiles embed.FS

// LoadFixture returns the embedded simulation payload for a vendor. The
// payload is the vendor's raw wire shape, so simulation runs exercise the
// same mapping path as production fetches.
func LoadFixture(vendorKey string) ([]byte, error) {
	data, err := fixtureFiles.ReadFile(fmt.Sprintf("fixtures/%s.json", vendorKey))
	if err != nil {
		return nil, fmt.Errorf("no simulation fixture for vendor %q: %w", vendorKey, err)
	}
	return data, nil
}
