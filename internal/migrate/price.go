package migrate

import (
	"math"
	"slices"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
)

// ExtractPrice returns the general-admission price in minor units: the
// first option that needs no ESN card and is open to StatusNone. Without
// such an option the price is 0.
func ExtractPrice(p legacy.PriceOptions) int {
	for _, o := range p.Options {
		if o.ESNCardRequired {
			continue
		}
		if slices.Contains(o.AllowedStatusList, legacy.StatusNone) {
			return int(math.Round(float64(o.Amount) * 100))
		}
	}
	return 0
}
