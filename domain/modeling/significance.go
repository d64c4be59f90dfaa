package modeling

import "math"

// Two significance thresholds coexist on purpose. Weight seeding uses the
// one-sided ~90% cut; flagging a variable as significant uses the two-sided
// ~95% cut. Product has not confirmed the split is intended.
const (
	WeightSeedTStat  = 1.645
	SignificantTStat = 1.96
)

// IsSignificant applies the two-sided threshold
func IsSignificant(tStat float64) bool {
	return math.Abs(tStat) >= SignificantTStat
}
