package modeling

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// TransformSeparator splits "TV|LOG" style names into base and transformation.
	TransformSeparator = "|"
	// AdstockInfix is how the statistics service names adstocked columns: "TV_adstock_30".
	AdstockInfix = "_adstock_"
	// WeightedSuffix is appended by the service to composite variable names.
	WeightedSuffix = "|WGTD"
)

// AdstockRate is a decay fraction in [0,1]
type AdstockRate float64

// RateFromPercent converts a 0–100 percentage to a rate
func RateFromPercent(pct int) AdstockRate {
	return AdstockRate(float64(pct) / 100)
}

// Percent returns the rate as a whole percentage
func (r AdstockRate) Percent() int {
	return int(math.Round(float64(r) * 100))
}

// Valid reports whether the rate lies in [0,1]
func (r AdstockRate) Valid() bool {
	f := float64(r)
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// AdstockLabel is the display label for a sweep variant. Rate 0 keeps the bare name.
func AdstockLabel(variable string, pct int) string {
	if pct == 0 {
		return variable
	}
	return fmt.Sprintf("%s (Adstock %d%%)", variable, pct)
}

// AdstockColumn is the service-side column name for variable at pct.
func AdstockColumn(variable string, pct int) string {
	if pct == 0 {
		return variable
	}
	return variable + AdstockInfix + strconv.Itoa(pct)
}

// BaseVariableOf resolves the untransformed variable behind name. The second
// return value is false when name is not a transformed column.
func BaseVariableOf(name string) (string, bool) {
	if i := strings.Index(name, TransformSeparator); i > 0 {
		return name[:i], true
	}
	if i := strings.Index(name, AdstockInfix); i > 0 {
		return name[:i], true
	}
	return name, false
}

// WeightedName is the composite name the service derives from a base name
func WeightedName(baseName string) string {
	if strings.HasSuffix(baseName, WeightedSuffix) {
		return baseName
	}
	return baseName + WeightedSuffix
}
