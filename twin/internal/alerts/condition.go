package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// evalCondition evaluates a rule condition against an aging evaluation.
//
// Supported expressions (field operator value):
//
//	degradation >= 0.1
//	capacity < 0.8
//	f_cyc > 0.05
//	f_cal > 0.05
//
// capacity is the remaining fraction, 1 − degradation.
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, p types.AgingPoint) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	v, ok := numericField(field, p)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the evaluation.
func numericField(field string, p types.AgingPoint) (float64, bool) {
	switch field {
	case "degradation":
		return p.Degradation, true
	case "capacity":
		return 1 - p.Degradation, true
	case "f_cal":
		return p.FCal, true
	case "f_cyc":
		return p.FCyc, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
