package tabular

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Operator names accepted by Filter.
const (
	OpEq       = "eq"
	OpGt       = "gt"
	OpLt       = "lt"
	OpGte      = "gte"
	OpLte      = "lte"
	OpContains = "contains"
	OpRegex    = "regex"
)

// Aggregate operation names.
const (
	AggSum     = "sum"
	AggAvg     = "avg"
	AggMin     = "min"
	AggMax     = "max"
	AggCount   = "count"
	AggGroupBy = "group_by"
)

// Condition is one filter predicate: column OP value.
type Condition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Filter returns the rows satisfying every condition (AND conjunction).
// An empty condition list returns all rows unchanged. An invalid regex
// pattern makes its predicate false rather than raising.
func Filter(rows []map[string]string, conditions []Condition) []map[string]string {
	if len(conditions) == 0 {
		return rows
	}

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		if matchesAll(row, conditions) {
			out = append(out, row)
		}
	}
	return out
}

func matchesAll(row map[string]string, conditions []Condition) bool {
	for _, c := range conditions {
		if !matches(row[c.Column], c) {
			return false
		}
	}
	return true
}

func matches(value string, c Condition) bool {
	switch c.Operator {
	case OpEq:
		return value == c.Value
	case OpGt:
		return compare(value, c.Value) > 0
	case OpLt:
		return compare(value, c.Value) < 0
	case OpGte:
		return compare(value, c.Value) >= 0
	case OpLte:
		return compare(value, c.Value) <= 0
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(c.Value))
	case OpRegex:
		re, err := regexp.Compile("(?i)" + c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

// compare orders two cell values: numerically when both coerce, else
// lexicographically.
func compare(a, b string) int {
	av, aok := coerceNumeric(a)
	bv, bok := coerceNumeric(b)
	if aok && bok {
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// Aggregate computes op over column. Non-numeric values are silently excluded
// from sum/avg/min/max; an empty numeric set yields 0. Count ignores column.
// GroupBy accumulates a running sum of column per group key, where the key is
// the "|"-joined string of the groupBy column values (≥1 column required).
//
// Scalar ops return float64; group_by returns map[string]float64.
func Aggregate(rows []map[string]string, op, column string, groupBy []string) (any, error) {
	switch op {
	case AggCount:
		return float64(len(rows)), nil
	case AggSum, AggAvg, AggMin, AggMax:
		return scalarAggregate(rows, op, column), nil
	case AggGroupBy:
		if len(groupBy) == 0 {
			return nil, fmt.Errorf("group_by requires at least one grouping column")
		}
		return groupSums(rows, column, groupBy), nil
	default:
		return nil, fmt.Errorf("unknown aggregate operation %q", op)
	}
}

func scalarAggregate(rows []map[string]string, op, column string) float64 {
	values := numericColumn(rows, column)
	if len(values) == 0 {
		return 0
	}

	switch op {
	case AggSum:
		return sum(values)
	case AggAvg:
		return sum(values) / float64(len(values))
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	}
	return 0
}

func groupSums(rows []map[string]string, column string, groupBy []string) map[string]float64 {
	sums := make(map[string]float64)
	keyParts := make([]string, len(groupBy))
	for _, row := range rows {
		for i, col := range groupBy {
			keyParts[i] = row[col]
		}
		key := strings.Join(keyParts, "|")
		if v, ok := coerceNumeric(row[column]); ok {
			sums[key] += v
		} else {
			sums[key] += 0 // group appears even when the value is non-numeric
		}
	}
	return sums
}

// Search returns rows where term appears as a case-insensitive substring in
// any of the chosen columns (or any column at all when columns is empty).
func Search(rows []map[string]string, term string, columns []string) []map[string]string {
	lowered := strings.ToLower(term)
	out := make([]map[string]string, 0)
	for _, row := range rows {
		if len(columns) == 0 {
			for _, v := range row {
				if strings.Contains(strings.ToLower(v), lowered) {
					out = append(out, row)
					break
				}
			}
			continue
		}
		for _, col := range columns {
			if v, ok := row[col]; ok && strings.Contains(strings.ToLower(v), lowered) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// ColumnStats summarizes the numeric-coercible values of one column.
type ColumnStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"` // population: divide by N
	Q1     float64 `json:"q1"`      // sorted-index truncation, not interpolated
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
}

// Stats computes descriptive statistics over column's numeric values.
// Non-numeric cells are excluded; an empty numeric set yields zero stats.
func Stats(rows []map[string]string, column string) ColumnStats {
	values := numericColumn(rows, column)
	n := len(values)
	if n == 0 {
		return ColumnStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	total := sum(values)
	mean := total / float64(n)

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}

	return ColumnStats{
		Count:  n,
		Sum:    total,
		Mean:   mean,
		Min:    sorted[0],
		Max:    sorted[n-1],
		StdDev: math.Sqrt(sqDiff / float64(n)),
		Q1:     sorted[int(float64(n)*0.25)],
		Median: sorted[int(float64(n)*0.5)],
		Q3:     sorted[int(float64(n)*0.75)],
	}
}

func numericColumn(rows []map[string]string, column string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := coerceNumeric(row[column]); ok {
			values = append(values, v)
		}
	}
	return values
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
