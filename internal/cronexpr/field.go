package cronexpr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var monthAliases = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

var dayAliases = map[string]int{
	"SUN": 0, "MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6,
}

// resolveAliases swaps every known name alias for its numeric string, leaving
// everything else untouched.
func resolveAliases(field string, aliases map[string]int) string {
	upper := strings.ToUpper(field)
	for name, n := range aliases {
		if strings.Contains(upper, name) {
			upper = strings.ReplaceAll(upper, name, strconv.Itoa(n))
		}
	}
	return upper
}

// parseSimpleField parses a plain numeric cron field: wildcards, steps,
// ranges, and comma lists. Used for seconds, minutes, hours, and (after
// alias resolution) months and the numeric part of day-of-week lists.
func parseSimpleField(field string, min, max int) ([]int, error) {
	if field == "*" || field == "?" {
		return makeRange(min, max, 1), nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		partValues, err := parseFieldPart(part, min, max)
		if err != nil {
			return nil, err
		}
		values = append(values, partValues...)
	}

	values = uniqueSorted(values)
	if len(values) == 0 {
		return nil, fmt.Errorf("no values resolved for field %q", field)
	}
	return values, nil
}

func parseFieldPart(part string, min, max int) ([]int, error) {
	stepParts := strings.SplitN(part, "/", 2)
	step := 1
	if len(stepParts) == 2 {
		s, err := strconv.Atoi(stepParts[1])
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid step %q", stepParts[1])
		}
		step = s
	}

	rangeStr := stepParts[0]
	if rangeStr == "*" {
		return makeRange(min, max, step), nil
	}

	rangeParts := strings.SplitN(rangeStr, "-", 2)
	if len(rangeParts) == 2 {
		lo, err := strconv.Atoi(rangeParts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q", rangeParts[0])
		}
		hi, err := strconv.Atoi(rangeParts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q", rangeParts[1])
		}
		if lo < min || hi > max || lo > hi {
			return nil, fmt.Errorf("range %d-%d out of bounds [%d, %d]", lo, hi, min, max)
		}
		return makeRange(lo, hi, step), nil
	}

	v, err := strconv.Atoi(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q", rangeStr)
	}
	if v < min || v > max {
		return nil, fmt.Errorf("value %d out of bounds [%d, %d]", v, min, max)
	}
	return []int{v}, nil
}

func makeRange(start, end, step int) []int {
	out := make([]int, 0, (end-start)/step+1)
	for i := start; i <= end; i += step {
		out = append(out, i)
	}
	return out
}

func uniqueSorted(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func containsSorted(sorted []int, v int) bool {
	i := sort.SearchInts(sorted, v)
	return i < len(sorted) && sorted[i] == v
}
