package normalizer

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrUnparseableCount = errors.New("unparseable counter")
	ErrNegativeCount    = errors.New("negative counter")
)

// maxCount bounds parsed counters well below int overflow.
const maxCount = 1e15

var countPattern = regexp.MustCompile(`(?i)^(\d[\d.,\s]*)([kmb])?\b`)

var suffixes = map[string]float64{
	"k": 1e3,
	"m": 1e6,
	"b": 1e9,
}

// ParseCount reads human-readable engagement counters such as "1,234",
// "1.2K", "3 M" or "12 comments". Trailing words are ignored. The empty
// string is 0.
func ParseCount(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−") {
		return 0, ErrNegativeCount
	}

	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrUnparseableCount
	}

	digits := strings.Join(strings.Fields(m[1]), "")
	digits = strings.TrimRight(digits, ".,")
	suffix := strings.ToLower(m[2])

	var value float64
	if suffix == "" {
		n, err := groupedInt(digits)
		if err != nil {
			return 0, err
		}
		value = float64(n)
	} else {
		f, err := strconv.ParseFloat(decimalForm(digits), 64)
		if err != nil {
			return 0, ErrUnparseableCount
		}
		value = f * suffixes[suffix]
	}

	if value > maxCount {
		return 0, ErrUnparseableCount
	}
	return int(math.Round(value)), nil
}

// groupedInt accepts plain digits or digits grouped by thousands with ","
// "." or spaces already removed.
func groupedInt(s string) (int, error) {
	groups := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '.' })
	if len(groups) == 0 {
		return 0, ErrUnparseableCount
	}
	for i, g := range groups {
		if i > 0 && len(g) != 3 {
			return 0, ErrUnparseableCount
		}
	}
	n, err := strconv.Atoi(strings.Join(groups, ""))
	if err != nil {
		return 0, ErrUnparseableCount
	}
	return n, nil
}

// decimalForm turns "1,2" into "1.2" and drops thousands separators from
// "1,234.5".
func decimalForm(s string) string {
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		return strings.ReplaceAll(s, ",", "")
	case hasComma:
		idx := strings.LastIndex(s, ",")
		if len(s)-idx-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}
