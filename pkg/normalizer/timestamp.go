package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

// Epoch values above this are taken to be milliseconds.
const millisThreshold = 1e12

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Monday, January 2, 2006 at 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006",
}

// ParseTimestamp converts an epoch number or a formatted date into epoch
// seconds. A nil or blank value is absent and returns nil without error.
// Dates without a zone are read as UTC.
func ParseTimestamp(v any) (*int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		return epoch(float64(t))
	case int64:
		return epoch(float64(t))
	case float64:
		return epoch(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, t.String())
		}
		return epoch(f)
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		sec := t.Unix()
		return &sec, nil
	case string:
		return parseTimeString(t)
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrUnparseableTimestamp, v)
}

func parseTimeString(raw string) (*int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epoch(float64(n))
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			sec := t.Unix()
			return &sec, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, s)
}

func epoch(f float64) (*int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableTimestamp, f)
	}
	if f > millisThreshold {
		f /= 1000
	}
	sec := int64(f)
	return &sec, nil
}
