package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

var ErrUnknownInterval = errors.New("unknown date interval")

type Interval string

const (
	IntervalYear   Interval = "year"
	IntervalMonth  Interval = "month"
	IntervalWeek   Interval = "week"
	IntervalDay    Interval = "day"
	IntervalHour   Interval = "hour"
	IntervalMinute Interval = "minute"
	IntervalSecond Interval = "second"
)

// Bucket truncates t, in UTC, to the start of its interval. Weeks start on Monday.
func (iv Interval) Bucket(t time.Time) (time.Time, error) {
	t = t.UTC()
	y, m, d := t.Date()
	switch Interval(strings.ToLower(string(iv))) {
	case IntervalYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), nil
	case IntervalMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
	case IntervalWeek:
		back := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, time.UTC), nil
	case IntervalDay:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case IntervalHour:
		return t.Truncate(time.Hour), nil
	case IntervalMinute:
		return t.Truncate(time.Minute), nil
	case IntervalSecond:
		return t.Truncate(time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownInterval, string(iv))
	}
}

type GroupByDateParams struct {
	KeysColumn string
	Columns    Columns
	Operation  Operation
	Interval   Interval
}

// TimeBucket is one series point. Name is the bucket start in unix ms.
type TimeBucket struct {
	Name  int64  `json:"name"`
	Value Scalar `json:"value"`
}

// GroupByDate buckets records by the date in the keys column. Records with
// an unparsable date are skipped, as are null values for every operation.
// Buckets are returned in ascending time order.
func GroupByDate(records []tile.Record, p GroupByDateParams) ([]TimeBucket, error) {
	if p.KeysColumn == "" {
		return nil, fmt.Errorf("%w: keys column", ErrMissingColumn)
	}
	r, err := newReducer(p.Operation)
	if err != nil {
		return nil, err
	}
	if err := p.Columns.check(); err != nil {
		return nil, err
	}
	if _, err := p.Interval.Bucket(time.Unix(0, 0)); err != nil {
		return nil, err
	}

	buckets := map[int64][]float64{}
	for _, rec := range records {
		raw, _ := rec.Get(p.KeysColumn)
		ts, ok := parseTime(raw)
		if !ok {
			continue
		}
		b, _ := p.Interval.Bucket(ts)
		k := b.UnixMilli()
		vals := buckets[k]
		if v, ok := p.Columns.value(rec); ok {
			vals = append(vals, v)
		}
		buckets[k] = vals
	}

	out := make([]TimeBucket, 0, len(buckets))
	for k, vals := range buckets {
		s, err := r.reduce(vals)
		if err != nil {
			return nil, err
		}
		out = append(out, TimeBucket{Name: k, Value: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts unix milliseconds, time.Time and common ISO layouts.
// Layouts without a zone are read as UTC.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case nil, bool:
		return time.Time{}, false
	}
	if ms, ok := tile.AsNumber(v); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}
