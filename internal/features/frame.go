package features

import (
	"fmt"
	"strings"
	"time"
)

// Frame is a month-indexed table of named numeric columns. Column order is
// preserved in insertion order.
type Frame struct {
	Dates   []time.Time
	order   []string
	columns map[string][]float64
}

// NewFrame creates a frame over the given dates with no columns.
func NewFrame(dates []time.Time) *Frame {
	d := make([]time.Time, len(dates))
	copy(d, dates)
	return &Frame{
		Dates:   d,
		columns: make(map[string][]float64),
	}
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Dates)
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the values of the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	values, ok := f.columns[name]
	return values, ok
}

// AddColumn appends a new column. Adding a column that already exists is an
// error, as is a length that does not match the row count.
func (f *Frame) AddColumn(name string, values []float64) error {
	if f.Has(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	return f.SetColumn(name, values)
}

// SetColumn adds or replaces a column.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != f.Len() {
		return fmt.Errorf("column %s has %d values but frame has %d rows", name, len(values), f.Len())
	}
	if !f.Has(name) {
		f.order = append(f.order, name)
	}
	v := make([]float64, len(values))
	copy(v, values)
	f.columns[name] = v
	return nil
}

// Fill adds or replaces a column with a constant value.
func (f *Frame) Fill(name string, value float64) error {
	values := make([]float64, f.Len())
	for i := range values {
		values[i] = value
	}
	return f.SetColumn(name, values)
}

// DropColumn removes a column if present.
func (f *Frame) DropColumn(name string) {
	if !f.Has(name) {
		return
	}
	delete(f.columns, name)
	for i, col := range f.order {
		if col == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Dates)
	for _, name := range f.order {
		out.SetColumn(name, f.columns[name])
	}
	return out
}

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month-start date by n calendar months.
func AddMonths(t time.Time, n int) time.Time {
	t = MonthStart(t)
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns periods consecutive month-start dates beginning at start.
func MonthRange(start time.Time, periods int) []time.Time {
	if periods <= 0 {
		return nil
	}
	dates := make([]time.Time, periods)
	for i := range dates {
		dates[i] = AddMonths(start, i)
	}
	return dates
}

// FormatMonth renders a date as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}

// ParseMonth accepts YYYY-MM-DD, YYYY-MM or RFC 3339 and returns the start of
// that month.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
