package shared

import (
	"bytes"
	"fmt"
	"time"
)

const dateOnlyFormat = "2006-01-02"

// DateOnly is a calendar date carried as "YYYY-MM-DD" in JSON.
type DateOnly time.Time

// UnmarshalJSON accepts a quoted date or null.
func (d *DateOnly) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = DateOnly(time.Time{})
		return nil
	}
	raw := bytes.Trim(data, `"`)
	t, err := time.Parse(dateOnlyFormat, string(raw))
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	*d = DateOnly(t)
	return nil
}

// MarshalJSON emits the quoted date, null for the zero value.
func (d DateOnly) MarshalJSON() ([]byte, error) {
	t := time.Time(d)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(dateOnlyFormat) + `"`), nil
}

// Time converts to *time.Time, nil for a nil or zero date.
func (d *DateOnly) Time() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	if t.IsZero() {
		return nil
	}
	return &t
}
