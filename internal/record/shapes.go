package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProductLine is one sold product on a call recording.
type ProductLine struct {
	ProductID int64   `json:"id"`
	Quantity  int64   `json:"quantity"`
	Discount  float64 `json:"discount"`
}

// ProductLines is the ordered product list on a call recording.
//
// The wire field has shape-shifted across app versions: older records carry
// a bare list of product ids, newer ones a list of {id, quantity, discount}
// objects, and the server sometimes double-encodes either form as a JSON
// string. All three decode to the object form here; nothing past this
// boundary ever sees the legacy shapes.
type ProductLines []ProductLine

// UnmarshalJSON normalizes every observed wire shape to []ProductLine.
// A bare id becomes {id, quantity: 1, discount: 0}.
func (p *ProductLines) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*p = nil
		return nil
	}

	// Double-encoded: a JSON string containing the array.
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("invalid product lines: %w", err)
		}
		return p.UnmarshalJSON([]byte(inner))
	}

	var lines []ProductLine
	if err := json.Unmarshal(data, &lines); err == nil {
		*p = lines
		return nil
	}

	// Legacy shape: bare list of product ids.
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("invalid product lines %s: %w", s, err)
	}
	lines = make([]ProductLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, ProductLine{ProductID: id, Quantity: 1})
	}
	*p = lines
	return nil
}

// ProductIDs returns the ids of the lines, in order.
func (p ProductLines) ProductIDs() []int64 {
	ids := make([]int64, 0, len(p))
	for _, line := range p {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// Date is a date-only value. The client sends "2006-01-02"; the server's
// date cast answers with a full timestamp ("2006-01-02T00:00:00.000000Z").
// Both decode here, and the value always marshals back as a plain date.
type Date struct {
	time.Time
}

// DateOf truncates a time to its date.
func DateOf(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String returns the date in "2006-01-02" form.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Equal compares two dates by calendar day.
func (d Date) Equal(other Date) bool {
	return d.String() == other.String()
}

// MarshalJSON always emits the date-only form.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a date, an RFC 3339 timestamp, or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*d = Date{}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	if t, err := time.Parse("2006-01-02", str); err == nil {
		*d = Date{t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", str, err)
	}
	*d = DateOf(t)
	return nil
}

// Decimal holds a money-ish value that the server serializes as either a
// JSON number or a decimal string. It round-trips without reformatting.
type Decimal string

// MarshalJSON emits the value as a bare number when it parses as one,
// otherwise as a string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("0"), nil
	}
	var n json.Number
	if err := json.Unmarshal([]byte(d), &n); err == nil {
		return []byte(n), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts a number, a numeric string, or null.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("invalid decimal: %w", err)
		}
		*d = Decimal(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid decimal %s: %w", s, err)
	}
	*d = Decimal(n)
	return nil
}
