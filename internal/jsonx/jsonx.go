// Package jsonx holds JSON field types for the OpenAPI's string-encoded
// numbers, timestamps and optional decimals.
package jsonx

import (
	"bytes"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// unquote strips surrounding quotes; null becomes empty.
func unquote(b []byte) string {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return ""
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			return s
		}
		return string(b[1 : len(b)-1])
	}
	return string(b)
}

// Int64 accepts 123, "123" or "".
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "jsonx: int64 %q", s)
	}
	*i = Int64(n)
	return nil
}

func (i Int64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(i), 10))), nil
}

// Timestamp is unix seconds, as a number or a string. Empty and zero
// decode to the zero time.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" || s == "0" {
		t.Time = time.Time{}
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "jsonx: timestamp %q", s)
	}
	t.Time = time.Unix(n, 0).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`"0"`), nil
	}
	return []byte(strconv.Quote(strconv.FormatInt(t.Unix(), 10))), nil
}

// Decimal is an optional decimal; "" and null leave Valid false.
type Decimal struct {
	decimal.Decimal
	Valid bool
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" {
		*d = Decimal{}
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "jsonx: decimal %q", s)
	}
	*d = Decimal{Decimal: v, Valid: true}
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte(`""`), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

// Ptr returns nil when the value is absent.
func (d Decimal) Ptr() *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// NonZero is a Decimal where zero also counts as absent.
func (d Decimal) NonZero() *decimal.Decimal {
	if !d.Valid || d.IsZero() {
		return nil
	}
	v := d.Decimal
	return &v
}

// Date parses yyyy-mm-dd or yyyymmdd; empty is the zero time.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	layout := "2006-01-02"
	if len(s) == 8 {
		layout = "20060102"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return errors.Wrapf(err, "jsonx: date %q", s)
	}
	d.Time = t
	return nil
}
