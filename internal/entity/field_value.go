package entity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ValueKind tags which variant a FieldValue holds.
type ValueKind string

const (
	KindMoney      ValueKind = "money"
	KindDate       ValueKind = "date"
	KindString     ValueKind = "string"
	KindPercentage ValueKind = "percentage"
)

// dateLayouts are the date shapes accepted when parsing extracted text.
var dateLayouts = []string{
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// FieldValue is a single extracted value. Raw keeps the text exactly as it was
// found in the document; the typed accessor for Kind holds the parsed value.
type FieldValue struct {
	kind    ValueKind
	raw     string
	amount  float64
	date    time.Time
	percent float64
}

// Money builds a monetary value from the document text.
func Money(raw string) (FieldValue, error) {
	amount, err := ParseAmount(raw)
	if err != nil {
		return FieldValue{}, err
	}
	return FieldValue{kind: KindMoney, raw: raw, amount: amount}, nil
}

// Date builds a date value from the document text.
func Date(raw string) (FieldValue, error) {
	t, err := ParseDate(raw)
	if err != nil {
		return FieldValue{}, err
	}
	return FieldValue{kind: KindDate, raw: raw, date: t}, nil
}

// Percentage builds a percentage value; "7.65%" holds 7.65.
func Percentage(raw string) (FieldValue, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return FieldValue{}, errors.Wrapf(err, "parse percentage %q", raw)
	}
	return FieldValue{kind: KindPercentage, raw: raw, percent: p}, nil
}

// Text builds a free-form string value.
func Text(raw string) FieldValue {
	return FieldValue{kind: KindString, raw: raw}
}

// ParseFieldValue rebuilds a value of the given kind from its raw text.
func ParseFieldValue(kind ValueKind, raw string) (FieldValue, error) {
	switch kind {
	case KindMoney:
		return Money(raw)
	case KindDate:
		return Date(raw)
	case KindPercentage:
		return Percentage(raw)
	case KindString, "":
		return Text(raw), nil
	default:
		return FieldValue{}, errors.Newf("unknown value kind %q", kind)
	}
}

func (v FieldValue) Kind() ValueKind { return v.kind }

// Raw returns the value as it appeared in the document.
func (v FieldValue) Raw() string { return v.raw }

// IsZero reports whether v was never set.
func (v FieldValue) IsZero() bool { return v.kind == "" }

// Amount returns the monetary amount; ok is false for other kinds.
func (v FieldValue) Amount() (float64, bool) {
	return v.amount, v.kind == KindMoney
}

// Time returns the date; ok is false for other kinds.
func (v FieldValue) Time() (time.Time, bool) {
	return v.date, v.kind == KindDate
}

// Percent returns the percentage; ok is false for other kinds.
func (v FieldValue) Percent() (float64, bool) {
	return v.percent, v.kind == KindPercentage
}

// String renders the value for display. Dates use ISO format.
func (v FieldValue) String() string {
	switch v.kind {
	case KindMoney:
		return strconv.FormatFloat(v.amount, 'f', 2, 64)
	case KindDate:
		return v.date.Format("2006-01-02")
	case KindPercentage:
		return strconv.FormatFloat(v.percent, 'f', -1, 64) + "%"
	default:
		return v.raw
	}
}

// MarshalJSON encodes the value as a plain JSON scalar: numbers for money and
// percentages, strings for dates (ISO) and text.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMoney:
		return json.Marshal(v.amount)
	case KindPercentage:
		return json.Marshal(v.percent)
	case KindDate:
		return json.Marshal(v.date.Format("2006-01-02"))
	case KindString:
		return json.Marshal(v.raw)
	default:
		return []byte("null"), nil
	}
}

// ParseAmount parses "$1,234.56", "1234.56" or "(12.00)" into a float.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, errors.Newf("parse amount %q: empty", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse amount %q", raw)
	}
	if neg {
		f = -f
	}
	return f, nil
}

// ParseDate parses the date shapes commonly printed on paystubs.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("parse date %q: unrecognized format", raw)
}
