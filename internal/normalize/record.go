// Package normalize turns loosely typed request descriptions into the
// fixed four-field record that rules are evaluated against.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	FieldIP      = "ip"
	FieldRequest = "req"
	FieldUA      = "ua"
	FieldStatus  = "st"
)

// Record is a normalized request.
type Record struct {
	IP     string `json:"ip"`
	Req    string `json:"req"`
	UA     string `json:"ua"`
	Status int    `json:"st"`
}

// Fields builds a Record from any mapping. Missing values become "" or 0.
// The status is kept only when its string form is all decimal digits, so
// negative numbers and non-numeric text silently become 0.
func Fields(in map[string]any) Record {
	return Record{
		IP:     String(in[FieldIP]),
		Req:    String(in[FieldRequest]),
		UA:     String(in[FieldUA]),
		Status: status(in[FieldStatus]),
	}
}

// Field returns the value of a named field as text. Unknown names yield "".
func (r Record) Field(name string) string {
	switch name {
	case FieldIP:
		return r.IP
	case FieldRequest:
		return r.Req
	case FieldUA:
		return r.UA
	case FieldStatus:
		return strconv.Itoa(r.Status)
	default:
		return ""
	}
}

func (r Record) Map() map[string]any {
	return map[string]any{
		FieldIP:      r.IP,
		FieldRequest: r.Req,
		FieldUA:      r.UA,
		FieldStatus:  r.Status,
	}
}

// String renders a loosely typed value as text. nil renders as "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// status keeps only values written as plain digits. Floats never qualify,
// even whole ones: 200.0 is not a status.
func status(v any) int {
	switch v.(type) {
	case float32, float64:
		return 0
	}
	s := String(v)
	if !allDigits(s) {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
