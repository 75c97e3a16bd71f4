package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Value is a single CSV cell, decided once at parse time to be either a
// number or text.
type Value struct {
	num    float64
	text   string
	isText bool
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{num: f}
}

// Text returns a textual Value.
func Text(s string) Value {
	return Value{text: s, isText: true}
}

// ParseValue coerces a raw cell. The cell becomes a number when its trimmed
// form parses as a finite decimal float; anything else, including "", "NaN",
// "Inf" and hex notation such as "0x1p4", is kept verbatim as text.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" || isHex(s) {
		return Text(raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Text(raw)
	}
	return Number(f)
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// IsNumber reports whether the cell was numeric.
func (v Value) IsNumber() bool { return !v.isText }

// Float returns the numeric value and true, or 0 and false for text.
func (v Value) Float() (float64, bool) {
	if v.isText {
		return 0, false
	}
	return v.num, true
}

// String returns the text, or the shortest decimal form of the number.
func (v Value) String() string {
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isText {
		return json.Marshal(v.text)
	}
	return json.Marshal(v.num)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("value must be a JSON number or string")
	}
	*v = Text(s)
	return nil
}

// Field is one named column of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is one CSV row with fields in header order.
type Record []Field

// Get returns the first field named name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Columns returns the field names in order.
func (r Record) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Name
	}
	return cols
}

// MarshalJSON encodes the record as an object whose keys keep column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, preserving key order.
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record must be a JSON object")
	}
	out := Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, Field{Name: name, Value: v})
	}
	*r = out
	return nil
}
