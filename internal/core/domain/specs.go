package domain

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

type SpecKind uint8

const (
	SpecString SpecKind = iota + 1
	SpecNumber
	SpecBool
	SpecNested
)

// SpecValue is one product attribute: a string, number, bool or nested Specs.
type SpecValue struct {
	kind   SpecKind
	str    string
	num    float64
	flag   bool
	nested Specs
}

func StringSpec(s string) SpecValue  { return SpecValue{kind: SpecString, str: s} }
func NumberSpec(n float64) SpecValue { return SpecValue{kind: SpecNumber, num: n} }
func BoolSpec(b bool) SpecValue      { return SpecValue{kind: SpecBool, flag: b} }
func NestedSpec(s Specs) SpecValue   { return SpecValue{kind: SpecNested, nested: s.clone()} }

func (v SpecValue) Kind() SpecKind { return v.kind }

func (v SpecValue) AsString() (string, bool) { return v.str, v.kind == SpecString }

func (v SpecValue) AsNumber() (float64, bool) { return v.num, v.kind == SpecNumber }

func (v SpecValue) AsBool() (bool, bool) { return v.flag, v.kind == SpecBool }

func (v SpecValue) AsNested() (Specs, bool) { return v.nested.clone(), v.kind == SpecNested }

func (v SpecValue) Equal(o SpecValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case SpecString:
		return v.str == o.str
	case SpecNumber:
		return v.num == o.num
	case SpecBool:
		return v.flag == o.flag
	case SpecNested:
		return v.nested.Equal(o.nested)
	}
	return true
}

func (v SpecValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case SpecString:
		return json.Marshal(v.str)
	case SpecNumber:
		return json.Marshal(v.num)
	case SpecBool:
		return json.Marshal(v.flag)
	case SpecNested:
		return json.Marshal(v.nested)
	}
	return []byte("null"), nil
}

func (v *SpecValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty spec value")
	}
	switch data[0] {
	case 'n':
		return errors.New("spec value cannot be null")
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringSpec(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolSpec(b)
	case '{':
		var s Specs
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = SpecValue{kind: SpecNested, nested: s}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Wrap(err, "unsupported spec value")
		}
		*v = NumberSpec(n)
	}
	return nil
}

// Specs is an open set of product attributes.
type Specs struct {
	fields map[string]SpecValue
}

func NewSpecs(fields map[string]SpecValue) Specs {
	s := Specs{fields: make(map[string]SpecValue, len(fields))}
	for k, v := range fields {
		s.fields[k] = v
	}
	return s
}

func (s Specs) clone() Specs {
	return NewSpecs(s.fields)
}

func (s Specs) Get(key string) (SpecValue, bool) {
	v, ok := s.fields[key]
	return v, ok
}

func (s Specs) Has(key string) bool {
	_, ok := s.fields[key]
	return ok
}

func (s Specs) Len() int {
	return len(s.fields)
}

func (s Specs) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy carrying key=v.
func (s Specs) With(key string, v SpecValue) Specs {
	out := s.clone()
	out.fields[key] = v
	return out
}

func (s Specs) Equal(o Specs) bool {
	if len(s.fields) != len(o.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := o.fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (s Specs) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.fields)
}

func (s *Specs) UnmarshalJSON(data []byte) error {
	fields := map[string]SpecValue{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	s.fields = fields
	return nil
}
