package contracts

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Kind names the JSON shape a field rule accepts.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Rule is a closed set of field checks. Only the types declared in this
// package implement it: String, Integer, Number, Array and Object.
type Rule interface {
	Kind() Kind
	check(value any, field, label string) []string
	describe(doc *FieldDoc)
}

// String accepts string values with an optional minimum length counted in
// characters.
type String struct {
	MinLength int
}

// Integer accepts whole numbers within optional bounds.
type Integer struct {
	Bounds Bounds
}

// Number accepts any numeric value within optional bounds.
type Number struct {
	Bounds Bounds
}

// Array accepts lists with an optional minimum item count.
type Array struct {
	MinItems int
}

// Object accepts key/value mappings. Arrays and null are rejected.
type Object struct{}

func (String) Kind() Kind  { return KindString }
func (Integer) Kind() Kind { return KindInteger }
func (Number) Kind() Kind  { return KindNumber }
func (Array) Kind() Kind   { return KindArray }
func (Object) Kind() Kind  { return KindObject }

func (r String) check(value any, field, label string) []string {
	s, ok := value.(string)
	if !ok {
		return []string{typeViolation(label, field, "a string", value)}
	}
	if r.MinLength > 0 {
		if n := utf8.RuneCountInString(s); n < r.MinLength {
			return []string{fmt.Sprintf("%s: field '%s' must be at least %d characters (got %d)", label, field, r.MinLength, n)}
		}
	}
	return nil
}

func (r Integer) check(value any, field, label string) []string {
	n, ok := AsNumber(value)
	if !ok || !isWhole(n) {
		return []string{typeViolation(label, field, "an integer", value)}
	}
	return r.Bounds.check(n, field, label)
}

func (r Number) check(value any, field, label string) []string {
	n, ok := AsNumber(value)
	if !ok {
		return []string{typeViolation(label, field, "a number", value)}
	}
	return r.Bounds.check(n, field, label)
}

func (r Array) check(value any, field, label string) []string {
	items, ok := AsList(value)
	if !ok {
		return []string{typeViolation(label, field, "an array", value)}
	}
	if r.MinItems > 0 && len(items) < r.MinItems {
		return []string{fmt.Sprintf("%s: field '%s' must contain at least %d items (got %d)", label, field, r.MinItems, len(items))}
	}
	return nil
}

func (Object) check(value any, field, label string) []string {
	if _, ok := AsObject(value); !ok {
		return []string{typeViolation(label, field, "an object", value)}
	}
	return nil
}

// Bounds is an optional inclusive numeric range. The zero value is unbounded.
type Bounds struct {
	min, max       float64
	hasMin, hasMax bool
}

// Between bounds a value to [min, max].
func Between(min, max float64) Bounds {
	return Bounds{min: min, max: max, hasMin: true, hasMax: true}
}

// AtLeast bounds a value from below.
func AtLeast(min float64) Bounds {
	return Bounds{min: min, hasMin: true}
}

// Min returns the lower bound, if any.
func (b Bounds) Min() (float64, bool) { return b.min, b.hasMin }

// Max returns the upper bound, if any.
func (b Bounds) Max() (float64, bool) { return b.max, b.hasMax }

func (b Bounds) check(n float64, field, label string) []string {
	var errs []string
	if b.hasMin && n < b.min {
		errs = append(errs, fmt.Sprintf("%s: field '%s' must be >= %s (got %s)", label, field, formatNumber(b.min), formatNumber(n)))
	}
	if b.hasMax && n > b.max {
		errs = append(errs, fmt.Sprintf("%s: field '%s' must be <= %s (got %s)", label, field, formatNumber(b.max), formatNumber(n)))
	}
	return errs
}

// Field binds a rule to a named key of a stage output.
type Field struct {
	Name     string
	Rule     Rule
	Optional bool
}

// Required reports whether the field must be present.
func (f Field) Required() bool {
	return !f.Optional
}

// Opt returns a copy of the field marked optional.
func (f Field) Opt() Field {
	f.Optional = true
	return f
}

// Str declares a string field. A minLength of zero disables the length check.
func Str(name string, minLength int) Field {
	return Field{Name: name, Rule: String{MinLength: minLength}}
}

// Int declares an integer field.
func Int(name string, bounds Bounds) Field {
	return Field{Name: name, Rule: Integer{Bounds: bounds}}
}

// Num declares a numeric field.
func Num(name string, bounds Bounds) Field {
	return Field{Name: name, Rule: Number{Bounds: bounds}}
}

// Arr declares an array field.
func Arr(name string, minItems int) Field {
	return Field{Name: name, Rule: Array{MinItems: minItems}}
}

// Obj declares an object field.
func Obj(name string) Field {
	return Field{Name: name, Rule: Object{}}
}

// Spec is an ordered list of field rules. Names are unique within a spec.
type Spec []Field

// Lookup finds a field by name.
func (s Spec) Lookup(name string) (Field, bool) {
	for _, field := range s {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Names returns field names in declaration order.
func (s Spec) Names() []string {
	names := make([]string, 0, len(s))
	for _, field := range s {
		names = append(names, field.Name)
	}
	return names
}

// HasRequired reports whether any field in the spec is required.
func (s Spec) HasRequired() bool {
	for _, field := range s {
		if field.Required() {
			return true
		}
	}
	return false
}

func (s Spec) clone() Spec {
	if len(s) == 0 {
		return nil
	}
	out := make(Spec, len(s))
	copy(out, s)
	return out
}

func isWhole(n float64) bool {
	return !math.IsInf(n, 0) && !math.IsNaN(n) && math.Trunc(n) == n
}

func typeViolation(label, field, want string, value any) string {
	return fmt.Sprintf("%s: field '%s' must be %s (got %s)", label, field, want, TypeName(value))
}

func formatNumber(n float64) string {
	if isWhole(n) && math.Abs(n) < 1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
