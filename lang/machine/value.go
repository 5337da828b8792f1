package machine

import "fmt"

// Value is the interface implemented by any value manipulated by the
// machine.
type Value interface {
	// String returns the string representation of the value.
	String() string

	// Type returns a short string describing the value's type.
	Type() string
}

// A Callable value f may be the operand of a SEND/SENDB/SUPEROP/CALL
// instruction. Clients should use Invoke, never CallInternal directly.
type Callable interface {
	Value
	Name() string
	CallInternal(th *Thread, self Value, args []Value, block *Function) (Value, error)
}

// An Ordered type is a type whose values are ordered: if x and y are of the
// same Ordered type, then x must be less than y, greater than y, or equal
// to y.
type Ordered interface {
	Value

	// Cmp compares two values x and y of the same ordered type. It returns
	// negative if x < y, positive if x > y, and zero if the values are
	// equal. Client code should not call this method directly; use Compare.
	Cmp(y Value) (int, error)
}

// A HasEqual type defines custom equality logic for its values, for types
// that are not totally Ordered but should not fall back to identity
// equality (e.g. Array, Map).
type HasEqual interface {
	Value
	Equals(y Value) (bool, error)
}

// An Iterable abstracts a sequence of values that can be walked without its
// length being known in advance (e.g. a Range).
type Iterable interface {
	Value
	Iterate() Iterator
}

// A Sequence is an Iterable of known length.
type Sequence interface {
	Iterable
	Len() int
}

// An Indexable is a sequence of known length supporting efficient random
// access (AREF/APOST).
type Indexable interface {
	Value
	Index(i int) Value
	Len() int
}

// A HasSetIndex is an Indexable whose elements may be assigned (x[i] = y).
type HasSetIndex interface {
	Indexable
	SetIndex(i int, v Value) error
}

// An Iterator provides a sequence of values to the caller. The caller must
// call Done when the iterator is no longer needed.
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// A Mapping is a mapping from keys to values, such as a Map.
type Mapping interface {
	Value
	Get(Value) (v Value, found bool, err error)
}

// A HasSetKey supports map update using x[k] = v syntax.
type HasSetKey interface {
	Mapping
	SetKey(k, v Value) error
}

// A HasAttrs value has fields or methods readable by a dot expression
// (GETIV/GETCV, or a method send). A result of (nil, nil) from Attr is
// interpreted as "no such field or method".
type HasAttrs interface {
	Value
	Attr(name string) (Value, error)
	AttrNames() []string
}

// A HasSetField value has fields writable by a dot expression (SETIV).
type HasSetField interface {
	HasAttrs
	SetField(name string, val Value) error
}

// NoSuchAttrError is returned by HasAttrs.Attr/HasSetField.SetField to
// indicate that no such field exists.
type NoSuchAttrError string

func (e NoSuchAttrError) Error() string { return string(e) }

// Bool is the type of true/false.
type Bool bool

const (
	False = Bool(false)
	True  = Bool(true)
)

var _ Value = False

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Type() string { return "bool" }

// Int is the type of an integer value.
type Int int64

var (
	_ Value   = Int(0)
	_ Ordered = Int(0)
)

func (i Int) String() string { return fmt.Sprintf("%d", int64(i)) }
func (i Int) Type() string   { return "int" }
func (i Int) Cmp(y Value) (int, error) {
	switch y := y.(type) {
	case Int:
		switch {
		case i < y:
			return -1, nil
		case i > y:
			return +1, nil
		default:
			return 0, nil
		}
	case Float:
		return floatCmp(Float(i), y), nil
	default:
		return 0, fmt.Errorf("comparison of int with %s not supported", y.Type())
	}
}

// String is the type of a string value.
type String string

var (
	_ Value     = String("")
	_ Ordered   = String("")
	_ Indexable = String("")
	_ Iterable  = String("")
)

func (s String) String() string { return string(s) }
func (s String) Type() string   { return "string" }
func (s String) Cmp(y Value) (int, error) {
	ys, ok := y.(String)
	if !ok {
		return 0, fmt.Errorf("comparison of string with %s not supported", y.Type())
	}
	switch {
	case s < ys:
		return -1, nil
	case s > ys:
		return +1, nil
	default:
		return 0, nil
	}
}
func (s String) Len() int        { return len(s) }
func (s String) Index(i int) Value { return String(s[i : i+1]) }
func (s String) Iterate() Iterator { return &stringIterator{s: string(s)} }

type stringIterator struct{ s string }

func (it *stringIterator) Next(p *Value) bool {
	if len(it.s) == 0 {
		return false
	}
	*p = String(it.s[:1])
	it.s = it.s[1:]
	return true
}
func (it *stringIterator) Done() {}

// Symbol is the type of a symbol value (an interned name, e.g. :foo). It is
// distinct from String: symbols compare by name but are never implicitly
// coerced to/from strings.
type Symbol string

var _ Value = Symbol("")

func (s Symbol) String() string { return ":" + string(s) }
func (s Symbol) Type() string   { return "symbol" }

// AsString extracts the Go string underlying a String value, if x is one.
func AsString(x Value) (string, bool) {
	s, ok := x.(String)
	return string(s), ok
}

// AsInt extracts the Go int64 underlying an Int value, if x is one.
func AsInt(x Value) (int64, bool) {
	i, ok := x.(Int)
	return int64(i), ok
}

// Truth reports the truthiness of v per Ruby semantics: only nil and false
// are falsy; every other value, including 0 and the empty string, is
// truthy.
func Truth(v Value) Bool {
	switch v := v.(type) {
	case NilType:
		return False
	case Bool:
		return v
	default:
		return True
	}
}

// Iterate returns an Iterator for x, or nil if x is not iterable.
func Iterate(x Value) Iterator {
	if it, ok := x.(Iterable); ok {
		return it.Iterate()
	}
	return nil
}

// Compare reports whether x and y are equal, per the rules of EQ/RESCUEOP
// (the latter uses it indirectly through a synthesized === send in
// practice, but Compare backs the plain Go-level equality used by Map keys
// and Array.Equals). Numeric values compare across Int/Float.
func Compare(x, y Value) (bool, error) {
	if xi, ok := x.(Int); ok {
		if yf, ok := y.(Float); ok {
			return floatCmp(Float(xi), yf) == 0, nil
		}
	}
	if xf, ok := x.(Float); ok {
		if yi, ok := y.(Int); ok {
			return floatCmp(xf, Float(yi)) == 0, nil
		}
	}
	if he, ok := x.(HasEqual); ok {
		return he.Equals(y)
	}
	if ord, ok := x.(Ordered); ok {
		if _, ok := y.(Ordered); !ok {
			return false, nil
		}
		c, err := ord.Cmp(y)
		if err != nil {
			return false, nil
		}
		return c == 0, nil
	}
	return x == y, nil
}
