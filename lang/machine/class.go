package machine

import "fmt"

// Class is the runtime representation of a class or module: the value
// stored in the register OCLASS/TCLASS/MODULE open and CLASS then binds
// into its enclosing constant scope. Its Methods table is populated one
// entry at a time as METHOD instructions execute the class body.
type Class struct {
	Name    string
	Super   *Class
	IsModule bool

	Methods map[string]*Function
	Consts  map[string]Value
	CVars   map[string]Value
}

var (
	_ Value       = (*Class)(nil)
	_ HasAttrs    = (*Class)(nil)
	_ HasSetField = (*Class)(nil)
)

// NewClass returns a new class named name, inheriting from super (nil for
// the root Object class).
func NewClass(name string, super *Class) *Class {
	return &Class{
		Name:    name,
		Super:   super,
		Methods: make(map[string]*Function),
		Consts:  make(map[string]Value),
		CVars:   make(map[string]Value),
	}
}

func (c *Class) String() string { return c.Name }
func (c *Class) Type() string   { return "class" }

// LookupMethod walks the superclass chain looking for name, returning the
// defining class alongside the method (needed by SUPEROP to resume the
// search one level further up).
func (c *Class) LookupMethod(name string) (*Function, *Class) {
	for cl := c; cl != nil; cl = cl.Super {
		if fn, ok := cl.Methods[name]; ok {
			return fn, cl
		}
	}
	return nil, nil
}

// IsA reports whether c is other or a descendant of other, the semantics
// behind the synthesized "===" sends rescue-clause class matching relies
// on.
func (c *Class) IsA(other *Class) bool {
	for cl := c; cl != nil; cl = cl.Super {
		if cl == other {
			return true
		}
	}
	return false
}

func (c *Class) Attr(name string) (Value, error) {
	if v, ok := c.Consts[name]; ok {
		return v, nil
	}
	if v, ok := c.CVars[name]; ok {
		return v, nil
	}
	return nil, nil
}

func (c *Class) AttrNames() []string {
	names := make([]string, 0, len(c.Consts)+len(c.CVars))
	for k := range c.Consts {
		names = append(names, k)
	}
	for k := range c.CVars {
		names = append(names, k)
	}
	return names
}

func (c *Class) SetField(name string, v Value) error {
	c.Consts[name] = v
	return nil
}

// Object is the runtime representation of an instance of a user-defined
// class: the receiver SEND dispatches against for plain "new"-allocated
// values.
type Object struct {
	Class *Class
	IVars map[string]Value
}

var (
	_ Value       = (*Object)(nil)
	_ HasAttrs    = (*Object)(nil)
	_ HasSetField = (*Object)(nil)
)

// NewObject returns a new, zero-valued instance of class cl.
func NewObject(cl *Class) *Object {
	return &Object{Class: cl, IVars: make(map[string]Value)}
}

func (o *Object) String() string { return fmt.Sprintf("#<%s>", o.Class.Name) }
func (o *Object) Type() string   { return o.Class.Name }

func (o *Object) Attr(name string) (Value, error) {
	v, ok := o.IVars[name]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (o *Object) AttrNames() []string {
	names := make([]string, 0, len(o.IVars))
	for k := range o.IVars {
		names = append(names, k)
	}
	return names
}

func (o *Object) SetField(name string, v Value) error {
	o.IVars[name] = v
	return nil
}
