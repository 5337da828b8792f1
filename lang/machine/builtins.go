package machine

import (
	"fmt"
	"strings"
)

// builtinFunc is the shape of a method implemented in Go rather than
// compiled bytecode: the small, fixed set of operations every value of a
// given type supports natively (arithmetic, string/array/hash basics,
// Kernel I/O).
type builtinFunc func(th *Thread, self Value, args []Value, block *Function) (Value, error)

// lookupBuiltin resolves name against recv's runtime type, falling back to
// the type-agnostic Object-level builtins (class, ==, respond_to?) shared
// by every value.
func lookupBuiltin(recv Value, name string) (builtinFunc, bool) {
	var table map[string]builtinFunc
	switch recv.(type) {
	case Int, Float:
		table = numericBuiltins
	case String:
		table = stringBuiltins
	case *Array:
		table = arrayBuiltins
	case *Map:
		table = mapBuiltins
	case *Range:
		table = rangeBuiltins
	case *Class:
		table = classBuiltins
	}
	if table != nil {
		if fn, ok := table[name]; ok {
			return fn, true
		}
	}
	if fn, ok := objectBuiltins[name]; ok {
		return fn, true
	}
	return nil, false
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Nil
}

func asFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Int:
		return float64(v), true
	case Float:
		return float64(v), true
	default:
		return 0, false
	}
}

// binOp implements the register-machine ADD/SUB/MUL/DIV opcodes: "+" also
// covers String and Array concatenation (both compile to ADD, token.PLUS
// carrying no type information at lowering time), everything else is
// strictly numeric.
func binOp(name string, x, y Value) (Value, error) {
	if name == "+" {
		if xs, ok := x.(String); ok {
			ys, ok := y.(String)
			if !ok {
				return nil, fmt.Errorf("no implicit conversion into String")
			}
			return xs + ys, nil
		}
		if xa, ok := x.(*Array); ok {
			ya, ok := y.(*Array)
			if !ok {
				return nil, fmt.Errorf("no implicit conversion into Array")
			}
			out := NewArray(append([]Value{}, xa.elems...))
			out.Concat(ya)
			return out, nil
		}
	}
	return numericBinop(name, x, y)
}

func numericBinop(name string, x Value, y Value) (Value, error) {
	xi, xIsInt := x.(Int)
	yi, yIsInt := y.(Int)
	if xIsInt && yIsInt {
		switch name {
		case "+":
			return xi + yi, nil
		case "-":
			return xi - yi, nil
		case "*":
			return xi * yi, nil
		case "/":
			if yi == 0 {
				return nil, fmt.Errorf("divided by 0")
			}
			return xi / yi, nil
		case "%":
			if yi == 0 {
				return nil, fmt.Errorf("divided by 0")
			}
			return xi % yi, nil
		}
	}
	xf, ok1 := asFloat(x)
	yf, ok2 := asFloat(y)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%s can't be coerced into a numeric value", y.Type())
	}
	switch name {
	case "+":
		return Float(xf + yf), nil
	case "-":
		return Float(xf - yf), nil
	case "*":
		return Float(xf * yf), nil
	case "/":
		return Float(xf / yf), nil
	case "%":
		return Float(float64(int64(xf) % int64(yf))), nil
	}
	return nil, fmt.Errorf("unsupported numeric operator %s", name)
}

func numericCompare(name string, x, y Value) (Value, error) {
	ord, ok := x.(Ordered)
	if !ok {
		return nil, fmt.Errorf("comparison of %s with %s failed", x.Type(), y.Type())
	}
	c, err := ord.Cmp(y)
	if err != nil {
		return nil, err
	}
	switch name {
	case "<":
		return Bool(c < 0), nil
	case "<=":
		return Bool(c <= 0), nil
	case ">":
		return Bool(c > 0), nil
	case ">=":
		return Bool(c >= 0), nil
	}
	return nil, fmt.Errorf("unsupported comparison %s", name)
}

var numericBuiltins = map[string]builtinFunc{
	"+": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericBinop("+", self, arg(args, 0))
	},
	"-": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericBinop("-", self, arg(args, 0))
	},
	"*": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericBinop("*", self, arg(args, 0))
	},
	"/": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericBinop("/", self, arg(args, 0))
	},
	"%": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericBinop("%", self, arg(args, 0))
	},
	"<": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericCompare("<", self, arg(args, 0))
	},
	"<=": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericCompare("<=", self, arg(args, 0))
	},
	">": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericCompare(">", self, arg(args, 0))
	},
	">=": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return numericCompare(">=", self, arg(args, 0))
	},
	"to_s": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return String(self.String()), nil
	},
	"to_i": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		if f, ok := asFloat(self); ok {
			return Int(int64(f)), nil
		}
		return Int(0), nil
	},
	"to_f": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		f, _ := asFloat(self)
		return Float(f), nil
	},
}

var stringBuiltins = map[string]builtinFunc{
	"+": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		y, ok := arg(args, 0).(String)
		if !ok {
			return nil, fmt.Errorf("no implicit conversion into String")
		}
		return self.(String) + y, nil
	},
	"length": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(len(self.(String))), nil
	},
	"size": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(len(self.(String))), nil
	},
	"upcase": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return String(strings.ToUpper(string(self.(String)))), nil
	},
	"downcase": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return String(strings.ToLower(string(self.(String)))), nil
	},
	"to_s": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return self, nil
	},
	"to_sym": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Symbol(self.(String)), nil
	},
	"==": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		eq, err := Compare(self, arg(args, 0))
		return Bool(eq), err
	},
}

var arrayBuiltins = map[string]builtinFunc{
	"length": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(self.(*Array).Len()), nil
	},
	"size": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(self.(*Array).Len()), nil
	},
	"push": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		a := self.(*Array)
		for _, v := range args {
			a.Push(v)
		}
		return a, nil
	},
	"<<": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		a := self.(*Array)
		a.Push(arg(args, 0))
		return a, nil
	},
	"pop": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		a := self.(*Array)
		n := a.Len()
		if n == 0 {
			return Nil, nil
		}
		v := a.Index(n - 1)
		a.elems = a.elems[:n-1]
		return v, nil
	},
	"first": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return self.(*Array).Index(0), nil
	},
	"last": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return self.(*Array).Index(-1), nil
	},
	"each": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		a := self.(*Array)
		if block == nil {
			return a, nil
		}
		it := a.Iterate()
		defer it.Done()
		var v Value
		for it.Next(&v) {
			if _, err := th.call(block, blockSelf(block), []Value{v}, nil); err != nil {
				return nil, err
			}
		}
		return a, nil
	},
	"==": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		eq, err := Compare(self, arg(args, 0))
		return Bool(eq), err
	},
}

// blockSelf returns the self a block should run with: that of its
// immediately enclosing frame, or Nil if the block was defined at the top
// level with no enclosing call.
func blockSelf(block *Function) Value {
	if block == nil || len(block.Upenv) == 0 {
		return Nil
	}
	return block.Upenv[0].Self
}

var mapBuiltins = map[string]builtinFunc{
	"[]": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		v, ok, _ := self.(*Map).Get(arg(args, 0))
		if !ok {
			return Nil, nil
		}
		return v, nil
	},
	"[]=": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		m := self.(*Map)
		if err := m.SetKey(arg(args, 0), arg(args, 1)); err != nil {
			return nil, err
		}
		return arg(args, 1), nil
	},
	"size": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(self.(*Map).Len()), nil
	},
	"length": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return Int(self.(*Map).Len()), nil
	},
}

var rangeBuiltins = map[string]builtinFunc{
	"each": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		r := self.(*Range)
		if block == nil {
			return r, nil
		}
		it := r.Iterate()
		defer it.Done()
		var v Value
		for it.Next(&v) {
			if _, err := th.call(block, blockSelf(block), []Value{v}, nil); err != nil {
				return nil, err
			}
		}
		return r, nil
	},
	"first": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return self.(*Range).Low, nil
	},
	"last": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return self.(*Range).High, nil
	},
}

var classBuiltins = map[string]builtinFunc{
	"new": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		cl := self.(*Class)
		obj := NewObject(cl)
		if fn, _ := cl.Methods["initialize"]; fn != nil {
			if _, err := th.call(fn, obj, args, block); err != nil {
				return nil, err
			}
		}
		return obj, nil
	},
	"name": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return String(self.(*Class).Name), nil
	},
}

var objectBuiltins = map[string]builtinFunc{
	"class": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return th.classOf(self), nil
	},
	"==": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		eq, err := Compare(self, arg(args, 0))
		return Bool(eq), err
	},
	"===": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		if cl, ok := self.(*Class); ok {
			return Bool(th.classOf(arg(args, 0)).IsA(cl)), nil
		}
		eq, err := Compare(self, arg(args, 0))
		return Bool(eq), err
	},
	"is_a?": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		cl, ok := arg(args, 0).(*Class)
		if !ok {
			return False, nil
		}
		return Bool(th.classOf(self).IsA(cl)), nil
	},
	"nil?": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		_, ok := self.(NilType)
		return Bool(ok), nil
	},
	"to_s": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		return String(self.String()), nil
	},
	"puts": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		if len(args) == 0 {
			fmt.Fprintln(th.stdout())
		}
		for _, a := range args {
			fmt.Fprintln(th.stdout(), a.String())
		}
		return Nil, nil
	},
	"print": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		for _, a := range args {
			fmt.Fprint(th.stdout(), a.String())
		}
		return Nil, nil
	},
	"p": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		for _, a := range args {
			fmt.Fprintln(th.stdout(), a.String())
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return NewArray(args), nil
	},
	"raise": func(th *Thread, self Value, args []Value, block *Function) (Value, error) {
		if len(args) == 0 {
			return nil, NewRubyError(th.ObjectClass, "unhandled exception")
		}
		if s, ok := args[0].(String); ok {
			return nil, NewRubyError(th.ObjectClass, string(s))
		}
		return nil, &RubyError{Value: args[0]}
	},
}
