package machine

// Universe names the constants resolvable without any local or global
// binding: the built-in classes every program can reference by bare name
// (Object, Integer, String, ...) regardless of what a given module declares.
// It must not be modified at runtime; Thread.Consts holds the actual class
// values and may be extended freely per-program.
var Universe = map[string]Value{
	"Object":      nil,
	"Integer":     nil,
	"Float":       nil,
	"String":      nil,
	"Symbol":      nil,
	"Boolean":     nil,
	"NilClass":    nil,
	"Array":       nil,
	"Hash":        nil,
	"Range":       nil,
	"Proc":        nil,
	"RuntimeError": nil,
}

// IsUniverse reports whether name is one of the predeclared built-in
// constants, for the resolver's isUniversal callback (see
// internal/maincmd/resolve.go).
func IsUniverse(name string) bool {
	_, ok := Universe[name]
	return ok
}

// NewObjectClassHierarchy builds the root Object class plus the built-in
// leaf classes bare references in Universe resolve to at runtime, wired into
// consts the way a fresh Thread's Consts table should be seeded.
func NewObjectClassHierarchy() (*Class, map[string]Value) {
	object := NewClass("Object", nil)
	consts := map[string]Value{"Object": object}
	for _, name := range []string{
		"Integer", "Float", "String", "Symbol", "Boolean", "NilClass",
		"Array", "Hash", "Range", "Proc", "RuntimeError",
	} {
		cls := NewClass(name, object)
		consts[name] = cls
		object.Consts[name] = cls
	}
	return object, consts
}
