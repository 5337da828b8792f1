package machine

// lookupConst resolves a bare constant reference against the innermost
// applicable scope: the class currently being opened (class-body context),
// else the owner class of the method currently executing (method-body
// context), else the program's top-level constant table.
func (th *Thread) lookupConst(fr *Frame, name string) Value {
	if cls, ok := fr.Self.(*Class); ok {
		for c := cls; c != nil; c = c.Super {
			if v, ok := c.Consts[name]; ok {
				return v
			}
		}
	}
	if owner := fr.Fn.OwnerClass; owner != nil {
		for c := owner; c != nil; c = c.Super {
			if v, ok := c.Consts[name]; ok {
				return v
			}
		}
	}
	if v, ok := th.Consts[name]; ok {
		return v
	}
	return Nil
}

// setConst mirrors lookupConst's scope priority for constant assignment.
func (th *Thread) setConst(fr *Frame, name string, v Value) {
	if cls, ok := fr.Self.(*Class); ok {
		cls.Consts[name] = v
		return
	}
	if owner := fr.Fn.OwnerClass; owner != nil {
		owner.Consts[name] = v
		return
	}
	th.Consts[name] = v
}
