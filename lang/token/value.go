package token

import "strconv"

// Value holds the decoded payload carried alongside a token produced by the
// scanner: the raw source text plus, depending on the token kind, its
// decoded string, integer or float value.
type Value struct {
	Raw    string
	String string
	Int    int64
	Float  float64
}

// Literal renders val as it should appear when the token is formatted back
// into source text (used by error messages and the disassembler). It
// returns "" for tokens that carry no literal payload.
func (tok Token) Literal(val Value) string {
	switch tok {
	case IDENT, SYMBOL:
		return val.Raw
	case STRING:
		return strconv.Quote(val.String)
	case REGEX:
		return val.Raw
	case COMMENT:
		return val.String
	case INT:
		return strconv.FormatInt(val.Int, 10)
	case FLOAT:
		return strconv.FormatFloat(val.Float, 'g', -1, 64)
	default:
		return ""
	}
}
