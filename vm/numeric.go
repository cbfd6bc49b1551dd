package scm

import (
	"fmt"
	"strconv"
	"strings"
)

/*
	parseNumberToken implements the reader's numeric lexer: an optional
	radix prefix (#x #o #b #d) and exactness prefix (#e #i) in either
	order, followed by a sign, digits, and -- for the inexact/decimal case
	-- a decimal point. Bignums and exact rationals are out of the VM's
	scope (fixnum is the only exact integer representation), so a
	numerator/denominator or an integer literal too large for a fixnum
	reads successfully as a datum but is reported via an error here,
	matching the reader's job of recognizing number syntax without
	silently truncating precision.

	Returning an error (rather than panicking or defaulting to a symbol)
	lets readAtom fall back to treating the token as a symbol when it
	merely looks numeric-ish (e.g. "1+" is a valid identifier in some
	Schemes); the reader therefore tries numeric parsing first and only
	commits to a symbol on failure.
*/
func parseNumberToken(tok string) (Value, error) {
	if tok == "" {
		return Value{}, fmt.Errorf("numeric: empty token")
	}

	radix := 10
	exact := true
	exactSet := false
	s := tok

	for strings.HasPrefix(s, "#") && len(s) >= 2 {
		switch s[1] {
		case 'x', 'X':
			radix = 16
		case 'o', 'O':
			radix = 8
		case 'b', 'B':
			radix = 2
		case 'd', 'D':
			radix = 10
		case 'e', 'E':
			exact, exactSet = true, true
		case 'i', 'I':
			exact, exactSet = false, true
		default:
			return Value{}, fmt.Errorf("numeric: unknown prefix #%c", s[1])
		}
		s = s[2:]
	}

	if s == "" {
		return Value{}, fmt.Errorf("numeric: prefix with no digits")
	}

	if idx := strings.IndexByte(s, '/'); idx >= 0 && radix == 10 {
		return Value{}, fmt.Errorf("numeric: exact rationals unsupported (bignum-scope feature)")
	}

	if radix == 10 && strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("numeric: invalid decimal literal %q", tok)
		}
		if exactSet && exact {
			return Value{}, fmt.Errorf("numeric: exact decimal literal unsupported")
		}
		return Float32Imm(float32(f)), nil
	}

	n, err := strconv.ParseInt(s, radix, 64)
	if err != nil {
		return Value{}, fmt.Errorf("numeric: invalid literal %q: %w", tok, err)
	}
	v, ok := BoxFixnum(n)
	if !ok {
		return Value{}, fmt.Errorf("numeric: literal %q exceeds fixnum range", tok)
	}
	return v, nil
}
