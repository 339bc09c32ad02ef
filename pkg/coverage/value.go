// Package coverage provides the coverage value model shared by report files,
// line sessions and decoders, together with the numeric and interval merge
// rules used when the same line is observed more than once.
package coverage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedFraction is returned when a branch fraction string is not of the
// form "<hits>/<total>" with 0 <= hits <= total.
var ErrMalformedFraction = errors.New("malformed branch fraction")

// Kind discriminates the three coverage value representations.
type Kind int

// Coverage value kinds.
const (
	// KindCount is a non-negative execution hit count.
	KindCount Kind = iota
	// KindBool marks a line as partially covered without a precise count.
	KindBool
	// KindFraction is a "covered/total" branch ratio.
	KindFraction
)

// Value is a single coverage observation for a line: a hit count, a boolean
// partial marker, or a branch fraction. The zero Value is a count of zero.
type Value struct {
	kind    Kind
	hits    int
	partial bool
	covered int
	total   int
}

// HitCount returns a count-kind Value. Negative counts are clamped to zero.
func HitCount(n int) Value {
	if n < 0 {
		n = 0
	}

	return Value{kind: KindCount, hits: n}
}

// Bool returns a boolean-kind Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, partial: b}
}

// Fraction returns a branch-ratio Value. covered is clamped into [0, total].
func Fraction(covered, total int) Value {
	if total < 0 {
		total = 0
	}

	if covered < 0 {
		covered = 0
	}

	if covered > total {
		covered = total
	}

	return Value{kind: KindFraction, covered: covered, total: total}
}

// ParseFraction parses a "<hits>/<total>" branch ratio string.
func ParseFraction(s string) (Value, error) {
	covered, total, ok := strings.Cut(s, "/")
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedFraction, s)
	}

	c, err := strconv.Atoi(strings.TrimSpace(covered))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedFraction, s)
	}

	t, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedFraction, s)
	}

	if c < 0 || t < 0 || c > t {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedFraction, s)
	}

	return Value{kind: KindFraction, covered: c, total: t}, nil
}

// Kind returns the representation of the value.
func (v Value) Kind() Kind { return v.kind }

// Hits returns the hit count of a count-kind value, and a best-effort
// equivalent for the other kinds (1 for a true boolean or a fully covered
// fraction, 0 otherwise).
func (v Value) Hits() int {
	switch v.kind {
	case KindCount:
		return v.hits
	case KindBool:
		if v.partial {
			return 1
		}

		return 0
	case KindFraction:
		if v.total > 0 && v.covered == v.total {
			return 1
		}

		return 0
	}

	return 0
}

// Fraction returns the covered/total pair of a fraction-kind value.
func (v Value) Fraction() (covered, total int) { return v.covered, v.total }

// Hit reports whether the value represents any execution at all.
func (v Value) Hit() bool {
	switch v.kind {
	case KindCount:
		return v.hits > 0
	case KindBool:
		return v.partial
	case KindFraction:
		return v.covered > 0
	}

	return false
}

// Full reports whether the value represents complete coverage: a positive
// count, a true boolean is only partial, a fraction needs covered == total.
func (v Value) Full() bool {
	switch v.kind {
	case KindCount:
		return v.hits > 0
	case KindBool:
		return false
	case KindFraction:
		return v.total > 0 && v.covered == v.total
	}

	return false
}

// Partial reports whether the value represents partial but non-empty coverage.
func (v Value) Partial() bool {
	return v.Hit() && !v.Full()
}

// String renders the value the way it appears in serialized reports.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.partial)
	case KindFraction:
		return fmt.Sprintf("%d/%d", v.covered, v.total)
	}

	return strconv.Itoa(v.hits)
}

// Merge combines two observations of the same execution into one value.
// The combine is monotone: coverage never decreases. Booleans OR together,
// counts take the greater count, fractions with a common denominator take the
// better numerator, and mixed-kind pairs prefer whichever side reports a hit.
// Merge is commutative and idempotent.
func Merge(a, b Value) Value {
	if a == b {
		return a
	}

	if a.kind == b.kind {
		switch a.kind {
		case KindCount:
			if b.hits > a.hits {
				return b
			}

			return a
		case KindBool:
			return Bool(a.partial || b.partial)
		case KindFraction:
			return mergeFractions(a, b)
		}
	}

	return mergeMixed(a, b)
}

func mergeFractions(a, b Value) Value {
	if a.total == b.total {
		if b.covered > a.covered {
			return b
		}

		return a
	}

	// Different denominators come from different instrumentations of the
	// same branch; keep the one with the better ratio, larger total breaking
	// the tie.
	ra := ratio(a.covered, a.total)
	rb := ratio(b.covered, b.total)

	if rb > ra || (rb == ra && b.total > a.total) {
		return b
	}

	return a
}

// mergeMixed resolves a pair of different kinds. Hits dominate misses; when
// both sides hit, the more precise representation wins (fraction > count >
// bool), keeping the combine commutative.
func mergeMixed(a, b Value) Value {
	if a.Hit() != b.Hit() {
		if a.Hit() {
			return a
		}

		return b
	}

	if precision(a.kind) >= precision(b.kind) {
		return a
	}

	return b
}

func precision(k Kind) int {
	switch k {
	case KindFraction:
		return 2
	case KindCount:
		return 1
	}

	return 0
}

func ratio(covered, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(covered) / float64(total)
}

// MarshalJSON renders the value in its wire shape: a number, a boolean, or a
// "covered/total" string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.partial)
	case KindFraction:
		return json.Marshal(v.String())
	}

	return json.Marshal(v.hits)
}

// UnmarshalJSON accepts the three wire shapes produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("decode coverage value: %w", err)
	}

	switch typed := raw.(type) {
	case bool:
		*v = Bool(typed)

		return nil
	case float64:
		*v = HitCount(int(typed))

		return nil
	case string:
		parsed, parseErr := ParseFraction(typed)
		if parseErr != nil {
			return parseErr
		}

		*v = parsed

		return nil
	}

	return fmt.Errorf("decode coverage value: unsupported shape %T", raw)
}
