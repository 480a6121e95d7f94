package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Code is a value of the log's Code column. Codes made only of digits are
// numeric; everything else is compared as text.
type Code struct {
	Text    string
	Num     int64
	Numeric bool
}

// ParseCode classifies a raw code cell.
func ParseCode(s string) Code {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Code{Text: s, Num: n, Numeric: true}
		}
	}
	return Code{Text: s}
}

func (c Code) String() string { return c.Text }

// Equal compares numeric codes by value and textual codes by text.
func (c Code) Equal(o Code) bool {
	if c.Numeric || o.Numeric {
		return c.Numeric && o.Numeric && c.Num == o.Num
	}
	return c.Text == o.Text
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type specKind int

const (
	exactSet specKind = iota
	substrings
	ranges
)

// CodeSpec selects log rows by code. Build it with ParseCodeSpec.
type CodeSpec struct {
	kind   specKind
	set    map[int64]struct{}
	subs   []string
	ranges [][2]int64
	raw    any
}

// ParseCodeSpec interprets one con_codes entry:
//
//	7             exact code
//	"face"        substring of textual codes
//	["a", "b"]    any of the substrings
//	[100, 199]    inclusive range
//	[[1,9],[20,29]] union of ranges
//	[1, 5, 9]     exact set (any length other than two)
func ParseCodeSpec(v any) (CodeSpec, error) {
	spec := CodeSpec{raw: v}
	if n, ok := asInt(v); ok {
		spec.kind = exactSet
		spec.set = map[int64]struct{}{n: {}}
		return spec, nil
	}
	if s, ok := v.(string); ok && s != "" {
		spec.kind = substrings
		spec.subs = []string{s}
		return spec, nil
	}

	list, ok := asList(v)
	if !ok || len(list) == 0 {
		return spec, errMalformed(v)
	}

	switch {
	case allOf(list, func(x any) bool { s, ok := x.(string); return ok && s != "" }):
		spec.kind = substrings
		for _, x := range list {
			spec.subs = append(spec.subs, x.(string))
		}
	case allOf(list, func(x any) bool { _, ok := asInt(x); return ok }):
		ints := make([]int64, len(list))
		for i, x := range list {
			ints[i], _ = asInt(x)
		}
		if len(ints) == 2 {
			if ints[0] > ints[1] {
				return spec, errMalformed(v)
			}
			spec.kind = ranges
			spec.ranges = [][2]int64{{ints[0], ints[1]}}
			return spec, nil
		}
		spec.kind = exactSet
		spec.set = make(map[int64]struct{}, len(ints))
		for _, n := range ints {
			spec.set[n] = struct{}{}
		}
	default:
		spec.kind = ranges
		for _, x := range list {
			pair, ok := asList(x)
			if !ok || len(pair) != 2 {
				return spec, errMalformed(v)
			}
			lo, okLo := asInt(pair[0])
			hi, okHi := asInt(pair[1])
			if !okLo || !okHi || lo > hi {
				return spec, errMalformed(v)
			}
			spec.ranges = append(spec.ranges, [2]int64{lo, hi})
		}
	}
	return spec, nil
}

// Match reports whether a row with code c belongs to the spec.
func (s CodeSpec) Match(c Code) bool {
	switch s.kind {
	case substrings:
		if c.Numeric {
			return false
		}
		for _, sub := range s.subs {
			if strings.Contains(c.Text, sub) {
				return true
			}
		}
		return false
	case ranges:
		if !c.Numeric {
			return false
		}
		for _, r := range s.ranges {
			if c.Num >= r[0] && c.Num <= r[1] {
				return true
			}
		}
		return false
	default:
		if !c.Numeric {
			return false
		}
		_, ok := s.set[c.Num]
		return ok
	}
}

func (s CodeSpec) String() string { return fmt.Sprint(s.raw) }

func errMalformed(v any) error {
	return &MalformedCodeSpecError{Value: v}
}

// asInt accepts the integer shapes produced by the YAML and JSON parsers.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []int:
		out := make([]any, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func allOf(list []any, pred func(any) bool) bool {
	for _, x := range list {
		if !pred(x) {
			return false
		}
	}
	return true
}
