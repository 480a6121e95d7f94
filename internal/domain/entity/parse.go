package entity

import "strings"

// Pair is a single key-value naming component.
type Pair struct {
	Key   string
	Value string
}

// SplitExt splits a basename at its first period into the stem and the
// chain of extension fragments.
func SplitExt(base string) (string, []string) {
	parts := strings.Split(base, ".")
	return parts[0], parts[1:]
}

// FromFilename returns the key-value tokens embedded in a basename, in
// filename order. Tokens are separated by underscores and must contain a
// single dash with non-empty sides.
func FromFilename(base string) []Pair {
	stem, _ := SplitExt(base)
	var pairs []Pair
	for _, tok := range strings.Split(stem, "_") {
		kv := strings.Split(tok, "-")
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		pairs = append(pairs, Pair{Key: kv[0], Value: kv[1]})
	}
	return pairs
}

// Lookup returns the value of the first pair named key.
func Lookup(pairs []Pair, key string) (string, bool) {
	for _, p := range pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
