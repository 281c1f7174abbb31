// Package worldview enumerates the philosophical categories that partition
// the vector index. Every chunk belongs to exactly one worldview.
package worldview

import (
	"fmt"
	"strings"
)

// Worldview is a knowledge-base category. The set is fixed: categories
// double as index namespaces, so an unvalidated string would silently
// create an empty partition.
type Worldview string

const (
	Dynamismus       Worldview = "Dynamismus"
	Idealismus       Worldview = "Idealismus"
	Individualismus  Worldview = "Individualismus"
	Materialismus    Worldview = "Materialismus"
	Mathematismus    Worldview = "Mathematismus"
	Phaenomenalismus Worldview = "Phänomenalismus"
	Pneumatismus     Worldview = "Pneumatismus"
	Psychismus       Worldview = "Psychismus"
	Rationalismus    Worldview = "Rationalismus"
	Realismus        Worldview = "Realismus"
	Sensualismus     Worldview = "Sensualismus"
	Spiritualismus   Worldview = "Spiritualismus"
)

// All returns the twelve worldviews in canonical order.
func All() []Worldview {
	return []Worldview{
		Dynamismus, Idealismus, Individualismus, Materialismus,
		Mathematismus, Phaenomenalismus, Pneumatismus, Psychismus,
		Rationalismus, Realismus, Sensualismus, Spiritualismus,
	}
}

var byName = func() map[string]Worldview {
	m := make(map[string]Worldview, 12)
	for _, w := range All() {
		m[strings.ToLower(string(w))] = w
	}
	return m
}()

// Parse validates a category name against the fixed worldview set.
// Matching ignores case; the returned value carries canonical casing.
func Parse(name string) (Worldview, error) {
	if w, ok := byName[strings.ToLower(name)]; ok {
		return w, nil
	}
	return "", fmt.Errorf("unknown worldview %q", name)
}

// Valid reports whether name is one of the twelve worldviews.
func Valid(name string) bool {
	_, ok := byName[strings.ToLower(name)]
	return ok
}

func (w Worldview) String() string { return string(w) }
