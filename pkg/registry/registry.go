// Package registry maps a variant name (as given on the command line) to
// a tree.Tree constructor, so cmd/bench and tests can select a variant
// by string without importing every pkg/variants/* package by hand at
// every call site.
package registry

import (
	"sort"

	"github.com/bobboyms/ctreebench/pkg/errors"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/variants/citrus"
	"github.com/bobboyms/ctreebench/pkg/variants/cop"
	"github.com/bobboyms/ctreebench/pkg/variants/fghtm"
	"github.com/bobboyms/ctreebench/pkg/variants/fgspinlock"
	"github.com/bobboyms/ctreebench/pkg/variants/relaxed"
	"github.com/bobboyms/ctreebench/pkg/variants/tarjantd"
)

// Constructor builds a fresh tree.Tree with room for capacity nodes.
type Constructor func(capacity int) tree.Tree

var constructors = map[string]Constructor{
	"cop":        func(capacity int) tree.Tree { return cop.New(capacity) },
	"fghtm":      func(capacity int) tree.Tree { return fghtm.New(capacity) },
	"fgspinlock": func(capacity int) tree.Tree { return fgspinlock.New(capacity) },
	"tarjantd":   func(capacity int) tree.Tree { return tarjantd.New(capacity) },
	"relaxed":    func(capacity int) tree.Tree { return relaxed.New(capacity) },
	"citrus":     func(capacity int) tree.Tree { return citrus.New(capacity) },
}

// New constructs the named variant, or ErrUnknownVariant if name isn't
// registered.
func New(name string, capacity int) (tree.Tree, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownVariant, "variant %q (known: %v)", name, Names())
	}
	return ctor(capacity), nil
}

// Names returns the registered variant names, sorted for stable --help
// output.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRelaxed reports whether name identifies the relaxed variant, which
// the harness must additionally start/stop a background maintainer for.
func IsRelaxed(name string) bool {
	return name == "relaxed"
}
