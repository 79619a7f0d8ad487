package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/graphres/internal/attr"
	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/variant"
)

// Attrs builds attributes from alternating name/value pairs. Values may be
// string, int, int64 or bool.
//
//	Attrs("usage", "java-api", "jvm", 17)
func Attrs(kv ...any) attr.Attributes {
	if len(kv)%2 != 0 {
		panic("testutil.Attrs: odd number of arguments")
	}
	obj := make(ir.Object, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("testutil.Attrs: name %v is not a string", kv[i]))
		}
		v, err := ir.ValueOf(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("testutil.Attrs: %s: %v", name, err))
		}
		obj[name] = v
	}
	return attr.Of(obj)
}

// Module parses "group:name:version" into a component id.
func Module(coords string) ir.ComponentID {
	parts := strings.Split(coords, ":")
	if len(parts) != 3 {
		panic(fmt.Sprintf("testutil.Module: %q is not group:name:version", coords))
	}
	return ir.ComponentID{
		Module:  ir.ModuleID{Group: parts[0], Name: parts[1]},
		Version: parts[2],
	}
}

// Variant builds a variant publishing one jar named after the variant.
func Variant(name string, attributes attr.Attributes, upstream ...string) *variant.Variant {
	return &variant.Variant{
		Name:       name,
		Attributes: attributes,
		Files:      ir.NewFileSet(name + ".jar"),
		Upstream:   ir.NewFileSet(upstream...),
	}
}

// Component builds a component state that publishes variants. Panics on
// invalid input; fixtures are static.
func Component(coords string, variants ...*variant.Variant) *variant.ComponentState {
	c, err := variant.NewComponentState(Module(coords), variants, nil)
	if err != nil {
		panic(fmt.Sprintf("testutil.Component(%s): %v", coords, err))
	}
	return c
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
