package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/graphres/internal/ir"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(v cue.Value, field, format string, args ...any) *CompileError {
	return &CompileError{Field: field, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

func join(path, label string) string {
	if path == "" {
		return label
	}
	return path + "." + label
}

// eachField calls fn for every field of the struct at v.field in
// declaration order. A missing field is not an error.
func eachField(v cue.Value, path, field string, fn func(label, path string, v cue.Value) error) error {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return nil
	}
	return eachFieldOf(sub, join(path, field), fn)
}

func eachFieldOf(v cue.Value, path string, fn func(label, path string, v cue.Value) error) error {
	if v.IncompleteKind() != cue.StructKind {
		return fieldError(v, path, "must be a struct")
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if err := fn(label, join(path, label), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func optionalString(v cue.Value, path, field string) (string, error) {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return "", nil
	}
	s, err := sub.String()
	if err != nil {
		return "", fieldError(sub, join(path, field), "must be a string")
	}
	return s, nil
}

func requiredString(v cue.Value, path, field string) (string, error) {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return "", fieldError(v, join(path, field), "%s is required", field)
	}
	s, err := sub.String()
	if err != nil {
		return "", fieldError(sub, join(path, field), "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", fieldError(sub, join(path, field), "must not be empty")
	}
	return s, nil
}

func optionalBool(v cue.Value, path, field string, def bool) (bool, error) {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return def, nil
	}
	b, err := sub.Bool()
	if err != nil {
		return false, fieldError(sub, join(path, field), "must be a bool")
	}
	return b, nil
}

func stringList(v cue.Value, path, field string) ([]string, error) {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return nil, nil
	}
	return stringListOf(sub, join(path, field))
}

func stringListOf(v cue.Value, path string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fieldError(v, path, "must be a list of strings")
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fieldError(iter.Value(), fmt.Sprintf("%s[%d]", path, i), "must be a string")
		}
		out = append(out, s)
	}
	return out, nil
}

func fileSet(v cue.Value, path, field string) (ir.FileSet, error) {
	paths, err := stringList(v, path, field)
	if err != nil || paths == nil {
		return nil, err
	}
	fs := ir.FileSet(paths)
	if err := fs.Validate(); err != nil {
		return nil, fieldError(v.LookupPath(cue.ParsePath(field)), join(path, field), "%v", err)
	}
	return fs, nil
}

// objectField converts the struct at v.field into an ir.Object. A missing
// field yields nil.
func objectField(v cue.Value, path, field string) (ir.Object, error) {
	sub := v.LookupPath(cue.ParsePath(field))
	if !sub.Exists() {
		return nil, nil
	}
	val, err := valueOf(sub, join(path, field))
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.Object)
	if !ok {
		return nil, fieldError(sub, join(path, field), "must be a struct")
	}
	return obj, nil
}

// valueOf converts a concrete CUE value into an ir.Value.
// Floats and null are forbidden.
func valueOf(v cue.Value, path string) (ir.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, fieldError(v, path, "integer out of int64 range")
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := valueOf(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		obj := ir.Object{}
		err := eachFieldOf(v, path, func(label, p string, fv cue.Value) error {
			elem, err := valueOf(fv, p)
			if err != nil {
				return err
			}
			obj[label] = elem
			return nil
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, fieldError(v, path, "float values are forbidden, use int instead")
	case cue.NullKind:
		return nil, fieldError(v, path, "null is forbidden")
	default:
		return nil, fieldError(v, path, "unsupported value kind: %v", v.IncompleteKind())
	}
}

// parseModuleID parses "group:name".
func parseModuleID(v cue.Value, path, s string) (ir.ModuleID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ir.ModuleID{}, fieldError(v, path, "module %q must be group:name", s)
	}
	return ir.ModuleID{Group: parts[0], Name: parts[1]}, nil
}

// parseCoordinates parses "group:name:version".
func parseCoordinates(v cue.Value, path, s string) (ir.ComponentID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ir.ComponentID{}, fieldError(v, path, "%q must be group:name:version", s)
	}
	return ir.ComponentID{
		Module:  ir.ModuleID{Group: parts[0], Name: parts[1]},
		Version: parts[2],
	}, nil
}

// parseCapability parses "group:name" or "group:name:version".
func parseCapability(v cue.Value, path, s string) (ir.Capability, error) {
	parts := strings.Split(s, ":")
	if (len(parts) != 2 && len(parts) != 3) || parts[0] == "" || parts[1] == "" {
		return ir.Capability{}, fieldError(v, path, "capability %q must be group:name[:version]", s)
	}
	c := ir.Capability{Group: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		c.Version = parts[2]
	}
	return c, nil
}

func capabilityList(v cue.Value, path, field string) ([]ir.Capability, error) {
	raw, err := stringList(v, path, field)
	if err != nil {
		return nil, err
	}
	var out []ir.Capability
	for i, s := range raw {
		c, err := parseCapability(v, fmt.Sprintf("%s[%d]", join(path, field), i), s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func artifactList(v cue.Value, path string) ([]ir.ArtifactName, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fieldError(v, path, "must be a list of artifacts")
	}
	var out []ir.ArtifactName
	for i := 0; iter.Next(); i++ {
		p := fmt.Sprintf("%s[%d]", path, i)
		a := iter.Value()
		var name ir.ArtifactName
		if name.Name, err = requiredString(a, p, "name"); err != nil {
			return nil, err
		}
		if name.Type, err = optionalString(a, p, "type"); err != nil {
			return nil, err
		}
		if name.Extension, err = optionalString(a, p, "extension"); err != nil {
			return nil, err
		}
		if name.Classifier, err = optionalString(a, p, "classifier"); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}
