package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/graphres/internal/ir"
)

// CompileModel parses a CUE build model into an ir.BuildModel.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// Every section is optional except consumer. Struct-keyed sections
// (configurations, components, dependencies, transforms) keep their
// declaration order.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	model, err := CompileModel(v)
func CompileModel(v cue.Value) (*ir.BuildModel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.BuildModel{}
	var err error

	if m.Schema, err = compileSchema(v); err != nil {
		return nil, err
	}
	if m.Consumer, err = compileConsumer(v); err != nil {
		return nil, err
	}

	err = eachField(v, "", "configurations", func(name, path string, c cue.Value) error {
		conf, err := compileConfiguration(name, path, c)
		if err != nil {
			return err
		}
		m.Configurations = append(m.Configurations, conf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "", "components", func(key, path string, c cue.Value) error {
		comp, err := compileComponent(key, path, c)
		if err != nil {
			return err
		}
		m.Components = append(m.Components, comp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "", "dependencies", func(id, path string, d cue.Value) error {
		dep, err := compileDependency(id, path, d)
		if err != nil {
			return err
		}
		m.Dependencies = append(m.Dependencies, dep)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "", "transforms", func(name, path string, t cue.Value) error {
		requires, err := optionalBool(t, path, "requires_dependencies", false)
		if err != nil {
			return err
		}
		m.Transforms = append(m.Transforms, ir.TransformSpec{Name: name, RequiresDependencies: requires})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tc := v.LookupPath(cue.ParsePath("toolchain")); tc.Exists() {
		spec, err := compileToolchain(tc)
		if err != nil {
			return nil, err
		}
		m.Toolchain = spec
	}

	return m, nil
}

func compileSchema(v cue.Value) (ir.SchemaSpec, error) {
	var spec ir.SchemaSpec
	sv := v.LookupPath(cue.ParsePath("schema"))
	if !sv.Exists() {
		return spec, nil
	}

	err := eachField(sv, "schema", "attributes", func(name, path string, a cue.Value) error {
		rule := ir.AttributeRuleSpec{Name: name}
		var err error
		if rule.Compatibility, err = optionalString(a, path, "compatibility"); err != nil {
			return err
		}
		if rule.Compatibility == "" {
			rule.Compatibility = ir.CompatibilityEqual
		}
		if rule.Disambiguation, err = optionalString(a, path, "disambiguation"); err != nil {
			return err
		}
		if pv := a.LookupPath(cue.ParsePath("prefer")); pv.Exists() {
			val, err := valueOf(pv, join(path, "prefer"))
			if err != nil {
				return err
			}
			list, ok := val.(ir.List)
			if !ok {
				return fieldError(pv, join(path, "prefer"), "must be a list")
			}
			rule.Prefer = []ir.Value(list)
		}
		spec.Attributes = append(spec.Attributes, rule)
		return nil
	})
	if err != nil {
		return spec, err
	}

	spec.Precedence, err = stringList(sv, "schema", "precedence")
	return spec, err
}

func compileConsumer(v cue.Value) (ir.ConsumerSpec, error) {
	var spec ir.ConsumerSpec
	cv := v.LookupPath(cue.ParsePath("consumer"))
	if !cv.Exists() {
		return spec, fieldError(v, "consumer", "consumer is required")
	}
	var err error
	if spec.Configuration, err = requiredString(cv, "consumer", "configuration"); err != nil {
		return spec, err
	}
	if spec.Attributes, err = objectField(cv, "consumer", "attributes"); err != nil {
		return spec, err
	}
	if spec.Attributes == nil {
		spec.Attributes = ir.Object{}
	}
	return spec, nil
}

func compileConfiguration(name, path string, v cue.Value) (ir.ConfigurationSpec, error) {
	conf := ir.ConfigurationSpec{Name: name}
	var err error
	if conf.Role, err = optionalString(v, path, "role"); err != nil {
		return conf, err
	}
	conf.Extends, err = stringList(v, path, "extends")
	return conf, err
}

// compileComponent parses one published component. The key is
// "group:name:version", or ":path" for a project of the current build
// (whose coordinates then come from the optional coordinates field).
func compileComponent(key, path string, v cue.Value) (ir.ComponentSpec, error) {
	var comp ir.ComponentSpec
	if strings.HasPrefix(key, ":") {
		comp.ID.Project = key
		coords, err := optionalString(v, path, "coordinates")
		if err != nil {
			return comp, err
		}
		if coords != "" {
			id, err := parseCoordinates(v, join(path, "coordinates"), coords)
			if err != nil {
				return comp, err
			}
			comp.ID.Module, comp.ID.Version = id.Module, id.Version
		}
	} else {
		id, err := parseCoordinates(v, path, key)
		if err != nil {
			return comp, err
		}
		comp.ID = id
	}

	err := eachField(v, path, "variants", func(name, vpath string, vv cue.Value) error {
		spec := ir.VariantSpec{Name: name}
		var err error
		if spec.Attributes, err = objectField(vv, vpath, "attributes"); err != nil {
			return err
		}
		if spec.Attributes == nil {
			spec.Attributes = ir.Object{}
		}
		if spec.Capabilities, err = capabilityList(vv, vpath, "capabilities"); err != nil {
			return err
		}
		if av := vv.LookupPath(cue.ParsePath("artifacts")); av.Exists() {
			if spec.Artifacts, err = artifactList(av, join(vpath, "artifacts")); err != nil {
				return err
			}
		}
		if spec.Files, err = fileSet(vv, vpath, "files"); err != nil {
			return err
		}
		if spec.Upstream, err = fileSet(vv, vpath, "upstream"); err != nil {
			return err
		}
		comp.Variants = append(comp.Variants, spec)
		return nil
	})
	if err != nil {
		return comp, err
	}

	err = eachField(v, path, "configurations", func(name, cpath string, cv cue.Value) error {
		spec := ir.LegacyConfigurationSpec{Name: name}
		var err error
		if spec.Role, err = optionalString(cv, cpath, "role"); err != nil {
			return err
		}
		if spec.Extends, err = stringList(cv, cpath, "extends"); err != nil {
			return err
		}
		if spec.Attributes, err = objectField(cv, cpath, "attributes"); err != nil {
			return err
		}
		if av := cv.LookupPath(cue.ParsePath("artifacts")); av.Exists() {
			if spec.Artifacts, err = artifactList(av, join(cpath, "artifacts")); err != nil {
				return err
			}
		}
		if spec.Files, err = fileSet(cv, cpath, "files"); err != nil {
			return err
		}
		if spec.Upstream, err = fileSet(cv, cpath, "upstream"); err != nil {
			return err
		}
		comp.Configurations = append(comp.Configurations, spec)
		return nil
	})
	return comp, err
}

func compileDependency(id, path string, v cue.Value) (ir.DependencySpec, error) {
	dep := ir.DependencySpec{ID: id}
	var err error

	if dep.Configuration, err = requiredString(v, path, "configuration"); err != nil {
		return dep, err
	}

	module, err := optionalString(v, path, "module")
	if err != nil {
		return dep, err
	}
	if dep.Project, err = optionalString(v, path, "project"); err != nil {
		return dep, err
	}
	switch {
	case module != "" && dep.Project != "":
		return dep, fieldError(v, path, "module and project are mutually exclusive")
	case module != "":
		mid, err := parseModuleID(v, join(path, "module"), module)
		if err != nil {
			return dep, err
		}
		dep.Module = &mid
	case dep.Project == "":
		return dep, fieldError(v, path, "one of module or project is required")
	}
	if dep.BuildPath, err = optionalString(v, path, "build_path"); err != nil {
		return dep, err
	}

	if vv := v.LookupPath(cue.ParsePath("version")); vv.Exists() {
		if dep.Version, err = compileVersion(vv, join(path, "version")); err != nil {
			return dep, err
		}
	}
	if dep.Attributes, err = objectField(v, path, "attributes"); err != nil {
		return dep, err
	}
	if dep.Capabilities, err = capabilityList(v, path, "capabilities"); err != nil {
		return dep, err
	}
	if dep.Transitive, err = optionalBool(v, path, "transitive", true); err != nil {
		return dep, err
	}
	if dep.Constraint, err = optionalBool(v, path, "constraint", false); err != nil {
		return dep, err
	}
	if dep.Changing, err = optionalBool(v, path, "changing", false); err != nil {
		return dep, err
	}
	if dep.Reason, err = optionalString(v, path, "reason"); err != nil {
		return dep, err
	}
	if dep.AttributeMatching, err = optionalBool(v, path, "attribute_matching", false); err != nil {
		return dep, err
	}
	if dep.Pipeline, err = stringList(v, path, "pipeline"); err != nil {
		return dep, err
	}

	if mv := v.LookupPath(cue.ParsePath("mappings")); mv.Exists() {
		iter, err := mv.List()
		if err != nil {
			return dep, fieldError(mv, join(path, "mappings"), "must be a list")
		}
		for i := 0; iter.Next(); i++ {
			p := fmt.Sprintf("%s[%d]", join(path, "mappings"), i)
			from, err := stringList(iter.Value(), p, "from")
			if err != nil {
				return dep, err
			}
			to, err := stringList(iter.Value(), p, "to")
			if err != nil {
				return dep, err
			}
			dep.Mappings = append(dep.Mappings, ir.MappingSpec{From: from, To: to})
		}
	}

	err = eachField(v, path, "artifacts", func(conf, apath string, av cue.Value) error {
		names, err := artifactList(av, apath)
		if err != nil {
			return err
		}
		if dep.Artifacts == nil {
			dep.Artifacts = make(map[string][]ir.ArtifactName)
		}
		dep.Artifacts[conf] = names
		return nil
	})
	if err != nil {
		return dep, err
	}

	err = eachField(v, path, "excludes", func(conf, epath string, ev cue.Value) error {
		raw, err := stringListOf(ev, epath)
		if err != nil {
			return err
		}
		if dep.Excludes == nil {
			dep.Excludes = make(map[string][]ir.ModuleID)
		}
		for i, s := range raw {
			mid, err := parseModuleID(ev, fmt.Sprintf("%s[%d]", epath, i), s)
			if err != nil {
				return err
			}
			dep.Excludes[conf] = append(dep.Excludes[conf], mid)
		}
		return nil
	})
	return dep, err
}

// compileVersion accepts a plain string (the required version) or a struct
// with required, preferred, strictly and rejects.
func compileVersion(v cue.Value, path string) (ir.VersionConstraint, error) {
	var vc ir.VersionConstraint
	if s, err := v.String(); err == nil {
		vc.Required = s
	} else {
		if v.IncompleteKind() != cue.StructKind {
			return vc, fieldError(v, path, "must be a string or a struct")
		}
		if vc.Required, err = optionalString(v, path, "required"); err != nil {
			return vc, err
		}
		if vc.Preferred, err = optionalString(v, path, "preferred"); err != nil {
			return vc, err
		}
		if vc.Strictly, err = optionalString(v, path, "strictly"); err != nil {
			return vc, err
		}
		if vc.Rejects, err = stringList(v, path, "rejects"); err != nil {
			return vc, err
		}
	}
	if err := vc.Validate(); err != nil {
		return vc, fieldError(v, path, "%v", err)
	}
	return vc, nil
}

func compileToolchain(v cue.Value) (*ir.ToolchainSpec, error) {
	spec := &ir.ToolchainSpec{}
	var err error
	if spec.Version, err = optionalString(v, "toolchain", "version"); err != nil {
		return nil, err
	}
	if spec.Vendor, err = optionalString(v, "toolchain", "vendor"); err != nil {
		return nil, err
	}

	cv := v.LookupPath(cue.ParsePath("candidates"))
	if !cv.Exists() {
		return spec, nil
	}
	iter, err := cv.List()
	if err != nil {
		return nil, fieldError(cv, "toolchain.candidates", "must be a list")
	}
	for i := 0; iter.Next(); i++ {
		p := fmt.Sprintf("toolchain.candidates[%d]", i)
		c := iter.Value()
		var cand ir.ToolchainCandidateSpec
		if cand.Location, err = requiredString(c, p, "location"); err != nil {
			return nil, err
		}
		if cand.Source, err = optionalString(c, p, "source"); err != nil {
			return nil, err
		}
		if cand.AutoDetected, err = optionalBool(c, p, "auto_detected", false); err != nil {
			return nil, err
		}
		if cand.Version, err = optionalString(c, p, "version"); err != nil {
			return nil, err
		}
		if cand.Vendor, err = optionalString(c, p, "vendor"); err != nil {
			return nil, err
		}
		spec.Candidates = append(spec.Candidates, cand)
	}
	return spec, nil
}
