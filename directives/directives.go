// Package directives implements the Directive-Driven Config Compiler: it
// reads `@key`, `@computed`, `@merge`, and `@canonical` annotations off a
// subschema's SDL and emits the merge configuration the Stitching Index
// consumes.
package directives

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"

	"github.com/fusionschema/stitch/gqlerrors"
	"github.com/fusionschema/stitch/subschema"
)

const (
	keyDirective = "key"
	computedDirective = "computed"
	mergeDirective = "merge"
	canonicalDirective = "canonical"
)

// Compile reads every stitching directive off schema and returns one
// MergedTypeConfig per type that carries at least one. logger receives a
// Warn for every @merge argument this compiler had to default rather than
// read explicitly off the directive; a nil logger is treated as a no-op.
func Compile(schema *ast.Schema, logger *zap.Logger) (map[string]*subschema.MergedTypeConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	configs := make(map[string]*subschema.MergedTypeConfig)

	for _, def := range schema.Types {
		if err := compileType(schema, def, configs, logger); err != nil {
			return nil, err
		}
	}

	return configs, nil
}

func compileType(schema *ast.Schema, def *ast.Definition, configs map[string]*subschema.MergedTypeConfig, logger *zap.Logger) error {
	keyDir := def.Directives.ForName(keyDirective)
	canonicalDir := def.Directives.ForName(canonicalDirective)

	var fieldConfigs map[string]*subschema.MergedFieldConfig
	canonicalFields := make(map[string]bool)

	for _, f := range def.Fields {
		if computedDir := f.Directives.ForName(computedDirective); computedDir != nil {
			raw, err := stringArg(computedDir, "selectionSet")
			if err != nil {
				return gqlerrors.NewConfigurationError(fmt.Errorf("%s.%s: %w", def.Name, f.Name, err))
			}
			ss, err := parseSelectionSet(raw)
			if err != nil {
				return gqlerrors.NewConfigurationError(fmt.Errorf("%s.%s: @computed selectionSet: %w", def.Name, f.Name, err))
			}
			if fieldConfigs == nil {
				fieldConfigs = make(map[string]*subschema.MergedFieldConfig)
			}
			fieldConfigs[f.Name] = &subschema.MergedFieldConfig{SelectionSet: ss, Computed: true}
		}

		if f.Directives.ForName(canonicalDirective) != nil {
			canonicalFields[f.Name] = true
		}

		if mergeDir := f.Directives.ForName(mergeDirective); mergeDir != nil {
			if err := validateMergeField(schema, def, f); err != nil {
				return err
			}
			ep, err := compileEntryPoint(f, mergeDir, logger)
			if err != nil {
				return err
			}
			returnTypeName := f.Type.Name()
			target := ensureConfig(configs, returnTypeName)
			target.EntryPoint = ep
		}
	}

	if keyDir == nil && canonicalDir == nil && fieldConfigs == nil && len(canonicalFields) == 0 {
		return nil
	}

	cfg := ensureConfig(configs, def.Name)

	if keyDir != nil {
		raw, err := stringArg(keyDir, "selectionSet")
		if err != nil {
			return gqlerrors.NewConfigurationError(fmt.Errorf("%s: %w", def.Name, err))
		}
		ss, err := parseSelectionSet(raw)
		if err != nil {
			return gqlerrors.NewConfigurationError(fmt.Errorf("%s: @key selectionSet: %w", def.Name, err))
		}
		cfg.SelectionSet = ss
	}

	if canonicalDir != nil {
		cfg.Canonical = true
	}

	if fieldConfigs != nil {
		if cfg.Fields == nil {
			cfg.Fields = make(map[string]*subschema.MergedFieldConfig)
		}
		for k, v := range fieldConfigs {
			cfg.Fields[k] = v
		}
	}

	if len(canonicalFields) > 0 {
		cfg.CanonicalFields = canonicalFields
	}

	return nil
}

func ensureConfig(configs map[string]*subschema.MergedTypeConfig, name string) *subschema.MergedTypeConfig {
	cfg, ok := configs[name]
	if !ok {
		cfg = &subschema.MergedTypeConfig{}
		configs[name] = cfg
	}
	return cfg
}

// validateMergeField enforces the placement and shape rules for @merge.
func validateMergeField(schema *ast.Schema, parent *ast.Definition, f *ast.FieldDefinition) error {
	if schema.Query == nil || parent.Name != schema.Query.Name {
		return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: only permitted on root Query fields", parent.Name, f.Name))
	}

	retName := f.Type.Name()
	retDef, ok := schema.Types[retName]
	if !ok {
		return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: unknown return type %q", parent.Name, f.Name, retName))
	}
	switch retDef.Kind {
		case ast.Object, ast.Interface, ast.Union:
		default:
		return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: return type %q must be object, interface, or union", parent.Name, f.Name, retName))
	}

	dir := f.Directives.ForName(mergeDirective)
	key := dir.Arguments.ForName("key")
	keyField := dir.Arguments.ForName("keyField")
	keyArg := dir.Arguments.ForName("keyArg")
	types := dir.Arguments.ForName("types")

	// argsExpr/additionalArgs would need an expression language this
	// compiler doesn't have; reject them outright rather than accept and
	// silently ignore them.
	if dir.Arguments.ForName("argsExpr") != nil || dir.Arguments.ForName("additionalArgs") != nil {
		return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: argsExpr/additionalArgs are not supported; use keyField/keyArg or key instead", parent.Name, f.Name))
	}

	if key != nil && keyField != nil {
		return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: key and keyField are mutually exclusive", parent.Name, f.Name))
	}
	if keyArg != nil {
		if err := validateDottedPath(keyArg.Value.Raw); err != nil {
			return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: keyArg: %w", parent.Name, f.Name, err))
		}
	}
	if keyField != nil {
		if err := validateDottedPath(keyField.Value.Raw); err != nil {
			return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: keyField: %w", parent.Name, f.Name, err))
		}
	}
	if types != nil && (retDef.Kind == ast.Union || retDef.Kind == ast.Interface) {
		for _, member := range types.Value.Children {
			name := member.Value.Raw
			found := false
			for _, m := range retDef.Types {
				if m == name {
					found = true
					break
				}
			}
			if impl, ok := schema.Types[name]; ok && retDef.Kind == ast.Interface {
				for _, iface := range impl.Interfaces {
					if iface == retName {
						found = true
						break
					}
				}
			}
			if !found {
				return gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s.%s: types entry %q is not an implementation of %s", parent.Name, f.Name, name, retName))
			}
		}
	}

	return nil
}

func validateDottedPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty dotted-name path")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid dotted-name path %q", path)
		}
	}
	return nil
}

// compileEntryPoint reads @merge's arguments into an EntryPoint.
func compileEntryPoint(f *ast.FieldDefinition, dir *ast.Directive, logger *zap.Logger) (*subschema.EntryPoint, error) {
	ep := &subschema.EntryPoint{FieldName: f.Name}

	if keyArg := dir.Arguments.ForName("key"); keyArg != nil {
		ep.Batch = true
		var keys []string
		for _, child := range keyArg.Value.Children {
			keys = append(keys, child.Value.Raw)
		}
		ep.Key = keys
		if len(f.Arguments) == 0 {
			return nil, gqlerrors.NewConfigurationError(fmt.Errorf("@merge on %s: key entry point must declare at least one argument to receive the batched keys", f.Name))
		}
		argName := f.Arguments[0].Name
		ep.ArgsFromKeys = func(values []interface{}) map[string]interface{} {
			return map[string]interface{}{argName: values}
		}
		return ep, nil
	}

	keyFieldArg := dir.Arguments.ForName("keyField")
	keyArgArg := dir.Arguments.ForName("keyArg")

	keyField := "id"
	if keyFieldArg != nil {
		keyField = keyFieldArg.Value.Raw
	} else {
		logger.Warn("@merge argument defaulted", zap.String("field", f.Name), zap.String("argument", "keyField"), zap.String("value", keyField))
	}
	argName := "id"
	if keyArgArg != nil {
		argName = keyArgArg.Value.Raw
	} else if len(f.Arguments) > 0 {
		argName = f.Arguments[0].Name
		logger.Warn("@merge argument defaulted", zap.String("field", f.Name), zap.String("argument", "keyArg"), zap.String("value", argName))
	} else {
		logger.Warn("@merge argument defaulted", zap.String("field", f.Name), zap.String("argument", "keyArg"), zap.String("value", argName))
	}

	ep.Args = func(parent map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{argName: lookupDotted(parent, keyField)}
	}

	return ep, nil
}

func lookupDotted(obj map[string]interface{}, path string) interface{} {
	cur := interface{}(obj)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

func stringArg(dir *ast.Directive, name string) (string, error) {
	arg := dir.Arguments.ForName(name)
	if arg == nil {
		return "", fmt.Errorf("missing required argument %q on @%s", name, dir.Name)
	}
	return arg.Value.Raw, nil
}

// parseSelectionSet parses a standalone `{ ... }` selection-set string into
// an ast.SelectionSet by wrapping it as a throwaway query document. Called
// once per directive at composition time, never per request.
func parseSelectionSet(raw string) (ast.SelectionSet, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: "query " + raw})
	if err != nil {
		return nil, err
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("empty selection set")
	}
	return doc.Operations[0].SelectionSet, nil
}
