// Package stitch composes several executable subschemas into one merged
// schema and installs the resolvers that delegate a client operation
// across them, joining results on their declared `@key` fields.
package stitch

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/fusionschema/stitch/directives"
	"github.com/fusionschema/stitch/loader"
	"github.com/fusionschema/stitch/merger"
	"github.com/fusionschema/stitch/planner"
	"github.com/fusionschema/stitch/registry"
	"github.com/fusionschema/stitch/resolve"
	"github.com/fusionschema/stitch/stitching"
	"github.com/fusionschema/stitch/subschema"
	"github.com/fusionschema/stitch/transform"
)

// Config is stitchSchemas' single input.
type Config struct {
	Subschemas []*subschema.Subschema

	// TypeDefs is an SDL extension document contributing user types not
	// owned by any subschema.
	TypeDefs *ast.SchemaDocument
	// Types are pre-built *ast.Definition values, added the same way.
	Types []*ast.Definition

	MergeTypes merger.MergeTypes
	MergeDirectives bool
	OnTypeConflict merger.OnTypeConflict

	// CompileDirectives runs the Directive-Driven Config Compiler (C11)
	// against every subschema before composition, filling in any merge
	// configuration not already set explicitly.
	CompileDirectives bool

	// InheritResolversFromInterfaces copies each interface field an
	// implementing object does not declare onto that object.
	InheritResolversFromInterfaces bool

	Logger *zap.Logger
}

// Gateway is a composed schema plus everything needed to execute against it.
type Gateway struct {
	Schema *ast.Schema
	StitchingInfo *stitching.Info
	Subschemas []*subschema.Subschema

	loaders map[string]*loader.Loader
	logger *zap.Logger
}

// StitchSchemas is the single composition entry point.
func StitchSchemas(cfg Config) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.CompileDirectives {
		if err := compileSubschemaDirectives(cfg.Subschemas, logger); err != nil {
			return nil, err
		}
	}

	for _, sub := range cfg.Subschemas {
		sub.ApplySchemaTransforms()
	}

	reg := registry.New(cfg.MergeDirectives)
	for _, sub := range cfg.Subschemas {
		if err := reg.AddSubschema(sub); err != nil {
			return nil, err
		}
	}
	if cfg.TypeDefs != nil {
		if err := reg.AddTypeDefs(cfg.TypeDefs); err != nil {
			return nil, err
		}
	}
	if len(cfg.Types) > 0 {
		reg.AddTypes(cfg.Types...)
	}

	mergedTypeNames := collectMergedTypeNames(cfg.Subschemas)

	mergeResult, err := merger.Merge(reg, cfg.MergeTypes, cfg.OnTypeConflict, func(name string) bool {
			return mergedTypeNames[name]
	}, logger)
	if err != nil {
		return nil, err
	}

	schema, err := buildSchema(mergeResult)
	if err != nil {
		return nil, err
	}

	if cfg.InheritResolversFromInterfaces {
		inheritResolversFromInterfaces(schema)
	}

	stitchingInfo, err := stitching.Compile(schema, cfg.Subschemas, mergedTypeNames)
	if err != nil {
		return nil, err
	}

	installBuiltinTransforms(cfg.Subschemas, schema, stitchingInfo)

	gw := &Gateway{
		Schema: schema,
		StitchingInfo: stitchingInfo,
		Subschemas: cfg.Subschemas,
		loaders: make(map[string]*loader.Loader),
		logger: logger,
	}

	logger.Info("composed schema",
		zap.Int("subschemas", len(cfg.Subschemas)),
		zap.Int("mergedTypes", len(stitchingInfo.MergedTypes)),
		zap.Int("types", len(schema.Types)))

	return gw, nil
}

// LoaderFor returns the *loader.Loader scoped to typeName, lazily building
// one bound to this gateway's planner the first time it's needed. Loaders
// are shared across operations on this gateway; a caller wanting
// per-operation isolation can wrap Gateway with a fresh loader map per
// request.
func (gw *Gateway) LoaderFor(typeName string) *loader.Loader {
	if l, ok := gw.loaders[typeName]; ok {
		return l
	}

	l := loader.New(planner.Plan)
	gw.loaders[typeName] = l
	return l
}

// ResolverFor builds the default merged resolver (C9) for typeName, wired
// to this gateway's loaders.
func (gw *Gateway) ResolverFor(typeName string) subschema.Resolver {
	mt, ok := gw.StitchingInfo.MergedTypes[typeName]
	if !ok {
		return nil
	}
	return resolve.Resolver(mt, gatewayLoaders{gw})
}

type gatewayLoaders struct{ gw *Gateway }

func (g gatewayLoaders) For(typeName string) *loader.Loader {
	return g.gw.LoaderFor(typeName)
}

func collectMergedTypeNames(subschemas []*subschema.Subschema) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range subschemas {
		for name := range sub.Merge {
			names[name] = true
		}
	}
	return names
}

func buildSchema(result *merger.Result) (*ast.Schema, error) {
	schema := &ast.Schema{
		Types: result.Types,
		Directives: make(map[string]*ast.DirectiveDefinition, len(result.Directives)),
	}
	for _, d := range result.Directives {
		schema.Directives[d.Name] = d
	}
	if q, ok := result.Types["Query"]; ok {
		schema.Query = q
	} else {
		return nil, fmt.Errorf("composed schema has no Query root")
	}
	if m, ok := result.Types["Mutation"]; ok {
		schema.Mutation = m
	}
	if s, ok := result.Types["Subscription"]; ok {
		schema.Subscription = s
	}
	return schema, nil
}

// installBuiltinTransforms prepends the Request Transform Pipeline's
// built-ins onto every subschema's Transforms, ahead of anything a caller
// configured directly: every outgoing sub-request first gets its
// runtime-type __typename selections added, then its abstract-type
// fragments expanded to what the target actually implements, then its
// merged-type key/computed-field selections added, and is finally
// filtered down to what the target schema declares (with
// __typename re-added last, since filtering would otherwise drop it if the
// target's own selection never asked for it).
func installBuiltinTransforms(subschemas []*subschema.Subschema, composed *ast.Schema, info *stitching.Info) {
	for _, sub := range subschemas {
		builtins := []subschema.Transform{
			transform.NewWrapConcreteTypes(composed),
			transform.NewExpandAbstractTypes(sub.Schema),
			transform.NewAddSelectionSets(info.SelectionSetsByType, info.SelectionSetsByField),
			transform.NewFilterToSchema(sub.Schema),
			transform.NewAddTypename(),
		}
		sub.Transforms = append(builtins, sub.Transforms...)
	}
}

// compileSubschemaDirectives runs C11 against every subschema that hasn't
// already been given an explicit Merge map, filling one in from its SDL.
func compileSubschemaDirectives(subschemas []*subschema.Subschema, logger *zap.Logger) error {
	for _, sub := range subschemas {
		configs, err := directives.Compile(sub.Schema, logger)
		if err != nil {
			return err
		}
		if sub.Merge == nil {
			sub.Merge = configs
			continue
		}
		for name, cfg := range configs {
			if _, exists := sub.Merge[name]; !exists {
				sub.Merge[name] = cfg
			}
		}
	}
	return nil
}

// inheritResolversFromInterfaces copies every interface field an
// implementing object lacks onto that object; it installs no resolvers.
func inheritResolversFromInterfaces(schema *ast.Schema) {
	for _, def := range schema.Types {
		if def.Kind != ast.Object || len(def.Interfaces) == 0 {
			continue
		}
		for _, ifaceName := range def.Interfaces {
			iface, ok := schema.Types[ifaceName]
			if !ok {
				continue
			}
			for _, ifaceField := range iface.Fields {
				if def.Fields.ForName(ifaceField.Name) == nil {
					cp := *ifaceField
					def.Fields = append(def.Fields, &cp)
				}
			}
		}
	}
}
