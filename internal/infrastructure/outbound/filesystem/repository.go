package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mimic/internal/domain/resource"
)

// DefaultGlob selects the configuration files under the root directory.
const DefaultGlob = "**/*.{yaml,yml}"

var _ resource.Repository = (*YAMLRepository)(nil)

// YAMLRepository loads resource definitions from YAML files in a directory
// tree. Files are read in lexical order; a file is either a mapping with a
// resources list or a bare list of resources. Other mappings are treated as
// !include fragments and skipped.
type YAMLRepository struct {
	rootDir  string
	glob     string
	resolver *IncludeResolver
}

// NewYAMLRepository creates a repository rooted at rootDir. glob filters files
// by their slash-separated path relative to rootDir; empty means DefaultGlob.
func NewYAMLRepository(rootDir, glob string) (*YAMLRepository, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	if glob == "" {
		glob = DefaultGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid config glob %q", glob)
	}
	return &YAMLRepository{
		rootDir:  absRoot,
		glob:     glob,
		resolver: NewIncludeResolver(absRoot),
	}, nil
}

// RootDir returns the absolute configuration root.
func (r *YAMLRepository) RootDir() string { return r.rootDir }

// LoadAll walks the root directory and returns every resource in
// declaration order. Resource IDs must be unique.
func (r *YAMLRepository) LoadAll(_ context.Context) ([]*resource.Definition, error) {
	var defs []*resource.Definition
	seen := make(map[string]string)

	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(r.glob, rel); !ok {
			return nil
		}

		loaded, err := r.loadFile(path, rel)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", rel, err)
		}
		for _, def := range loaded {
			if prev, dup := seen[def.ID]; dup {
				return fmt.Errorf("duplicate resource id %q in %s (first declared in %s)", def.ID, rel, prev)
			}
			seen[def.ID] = rel
		}
		defs = append(defs, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk config directory: %w", err)
	}

	return defs, nil
}

// LoadByID loads a single resource by its ID.
func (r *YAMLRepository) LoadByID(ctx context.Context, id string) (*resource.Definition, error) {
	all, err := r.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}
	for _, d := range all {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, resource.ErrNotFound
}

func (r *YAMLRepository) loadFile(path, rel string) ([]*resource.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Parse into a yaml.Node tree to handle !include tags.
	var rootNode yaml.Node
	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if rootNode.Kind != yaml.DocumentNode || len(rootNode.Content) == 0 {
		// Empty file.
		return nil, nil
	}

	fileDir := filepath.Dir(path)
	if err := r.resolver.ResolveIncludes(&rootNode, fileDir); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}

	var file yamlFile
	content := rootNode.Content[0]
	switch {
	case content.Kind == yaml.SequenceNode:
		if err := content.Decode(&file.Resources); err != nil {
			return nil, fmt.Errorf("failed to decode resources: %w", err)
		}
	case content.Kind == yaml.MappingNode && hasKey(content, "resources"):
		if err := content.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode resources: %w", err)
		}
	default:
		return nil, nil
	}

	defs := make([]*resource.Definition, 0, len(file.Resources))
	for i := range file.Resources {
		def, err := toDefinition(&file.Resources[i], file.BasePath)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		if def.ID == "" {
			def.ID = rel + "#" + strconv.Itoa(i)
		}
		def.SourceFile = path
		def.SourceIndex = i
		def.ConfigDir = fileDir
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

func toDefinition(yr *yamlResource, basePath string) (*resource.Definition, error) {
	def := &resource.Definition{
		ID:             yr.ID,
		Method:         strings.ToUpper(yr.Method),
		Path:           joinBasePath(basePath, yr.Path),
		Regex:          yr.Regex,
		Script:         yr.Script,
		Interceptor:    yr.Interceptor,
		ContinueToNext: yr.Continue,
		Response:       toResponseSpec(&yr.Response),
	}

	for i, yc := range yr.Conditions {
		c, err := toCondition(yc)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		def.Conditions = append(def.Conditions, c)
	}

	for _, yc := range yr.Capture {
		def.Captures = append(def.Captures, resource.Capture{
			Name:  yc.Name,
			Store: yc.Store,
			Key:   toValueSource(yc.Key),
			Value: toValueSource(yc.Value),
			Phase: resource.Phase(strings.ToLower(yc.Phase)),
		})
	}

	if yr.RateLimit != nil {
		def.RateLimit = &resource.RateLimit{
			Rate:  yr.RateLimit.Rate,
			Burst: yr.RateLimit.Burst,
			Key:   yr.RateLimit.Key,
		}
	}

	return def, nil
}

func joinBasePath(basePath, path string) string {
	if basePath == "" || path == "" {
		return path
	}
	return strings.TrimSuffix(basePath, "/") + "/" + strings.TrimPrefix(path, "/")
}

func toCondition(yc yamlCondition) (resource.Condition, error) {
	c := resource.Condition{Operator: yc.Operator, Value: yc.Value}
	if c.Operator == "" {
		c.Operator = "EqualTo"
	}

	sources := []struct {
		source resource.Source
		name   *string
	}{
		{resource.SourceHeader, yc.Header},
		{resource.SourceQuery, yc.Query},
		{resource.SourcePath, yc.Path},
		{resource.SourceForm, yc.Form},
		{resource.SourceBody, yc.Body},
		{resource.SourceExpression, yc.Expression},
	}
	for _, s := range sources {
		if s.name == nil {
			continue
		}
		if c.Source != "" {
			return c, fmt.Errorf("only one of header, query, path, form, body or expression may be set")
		}
		c.Source, c.Name = s.source, *s.name
	}
	if c.Source == "" {
		return c, fmt.Errorf("one of header, query, path, form, body or expression is required")
	}
	return c, nil
}

func toValueSource(yv yamlValueSource) resource.ValueSource {
	return resource.ValueSource{
		Const:      yv.Const,
		Expression: yv.Expression,
		JSONPath:   yv.JSONPath,
		XPath:      yv.XPath,
	}
}

func toResponseSpec(yr *yamlResponse) resource.ResponseSpec {
	spec := resource.ResponseSpec{
		StatusCode:  yr.StatusCode,
		Content:     yr.Content,
		File:        yr.File,
		Headers:     yr.Headers,
		Template:    yr.Template,
		Engine:      yr.Engine,
		FailureType: yr.FailureType,
	}
	if yr.Delay != nil {
		spec.Delay = &resource.Delay{
			ExactMs: yr.Delay.ExactMs,
			MinMs:   yr.Delay.MinMs,
			MaxMs:   yr.Delay.MaxMs,
		}
	}
	return spec
}
