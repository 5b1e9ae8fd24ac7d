package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// IncludeResolver replaces !include tagged nodes with the referenced file.
// YAML and JSON files are spliced in as nodes; anything else becomes a string
// scalar. References are relative to the including file, or to the root with
// the @root/ prefix, and may not leave the root.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver confined to rootDir.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes resolves every !include below node. currentDir is the
// directory of the file node was read from.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.walk(node, currentDir, 0)
}

func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("!include depth exceeds maximum of %d", maxIncludeDepth)
	}
	if node == nil {
		return nil
	}
	if node.Tag == "!include" {
		return r.include(node, currentDir, depth)
	}
	for _, child := range node.Content {
		if err := r.walk(child, currentDir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) include(node *yaml.Node, currentDir string, depth int) error {
	ref := node.Value
	if ref == "" {
		return fmt.Errorf("!include tag has empty value")
	}

	resolved, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("failed to resolve !include %q: %w", ref, err)
	}
	if err := r.confine(resolved); err != nil {
		return fmt.Errorf("!include path %q is not allowed: %w", ref, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read included file %q: %w", ref, err)
	}

	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml", ".json":
		var included yaml.Node
		if err := yaml.Unmarshal(data, &included); err != nil {
			return fmt.Errorf("failed to parse included file %q: %w", ref, err)
		}
		if err := r.walk(&included, filepath.Dir(resolved), depth+1); err != nil {
			return err
		}
		if included.Kind == yaml.DocumentNode && len(included.Content) > 0 {
			*node = *included.Content[0]
		}
	default:
		node.Tag = "!!str"
		node.Kind = yaml.ScalarNode
		node.Style = 0
		node.Value = string(data)
	}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	if rest, ok := strings.CutPrefix(ref, "@root/"); ok {
		return filepath.Join(r.rootDir, rest), nil
	}
	if filepath.IsAbs(ref) {
		return "", fmt.Errorf("absolute paths are not allowed in !include")
	}
	return filepath.Join(currentDir, ref), nil
}

// confine rejects paths that resolve, symlinks included, outside the root.
func (r *IncludeResolver) confine(path string) error {
	if !Within(r.rootDir, path) {
		return fmt.Errorf("path escapes root directory")
	}
	return nil
}

// Within reports whether path lies inside root once both are made absolute
// and symlinks are evaluated.
func Within(root, path string) bool {
	var err error
	if root, err = filepath.Abs(root); err != nil {
		return false
	}
	if path, err = filepath.Abs(path); err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	} else if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(dir, filepath.Base(path))
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
