package media

import (
	"context"
	"fmt"
	"path"

	"github.com/fruitsalade/mediavault/internal/storage"
)

// DirectoryNode is one directory in the scanned tree.
type DirectoryNode struct {
	Name     string          `json:"name" yaml:"name"`
	Path     string          `json:"path" yaml:"path"`
	Children []DirectoryNode `json:"children" yaml:"children,omitempty"`
}

// Scanner walks the allowed roots on a backend to a fixed depth.
type Scanner struct {
	backend storage.Backend
	roots   []string
	depth   int
}

// NewScanner creates a scanner over roots, in the given order.
func NewScanner(backend storage.Backend, roots []string, depth int) *Scanner {
	return &Scanner{backend: backend, roots: append([]string(nil), roots...), depth: depth}
}

// Tree returns one node per root. Children are listed depth levels below
// each root; a root missing on the backend is a leaf.
func (s *Scanner) Tree(ctx context.Context) ([]DirectoryNode, error) {
	tree := make([]DirectoryNode, 0, len(s.roots))
	for _, root := range s.roots {
		children, err := s.scan(ctx, root, s.depth)
		if err != nil {
			return nil, err
		}
		tree = append(tree, DirectoryNode{Name: root, Path: root, Children: children})
	}
	return tree, nil
}

func (s *Scanner) scan(ctx context.Context, dir string, depth int) ([]DirectoryNode, error) {
	nodes := []DirectoryNode{}
	if depth <= 0 {
		return nodes, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirs, err := s.backend.ListDirectories(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, d := range dirs {
		children, err := s.scan(ctx, d, depth-1)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, DirectoryNode{Name: path.Base(d), Path: d, Children: children})
	}
	return nodes, nil
}

// Flatten lists every path in the tree, parents before children.
func Flatten(tree []DirectoryNode) []string {
	out := []string{}
	var walk func([]DirectoryNode)
	walk = func(nodes []DirectoryNode) {
		for _, n := range nodes {
			out = append(out, n.Path)
			walk(n.Children)
		}
	}
	walk(tree)
	return out
}
