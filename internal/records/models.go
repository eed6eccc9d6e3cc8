// Package records rebuilds the record hierarchy from path-encoded rows
// and answers search, root and children queries against it.
package records

// Record is one row of the path-encoded record table.
type Record struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// PathSize is a row returned by the exact-name size lookup.
type PathSize struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Node is the serialized tree node returned to callers.
// Children is never nil so leaves encode as `"children": []`.
type Node struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Children []*Node `json:"children"`
}

// Mode selects how Build turns records into nodes.
type Mode int

const (
	// ModeFull assembles the nested tree and synthesizes missing ancestors.
	ModeFull Mode = iota
	// ModeFlat maps every record to a single childless node named after its last segment.
	ModeFlat
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// treeNode is the mutable node used while walking paths.
// children gives O(1) segment lookup, order keeps first-insertion order.
type treeNode struct {
	id       int64
	name     string
	path     string
	size     int64
	children map[string]*treeNode
	order    []string
}

func newTreeNode(name, path string) *treeNode {
	return &treeNode{
		name:     name,
		path:     path,
		children: make(map[string]*treeNode),
	}
}

// child returns the child for segment, creating it when absent.
// created reports whether a new node was inserted.
func (n *treeNode) child(segment, path string) (c *treeNode, created bool) {
	if c, ok := n.children[segment]; ok {
		return c, false
	}

	c = newTreeNode(segment, path)
	n.children[segment] = c
	n.order = append(n.order, segment)
	return c, true
}
