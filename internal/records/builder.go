package records

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/library/log"
)

// SizeLookup resolves sizes for exact record names.
type SizeLookup interface {
	FetchSizesForExactNames(ctx context.Context, names []string) ([]PathSize, error)
}

// Builder reconstructs nested trees from path-encoded records.
// A Builder holds no per-call state and is safe for concurrent use.
type Builder struct {
	sizes  SizeLookup
	logger logSDK.Logger
}

// NewBuilder returns a Builder. sizes may be nil, in which case synthesized
// ancestors keep size 0.
func NewBuilder(sizes SizeLookup, logger logSDK.Logger) *Builder {
	if logger == nil {
		logger = log.Logger.Named("records_builder")
	}

	return &Builder{sizes: sizes, logger: logger}
}

// Build converts records into output nodes according to mode.
func (b *Builder) Build(ctx context.Context, records []Record, mode Mode) ([]*Node, error) {
	switch mode {
	case ModeFlat:
		return buildFlat(records), nil
	case ModeFull:
		return b.buildFull(ctx, records)
	default:
		return nil, errors.Errorf("unknown build mode %d", mode)
	}
}

func buildFlat(records []Record) []*Node {
	nodes := make([]*Node, 0, len(records))
	for _, r := range records {
		segments := SplitPath(r.Name)
		nodes = append(nodes, &Node{
			ID:       r.ID,
			Name:     segments[len(segments)-1],
			Path:     JoinPath(segments),
			Size:     r.Size,
			Children: []*Node{},
		})
	}

	return nodes
}

func (b *Builder) buildFull(ctx context.Context, records []Record) ([]*Node, error) {
	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		known[CanonicalPath(r.Name)] = struct{}{}
	}

	root := newTreeNode("", "")
	var missing []string
	for _, r := range records {
		segments := SplitPath(r.Name)
		current := root
		for i, segment := range segments {
			path := JoinPath(segments[:i+1])
			next, created := current.child(segment, path)
			if created && i < len(segments)-1 {
				if _, ok := known[path]; !ok {
					missing = append(missing, path)
				}
			}

			if i == len(segments)-1 {
				next.id = r.ID
				next.size = r.Size
			}
			current = next
		}
	}

	if len(missing) > 0 && b.sizes != nil {
		if err := b.backfillSizes(ctx, root, missing); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return convert(root), nil
}

// backfillSizes asks the lookup for the sizes of synthesized ancestors and
// writes them onto the matching nodes. Children are never touched.
func (b *Builder) backfillSizes(ctx context.Context, root *treeNode, paths []string) error {
	found, err := b.sizes.FetchSizesForExactNames(ctx, paths)
	if err != nil {
		return errors.Wrap(err, "fetch sizes for synthesized ancestors")
	}

	b.logger.Debug("backfill ancestor sizes",
		zap.Int("requested", len(paths)),
		zap.Int("found", len(found)))

	for _, ps := range found {
		key := CanonicalPath(ps.Name)
		current := root
		for _, segment := range SplitPath(ps.Name) {
			next, ok := current.children[segment]
			if !ok {
				break
			}
			if next.path == key {
				next.size = ps.Size
				break
			}
			current = next
		}
	}

	return nil
}

// convert emits the children of n in insertion order.
func convert(n *treeNode) []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, segment := range n.order {
		c := n.children[segment]
		out = append(out, &Node{
			ID:       c.id,
			Name:     c.name,
			Path:     c.path,
			Size:     c.size,
			Children: convert(c),
		})
	}

	return out
}
