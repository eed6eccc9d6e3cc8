package records

import (
	"strings"

	errors "github.com/Laisky/errors/v2"
)

// IntentKind tells which view of the hierarchy a caller asked for.
type IntentKind int

const (
	// IntentRoot lists top-level records.
	IntentRoot IntentKind = iota
	// IntentSearch lists records whose name contains a term.
	IntentSearch
	// IntentChildren lists the direct children of a parent path.
	IntentChildren
)

// String returns the intent name used in logs.
func (k IntentKind) String() string {
	switch k {
	case IntentRoot:
		return "root"
	case IntentSearch:
		return "search"
	case IntentChildren:
		return "children"
	default:
		return "unknown"
	}
}

// Intent is exactly one of search, root listing or children listing.
type Intent struct {
	Kind   IntentKind
	Term   string
	Parent string
}

// SearchIntent asks for every record whose name contains term.
func SearchIntent(term string) Intent {
	return Intent{Kind: IntentSearch, Term: term}
}

// RootIntent asks for the top-level records.
func RootIntent() Intent {
	return Intent{Kind: IntentRoot}
}

// ChildrenIntent asks for the direct children of parentPath.
func ChildrenIntent(parentPath string) Intent {
	return Intent{Kind: IntentChildren, Parent: parentPath}
}

// ParseIntent builds an intent from raw request parameters.
// A blank search counts as absent. Precedence is search > parent > root.
func ParseIntent(search, parent string) Intent {
	if term := strings.TrimSpace(search); term != "" {
		return SearchIntent(term)
	}
	if strings.TrimSpace(parent) != "" {
		return ChildrenIntent(CanonicalPath(parent))
	}

	return RootIntent()
}

// FetchKind names the record set a plan fetches.
type FetchKind int

const (
	// FetchRoots fetches records whose name has no delimiter.
	FetchRoots FetchKind = iota
	// FetchSubstring fetches records whose name contains Plan.Term.
	FetchSubstring
	// FetchDirectChildren fetches records exactly one segment below Plan.Parent.
	FetchDirectChildren
)

// Plan is the outcome of resolving an intent: what to fetch and how to build.
type Plan struct {
	Kind   FetchKind
	Term   string
	Parent string
	Mode   Mode
}

// Resolve maps an intent to its fetch plan and builder mode.
// Search and root listings build the full tree; children listings are flat
// because the caller already holds the parent.
func Resolve(intent Intent) (Plan, error) {
	switch intent.Kind {
	case IntentSearch:
		term := strings.TrimSpace(intent.Term)
		if term == "" {
			return Plan{}, errors.Wrap(ErrInvalidIntent, "search term is blank")
		}
		return Plan{Kind: FetchSubstring, Term: term, Mode: ModeFull}, nil
	case IntentRoot:
		return Plan{Kind: FetchRoots, Mode: ModeFull}, nil
	case IntentChildren:
		if strings.TrimSpace(intent.Parent) == "" {
			return Plan{}, errors.Wrap(ErrInvalidIntent, "parent path is blank")
		}
		return Plan{Kind: FetchDirectChildren, Parent: CanonicalPath(intent.Parent), Mode: ModeFlat}, nil
	default:
		return Plan{}, errors.Wrapf(ErrInvalidIntent, "unknown intent kind %d", intent.Kind)
	}
}

// IsDirectChild reports whether name is exactly one segment below parentPath,
// where parentPath may itself sit anywhere below the root
// (`<anything> > parent > child` or `parent > child`).
func IsDirectChild(name, parentPath string) bool {
	segments := SplitPath(name)
	parent := SplitPath(parentPath)
	if len(segments) < len(parent)+1 {
		return false
	}

	offset := len(segments) - 1 - len(parent)
	for i, p := range parent {
		if segments[offset+i] != p {
			return false
		}
	}

	return true
}

// filterDirectChildren keeps the records that are direct children of parentPath.
func filterDirectChildren(records []Record, parentPath string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if IsDirectChild(r.Name, parentPath) {
			out = append(out, r)
		}
	}

	return out
}
