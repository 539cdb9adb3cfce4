package tree

// WalkFunc is called for every node below the root. names is the chain of
// node names from the root's children down to node, inclusive.
// Returning SkipFolder from a call on a folder skips its children.
type WalkFunc func(node Node, names []string) error

// SkipFolder is returned by a WalkFunc to skip the children of a folder.
var SkipFolder = skipFolder{}

type skipFolder struct{}

func (skipFolder) Error() string { return "skip this folder" }

// Walk visits the nodes below root in pre-order. For every folder, the
// Files collection is visited before the Folders collection, and each
// collection is visited in insertion order.
func Walk(root *Folder, fn WalkFunc) error {
	return walk(root, nil, fn)
}

func walk(folder *Folder, names []string, fn WalkFunc) error {
	for _, set := range []*Children{folder.Files, folder.Folders} {
		for _, child := range set.Nodes() {
			// Copy so that callers can keep the slice.
			childNames := make([]string, len(names)+1)
			copy(childNames, names)
			childNames[len(names)] = child.GetName()

			err := fn(child, childNames)
			if err == SkipFolder {
				continue
			}
			if err != nil {
				return err
			}

			if sub, ok := child.(*Folder); ok {
				if err := walk(sub, childNames, fn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Stats summarizes a tree.
type Stats struct {
	Folders    int
	Files      int
	TotalBytes uint64

	// Unexpanded counts folders whose contents were never listed.
	Unexpanded int
}

// Count returns the Stats for the nodes below root.
func Count(root *Folder) Stats {
	var stats Stats
	if !root.Expanded() {
		stats.Unexpanded++
	}
	Walk(root, func(node Node, _ []string) error {
		switch node := node.(type) {
		case *Folder:
			stats.Folders++
			if !node.Expanded() {
				stats.Unexpanded++
			}
		case *File:
			stats.Files++
			stats.TotalBytes += node.Length
		}
		return nil
	})
	return stats
}
