/*
Package tree models a crawled remote folder hierarchy.

A tree is made of two kinds of nodes: Folders, which only hold children, and
Files, which carry the size and modification time reported by the remote
store. Which kind a node is gets decided once, when the node is built by the
crawler or parsed from a snapshot, and never re-inferred afterwards.

Each folder keeps two independent child collections, Folders and Files.
Names are unique within a collection, but a folder and a file in the same
parent may share a name. Children keep the order in which they were added,
so walking a tree visits nodes in the order the remote listing returned
them.
*/
package tree

import (
	"time"

	"github.com/sidkik/odbsync/pkg/errors"
)

// Node is either a *Folder or a *File.
type Node interface {
	GetName() string
	GetServerRelativeURL() string

	isNode()
}

// A Folder is a remote directory.
type Folder struct {
	Name              string
	ServerRelativeURL string

	// Folders usually only holds *Folder values, but a snapshot may file
	// an entry with a Length under Folders, in which case it's kept as a
	// *File.
	Folders *Children
	Files   *Children

	// expanded is false when the folder's listings were never fetched,
	// which is different from a folder that is known to be empty.
	expanded bool
}

// A File is a remote file.
type File struct {
	Name              string
	ServerRelativeURL string
	Length            uint64
	TimeLastModified  time.Time
}

// NewFolder returns a folder whose contents haven't been listed yet.
func NewFolder(name, serverRelativeURL string) *Folder {
	return &Folder{
		Name:              name,
		ServerRelativeURL: serverRelativeURL,
		Folders:           newChildren(),
		Files:             newChildren(),
	}
}

func (f *Folder) GetName() string              { return f.Name }
func (f *Folder) GetServerRelativeURL() string { return f.ServerRelativeURL }
func (*Folder) isNode()                        {}

func (f *File) GetName() string              { return f.Name }
func (f *File) GetServerRelativeURL() string { return f.ServerRelativeURL }
func (*File) isNode()                        {}

// Expanded returns whether the folder's children have been listed.
func (f *Folder) Expanded() bool {
	return f.expanded
}

// MarkExpanded records that the folder's listings are complete.
func (f *Folder) MarkExpanded() {
	f.expanded = true
}

// AddFolder adds a subfolder. It fails if a subfolder with the same name
// already exists.
func (f *Folder) AddFolder(child *Folder) error {
	return f.add(f.Folders, child)
}

// AddFile adds a file. It fails if a file with the same name already exists.
func (f *Folder) AddFile(child *File) error {
	return f.add(f.Files, child)
}

func (f *Folder) add(set *Children, child Node) error {
	if !set.add(child) {
		return errors.SchemaError{
			Kind: errors.DuplicateName,
			Path: f.ServerRelativeURL,
			Name: child.GetName(),
		}
	}
	return nil
}

// Children is a collection of uniquely named nodes that remembers insertion
// order.
type Children struct {
	order  []string
	byName map[string]Node
}

func newChildren() *Children {
	return &Children{byName: map[string]Node{}}
}

func (c *Children) add(n Node) bool {
	if _, ok := c.byName[n.GetName()]; ok {
		return false
	}
	c.byName[n.GetName()] = n
	c.order = append(c.order, n.GetName())
	return true
}

// Replace swaps the node stored under n's name, keeping its position. It
// returns false if no such node exists.
func (c *Children) Replace(n Node) bool {
	if _, ok := c.byName[n.GetName()]; !ok {
		return false
	}
	c.byName[n.GetName()] = n
	return true
}

// Get looks up a child by name.
func (c *Children) Get(name string) (Node, bool) {
	if c == nil {
		return nil, false
	}
	n, ok := c.byName[name]
	return n, ok
}

// Len returns the number of children.
func (c *Children) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Names returns the child names in insertion order.
func (c *Children) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Nodes returns the children in insertion order.
func (c *Children) Nodes() []Node {
	if c == nil {
		return nil
	}
	nodes := make([]Node, 0, len(c.order))
	for _, name := range c.order {
		nodes = append(nodes, c.byName[name])
	}
	return nodes
}
