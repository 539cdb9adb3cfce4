package tree

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

const (
	branch     = "├── "
	lastBranch = "└── "
	pipe       = "│   "
	indent     = "    "
)

// Print writes a human readable rendering of the tree to w. Within each
// folder, subfolders come first and then files, each sorted in natural,
// case-insensitive order. Files are prefixed with their size.
func Print(w io.Writer, root *Folder) error {
	p := printer{w: w}
	p.node(root, "")
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(prefix, text string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, prefix+text)
}

func (p *printer) node(n Node, prefix string) {
	switch n := n.(type) {
	case *File:
		p.line(prefix, fmt.Sprintf("[%9s] %s", humanize.IBytes(n.Length), n.Name))
	case *Folder:
		p.line(prefix, n.Name)

		var base string
		switch {
		case prefix == "":
		case strings.HasSuffix(prefix, branch):
			base = strings.TrimSuffix(prefix, branch) + pipe
		default:
			base = strings.TrimSuffix(prefix, lastBranch) + indent
		}

		children := append(sortedNodes(n.Folders), sortedNodes(n.Files)...)
		for i, child := range children {
			if i == len(children)-1 {
				p.node(child, base+lastBranch)
			} else {
				p.node(child, base+branch)
			}
		}
	}
}

func sortedNodes(set *Children) []Node {
	nodes := set.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return naturalLess(nodes[i].GetName(), nodes[j].GetName())
	})
	return nodes
}

// naturalLess compares strings case-insensitively, treating runs of digits
// as numbers so that "file2" sorts before "file10".
func naturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}

			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}

		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}

	if len(ra)-i != len(rb)-j {
		return len(ra)-i < len(rb)-j
	}
	return a < b
}
