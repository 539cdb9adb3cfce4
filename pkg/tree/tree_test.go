package tree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/odbsync/pkg/errors"
)

func TestAddDuplicate(t *testing.T) {
	root := NewFolder("root", "/root")
	require.NoError(t, root.AddFile(&File{Name: "a"}))
	require.NoError(t, root.AddFolder(NewFolder("a", "/root/a")))

	err := root.AddFile(&File{Name: "a", Length: 5})
	assert.Equal(t, errors.SchemaError{
		Kind: errors.DuplicateName,
		Path: "/root",
		Name: "a",
	}, err)

	err = root.AddFolder(NewFolder("a", "/root/a"))
	assert.Error(t, err)

	// The original entry is kept.
	node, ok := root.Files.Get("a")
	require.True(t, ok)
	assert.Equal(t, uint64(0), node.(*File).Length)
}

func TestReplace(t *testing.T) {
	root := NewFolder("root", "/root")
	require.NoError(t, root.AddFolder(NewFolder("a", "/root/a")))
	require.NoError(t, root.AddFolder(NewFolder("b", "/root/b")))

	expanded := NewFolder("a", "/root/a")
	expanded.MarkExpanded()
	assert.True(t, root.Folders.Replace(expanded))
	assert.False(t, root.Folders.Replace(NewFolder("c", "/root/c")))

	assert.Equal(t, []string{"a", "b"}, root.Folders.Names())
	node, _ := root.Folders.Get("a")
	assert.True(t, node.(*Folder).Expanded())
}

func TestWalk(t *testing.T) {
	root := mockTree(t)

	type visit struct {
		name  string
		names []string
	}
	var visits []visit
	err := Walk(root, func(node Node, names []string) error {
		visits = append(visits, visit{node.GetName(), names})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []visit{
		{"z-notes & ideas.txt", []string{"z-notes & ideas.txt"}},
		{"ünïcode.md", []string{"ünïcode.md"}},
		{"reports", []string{"reports"}},
		{"q1.pdf", []string{"reports", "q1.pdf"}},
		{"archive", []string{"archive"}},
	}, visits)

	visits = nil
	err = Walk(root, func(node Node, names []string) error {
		visits = append(visits, visit{node.GetName(), names})
		if node.GetName() == "reports" {
			return SkipFolder
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, visits, 4)

	stop := errors.New("stop")
	err = Walk(root, func(Node, []string) error { return stop })
	assert.Equal(t, stop, err)
}

func TestCount(t *testing.T) {
	assert.Equal(t, Stats{
		Folders:    2,
		Files:      3,
		TotalBytes: 1<<33 + 10,
		Unexpanded: 1,
	}, Count(mockTree(t)))
}

func TestPrint(t *testing.T) {
	root := NewFolder("root", "/root")
	root.MarkExpanded()

	b10 := NewFolder("b10", "/root/b10")
	b10.MarkExpanded()
	b2 := NewFolder("B2", "/root/B2")
	b2.MarkExpanded()
	require.NoError(t, b2.AddFile(&File{Name: "x", Length: 100}))

	require.NoError(t, root.AddFolder(b10))
	require.NoError(t, root.AddFolder(b2))
	require.NoError(t, root.AddFile(&File{Name: "z.txt", Length: 5}))
	require.NoError(t, root.AddFile(&File{Name: "a.txt", Length: 2048}))

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, root))
	assert.Equal(t, "root\n"+
		"├── B2\n"+
		"│   └── [    100 B] x\n"+
		"├── b10\n"+
		"├── [  2.0 KiB] a.txt\n"+
		"└── [      5 B] z.txt\n", buf.String())
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		exp  bool
	}{
		{"file2", "file10", true},
		{"file10", "file2", false},
		{"File2", "file10", true},
		{"a", "B", true},
		{"b", "A", false},
		{"x01", "x1", true},
		{"x1", "x01", false},
		{"abc", "abcd", true},
		{"same", "same", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.exp, naturalLess(test.a, test.b), "%s < %s", test.a, test.b)
	}
}
