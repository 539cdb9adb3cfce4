package plan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/tree"
)

var remoteModTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

type mockNode struct {
	name   string
	length uint64

	// A folder with nil children is left unlisted.
	isFolder bool
	children []mockNode
}

func file(name string, length uint64) mockNode {
	return mockNode{name: name, length: length}
}

func folder(name string, children ...mockNode) mockNode {
	return mockNode{name: name, isFolder: true, children: children}
}

func buildTree(t *testing.T, rootURL string, children ...mockNode) *tree.Folder {
	root := tree.NewFolder(filepath.Base(rootURL), rootURL)
	addChildren(t, root, children)
	return root
}

func addChildren(t *testing.T, parent *tree.Folder, children []mockNode) {
	parent.MarkExpanded()
	for _, child := range children {
		url := parent.ServerRelativeURL + "/" + child.name
		if !child.isFolder {
			require.NoError(t, parent.AddFile(&tree.File{
				Name:              child.name,
				ServerRelativeURL: url,
				Length:            child.length,
				TimeLastModified:  remoteModTime,
			}))
			continue
		}

		sub := tree.NewFolder(child.name, url)
		if child.children != nil {
			addChildren(t, sub, child.children)
		}
		require.NoError(t, parent.AddFolder(sub))
	}
}

func writeLocal(t *testing.T, fs afero.Fs, path string, size int, modTime time.Time) {
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0644))
	require.NoError(t, fs.Chtimes(path, modTime, modTime))
}

type statErrorFs struct {
	afero.Fs
}

func (statErrorFs) Stat(name string) (os.FileInfo, error) {
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
}

func TestClassify(t *testing.T) {
	olderThanRemote := remoteModTime.Add(-time.Hour)
	newerThanRemote := remoteModTime.Add(time.Hour)

	tests := []struct {
		name           string
		mockLocal      func(t *testing.T, fs afero.Fs)
		compareModTime bool
		expKind        Kind
		expReason      SkipReason
	}{
		{
			name:    "Missing",
			expKind: FetchNew,
		},
		{
			name: "SameSize",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 5, olderThanRemote)
			},
			expKind:   Skip,
			expReason: SameSize,
		},
		{
			name: "DifferentSize",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 3, newerThanRemote)
			},
			expKind: FetchUpdate,
		},
		{
			name: "LargerLocally",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 9, newerThanRemote)
			},
			expKind: FetchUpdate,
		},
		{
			name: "SameSizeOlderStrict",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 5, olderThanRemote)
			},
			compareModTime: true,
			expKind:        FetchUpdate,
		},
		{
			name: "SameSizeNewerStrict",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 5, newerThanRemote)
			},
			compareModTime: true,
			expKind:        Skip,
			expReason:      SameSizeAndNotNewer,
		},
		{
			name: "SameSizeSameTimeStrict",
			mockLocal: func(t *testing.T, fs afero.Fs) {
				writeLocal(t, fs, "/local/a.txt", 5, remoteModTime)
			},
			compareModTime: true,
			expKind:        Skip,
			expReason:      SameSizeAndNotNewer,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if test.mockLocal != nil {
				test.mockLocal(t, fs)
			}

			planner, err := New(fs, Options{CompareModTime: test.compareModTime})
			require.NoError(t, err)

			root := buildTree(t, "/personal/u/Documents", file("a.txt", 5))
			actions, err := planner.Plan(context.Background(), root, "/local", "/personal/u/Documents")
			require.NoError(t, err)
			require.Len(t, actions, 1)

			assert.Equal(t, test.expKind, actions[0].Kind)
			assert.Equal(t, test.expReason, actions[0].Reason)
			assert.Equal(t, "/local/a.txt", actions[0].LocalPath)
		})
	}
}

func TestPlanSingleNewFile(t *testing.T) {
	root := buildTree(t, "/personal/u/Documents", folder("sub", file("a.txt", 10)))

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/personal/u/Documents")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, FetchNew, actions[0].Kind)
	assert.Equal(t, "/dl/sub/a.txt", actions[0].LocalPath)
	assert.False(t, actions[0].Local.Exists)
	assert.Equal(t, Summary{New: 1, Bytes: 10}, Summarize(actions))
}

func TestPlanPrefixIsStringPrefix(t *testing.T) {
	root := buildTree(t, "/docs",
		file("20240101.txt", 1),
		file("2023.txt", 1),
		folder("2024", file("x.txt", 1)))

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/docs/2024")
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, "/docs/20240101.txt", actions[0].File.ServerRelativeURL)
	assert.Equal(t, FetchNew, actions[0].Kind)

	assert.Equal(t, "/docs/2023.txt", actions[1].File.ServerRelativeURL)
	assert.Equal(t, Skip, actions[1].Kind)
	assert.Equal(t, PrefixMismatch, actions[1].Reason)

	assert.Equal(t, "/docs/2024/x.txt", actions[2].File.ServerRelativeURL)
	assert.Equal(t, FetchNew, actions[2].Kind)
}

func TestPlanOrder(t *testing.T) {
	root := buildTree(t, "/r",
		folder("z", file("z1", 1), folder("deep", file("d1", 1))),
		file("b", 1),
		folder("a", file("a1", 1)),
		file("a", 1))

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "")
	require.NoError(t, err)

	var paths []string
	for _, a := range actions {
		paths = append(paths, a.LocalPath)
	}
	assert.Equal(t, []string{"/dl/b", "/dl/a", "/dl/z/z1", "/dl/z/deep/d1", "/dl/a/a1"}, paths)
}

func TestPlanIsIdempotentAfterDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := buildTree(t, "/r",
		file("one", 1),
		folder("sub", file("two", 2), folder("unlisted")))

	planner, err := New(fs, Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	assert.Equal(t, Summary{New: 2, Bytes: 3}, Summarize(actions))

	// Mock the downloads.
	for _, a := range actions {
		writeLocal(t, fs, a.LocalPath, int(a.File.Length), remoteModTime)
	}

	actions, err = planner.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	assert.Equal(t, Summary{Skip: 2}, Summarize(actions))
}

func TestPlanExclude(t *testing.T) {
	root := buildTree(t, "/r",
		file("keep.txt", 1),
		file("skip.tmp", 1),
		folder("cache", file("blob", 1)),
		folder("sub", file("nested.tmp", 1)))

	planner, err := New(afero.NewMemMapFs(), Options{Exclude: []string{"**/*.tmp", "cache/**"}})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	require.Len(t, actions, 4)

	accepted := map[string]bool{}
	for _, a := range actions {
		accepted[a.File.Name] = a.Accepted()
		if !a.Accepted() {
			assert.Equal(t, Excluded, a.Reason)
		}
	}
	assert.Equal(t, map[string]bool{
		"keep.txt":   true,
		"skip.tmp":   false,
		"blob":       false,
		"nested.tmp": false,
	}, accepted)
}

func TestNewInvalidExclude(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), Options{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestPlanLocalStateErrors(t *testing.T) {
	root := buildTree(t, "/r", file("a.txt", 1))

	t.Run("Directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/dl/a.txt", 0755))

		planner, err := New(fs, Options{})
		require.NoError(t, err)

		actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
		assert.Nil(t, actions)

		var stateErr errors.LocalStateError
		require.True(t, errors.As(err, &stateErr))
		assert.Equal(t, errors.NotAFile, stateErr.Kind)
		assert.Equal(t, "/dl/a.txt", stateErr.Path)
	})

	t.Run("Unreadable", func(t *testing.T) {
		planner, err := New(statErrorFs{afero.NewMemMapFs()}, Options{Parallelism: 4})
		require.NoError(t, err)

		actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
		assert.Nil(t, actions)

		var stateErr errors.LocalStateError
		require.True(t, errors.As(err, &stateErr))
		assert.Equal(t, errors.Unreadable, stateErr.Kind)
		assert.True(t, os.IsPermission(errors.RootCause(stateErr.Err)))
	})

	t.Run("PrefixMismatchDoesNotStat", func(t *testing.T) {
		planner, err := New(statErrorFs{afero.NewMemMapFs()}, Options{})
		require.NoError(t, err)

		actions, err := planner.Plan(context.Background(), root, "/dl", "/elsewhere")
		require.NoError(t, err)
		assert.Equal(t, PrefixMismatch, actions[0].Reason)
	})
}

func TestPlanUnexpanded(t *testing.T) {
	root := buildTree(t, "/r", file("a", 1), folder("unlisted"))
	unlisted, _ := root.Folders.Get("unlisted")
	assert.False(t, unlisted.(*tree.Folder).Expanded())

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	actions, err = planner.Plan(context.Background(), tree.NewFolder("r", "/r"), "/dl", "/r")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPlanFileFiledUnderFolders(t *testing.T) {
	root, err := tree.Parse([]byte(`{"Name": "r", "ServerRelativeUrl": "/r", "Files": {}, "Folders": {
		"odd": {"Name": "odd", "ServerRelativeUrl": "/r/odd", "Length": "3",
			"TimeLastModified": "2021-03-04T05:06:07Z"}}}`))
	require.NoError(t, err)

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	actions, err := planner.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, FetchNew, actions[0].Kind)
	assert.Equal(t, "/dl/odd", actions[0].LocalPath)
}

func TestPlanParallelMatchesSequential(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeLocal(t, fs, "/dl/b/b2", 2, remoteModTime)
	writeLocal(t, fs, "/dl/c/c1", 7, remoteModTime)

	var children []mockNode
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		children = append(children,
			folder(name, file(name+"1", 1), file(name+"2", 2), folder("x", file(name+"3", 3))))
	}
	children = append(children, file("top", 4))
	root := buildTree(t, "/r", children...)

	sequential, err := New(fs, Options{Parallelism: 1})
	require.NoError(t, err)
	parallel, err := New(fs, Options{Parallelism: 3})
	require.NoError(t, err)

	exp, err := sequential.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	actual, err := parallel.Plan(context.Background(), root, "/dl", "/r")
	require.NoError(t, err)
	assert.Equal(t, exp, actual)
	assert.Len(t, actual, 16)
}

func TestPlanCancelled(t *testing.T) {
	root := buildTree(t, "/r", folder("a", file("a1", 1)))

	planner, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = planner.Plan(ctx, root, "/dl", "/r")
	assert.Equal(t, context.Canceled, errors.RootCause(err))
}

// haltingFs fails the stat of failPath. The stat of waitPath doesn't return
// until failPath has been stat'ed and the failure has had time to propagate.
type haltingFs struct {
	afero.Fs
	failPath, waitPath string
	failed             chan struct{}

	lock    sync.Mutex
	statted []string
}

func (fs *haltingFs) Stat(name string) (os.FileInfo, error) {
	fs.lock.Lock()
	fs.statted = append(fs.statted, name)
	fs.lock.Unlock()

	switch name {
	case fs.failPath:
		close(fs.failed)
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	case fs.waitPath:
		<-fs.failed
		time.Sleep(100 * time.Millisecond)
	}
	return fs.Fs.Stat(name)
}

func TestPlanParallelStopsOtherUnitsOnFailure(t *testing.T) {
	root := buildTree(t, "/r",
		file("bad", 1),
		folder("big",
			file("first", 1),
			folder("sub", file("never", 1))))

	fs := &haltingFs{
		Fs:       afero.NewMemMapFs(),
		failPath: "/dl/bad",
		waitPath: "/dl/big/first",
		failed:   make(chan struct{}),
	}
	planner, err := New(fs, Options{Parallelism: 2})
	require.NoError(t, err)

	_, err = planner.Plan(context.Background(), root, "/dl", "/r")

	var stateErr errors.LocalStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "/dl/bad", stateErr.Path)
	assert.NotContains(t, fs.statted, "/dl/big/sub/never")
}
