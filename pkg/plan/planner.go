/*
Package plan decides which files of a crawled remote tree need to be
downloaded, by comparing each remote file against its local copy.

The local copy of a remote file lives at the local root joined with the
names of the nodes from the tree root down to the file. The server relative
path is only used for the prefix filter and the download URL, so the local
layout always mirrors the tree.

A file is classified by the first matching rule:

 1. Its server relative path doesn't start with the required prefix: Skip.
 2. Its local path matches an exclude pattern: Skip.
 3. The local path doesn't exist: FetchNew.
 4. The local size equals the remote length: Skip.
 5. Otherwise: FetchUpdate.

Modification times are ignored unless Options.CompareModTime is set, in
which case a same-size local file that is older than the remote file is
updated.
*/
package plan

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/tree"
)

// Options tune a Planner.
type Options struct {
	// Exclude holds doublestar patterns matched against the slash separated
	// path of a file relative to the local root.
	Exclude []string

	// CompareModTime makes same-size files that are older than the remote
	// copy count as changed.
	CompareModTime bool

	// Parallelism is the number of top-level subtrees planned at once.
	Parallelism int
}

// Planner classifies remote files against the local filesystem.
type Planner struct {
	fs   afero.Fs
	opts Options
}

// New creates a Planner that reads local state from fs.
func New(fs afero.Fs, opts Options) (*Planner, error) {
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewFriendlyError("Invalid exclude pattern %q.", pattern)
		}
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Planner{fs: fs, opts: opts}, nil
}

// Plan returns one Action per remote file below root, in walk order: at each
// folder, files come before subfolders, and children are in tree order.
// Only files whose server relative path starts with requiredPrefix are
// considered for download. The prefix test is a plain string comparison,
// so "/docs/2024" also matches "/docs/20240101.txt".
//
// Plan fails without a partial result if any local file can't be
// inspected.
func (p *Planner) Plan(ctx context.Context, root *tree.Folder, localRoot, requiredPrefix string) ([]Action, error) {
	if !root.Expanded() {
		log.WithField("folder", root.ServerRelativeURL).Warn(
			"The tree root was never listed. Crawl with --recursive to plan its files.")
		return nil, nil
	}

	// Each child of the root is planned on its own so that subtrees can be
	// handled concurrently. The results are stitched back together in walk
	// order.
	units := append(root.Files.Nodes(), root.Folders.Nodes()...)
	results := make([][]Action, len(units))
	planUnit := func(ctx context.Context, i int) error {
		w := walker{
			planner:        p,
			ctx:            ctx,
			localRoot:      localRoot,
			requiredPrefix: requiredPrefix,
		}
		if err := w.plan(units[i]); err != nil {
			return err
		}
		results[i] = w.actions
		return nil
	}

	var err error
	if p.opts.Parallelism == 1 || len(units) < 2 {
		for i := range units {
			if err = planUnit(ctx, i); err != nil {
				break
			}
		}
	} else {
		err = p.planParallel(ctx, len(units), planUnit)
	}
	if err != nil {
		return nil, err
	}

	var actions []Action
	for _, res := range results {
		actions = append(actions, res...)
	}
	return actions, nil
}

// planParallel runs planUnit over the unit indices with a pool of workers.
// The first failure cancels the context handed to the other units.
func (p *Planner) planParallel(ctx context.Context, numUnits int,
	planUnit func(context.Context, int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := p.opts.Parallelism
	if numUnits < numWorkers {
		numWorkers = numUnits
	}

	var wg sync.WaitGroup
	indices := make(chan int, numWorkers*2)
	errs := make(chan error, numUnits)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				if err := planUnit(ctx, idx); err != nil {
					errs <- err
					cancel()
				}
			}
		}()
	}

	// Feed the workers.
	go func() {
		defer close(indices)
		for i := 0; i < numUnits; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// walker plans one subtree.
type walker struct {
	planner        *Planner
	ctx            context.Context
	localRoot      string
	requiredPrefix string

	actions []Action
}

func (w *walker) plan(node tree.Node) error {
	names := []string{node.GetName()}
	err := w.visit(node, names)
	if err == tree.SkipFolder {
		return nil
	}
	if err != nil {
		return err
	}

	folder, ok := node.(*tree.Folder)
	if !ok {
		return nil
	}
	return tree.Walk(folder, func(child tree.Node, childNames []string) error {
		return w.visit(child, append(append([]string{}, names...), childNames...))
	})
}

func (w *walker) visit(node tree.Node, names []string) error {
	switch node := node.(type) {
	case *tree.Folder:
		if err := w.ctx.Err(); err != nil {
			return errors.WithContext(err, "plan cancelled")
		}
		if !node.Expanded() {
			log.WithField("folder", node.ServerRelativeURL).Warn(
				"Folder was never listed. Its files won't be planned.")
			return tree.SkipFolder
		}
	case *tree.File:
		action, err := w.planner.classify(node, names, w.localRoot, w.requiredPrefix)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"path":   node.ServerRelativeURL,
			"action": action.Kind,
			"reason": action.Reason,
		}).Debug("Classified file")
		w.actions = append(w.actions, action)
	}
	return nil
}

func (p *Planner) classify(f *tree.File, names []string, localRoot, requiredPrefix string) (Action, error) {
	action := Action{
		File:      f,
		LocalPath: filepath.Join(append([]string{localRoot}, names...)...),
	}

	if !strings.HasPrefix(f.ServerRelativeURL, requiredPrefix) {
		action.Kind, action.Reason = Skip, PrefixMismatch
		return action, nil
	}

	excluded, err := p.isExcluded(path.Join(names...))
	if err != nil {
		return Action{}, err
	}
	if excluded {
		action.Kind, action.Reason = Skip, Excluded
		return action, nil
	}

	local, err := p.stat(action.LocalPath)
	if err != nil {
		return Action{}, err
	}
	action.Local = local

	switch {
	case !local.Exists:
		action.Kind = FetchNew
	case local.Size != f.Length:
		action.Kind = FetchUpdate
	case !p.opts.CompareModTime:
		action.Kind, action.Reason = Skip, SameSize
	case local.ModTime.Before(f.TimeLastModified):
		action.Kind = FetchUpdate
	default:
		action.Kind, action.Reason = Skip, SameSizeAndNotNewer
	}
	return action, nil
}

func (p *Planner) isExcluded(relPath string) (bool, error) {
	for _, pattern := range p.opts.Exclude {
		match, err := doublestar.Match(pattern, relPath)
		if err != nil {
			return false, errors.WithContext(err, "match exclude pattern")
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// stat reads the LocalFileState of path. A missing file isn't an error.
func (p *Planner) stat(path string) (LocalFileState, error) {
	fi, err := p.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LocalFileState{}, nil
		}
		return LocalFileState{}, errors.LocalStateError{
			Kind: errors.Unreadable,
			Path: path,
			Err:  err,
		}
	}

	if fi.IsDir() {
		return LocalFileState{}, errors.LocalStateError{
			Kind: errors.NotAFile,
			Path: path,
		}
	}

	return LocalFileState{
		Exists:  true,
		Size:    uint64(fi.Size()),
		ModTime: fi.ModTime(),
	}, nil
}
