package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/tree"
)

// Crawler builds a tree.Folder from the remote folder hierarchy.
type Crawler struct {
	fetcher     Fetcher
	baseURL     string
	parallelism int
}

// NewCrawler creates a crawler that talks to the API at baseURL. When
// parallelism is greater than one, the subfolders of the crawl root are
// expanded concurrently by that many workers. Deeper levels are always
// expanded one folder at a time.
func NewCrawler(fetcher Fetcher, baseURL string, parallelism int) *Crawler {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Crawler{
		fetcher:     fetcher,
		baseURL:     baseURL,
		parallelism: parallelism,
	}
}

// Crawl fetches the folder at rootPath along with its files and subfolders.
// If recursive is false, the subfolders are returned unexpanded.
// Any failure aborts the crawl, and no partial tree is returned.
func (c *Crawler) Crawl(ctx context.Context, rootPath string, recursive bool) (*tree.Folder, error) {
	body, err := c.fetcher.Fetch(ctx, FolderURL(c.baseURL, rootPath, ""))
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("get folder %q", rootPath))
	}

	root, err := parseFolder(rootPath, body)
	if err != nil {
		return nil, err
	}

	if err := c.expand(ctx, root, recursive, 0); err != nil {
		return nil, err
	}
	return root, nil
}

// expand lists folder, then expands each subfolder depth first. The
// folder's own listings are complete before any child is visited.
func (c *Crawler) expand(ctx context.Context, folder *tree.Folder, recursive bool, depth int) error {
	if err := c.list(ctx, folder); err != nil {
		return errors.WithContext(err, fmt.Sprintf("list %q", folder.ServerRelativeURL))
	}

	if !recursive {
		return nil
	}

	children := subfolders(folder)
	if depth == 0 && c.parallelism > 1 && len(children) > 1 {
		return c.expandParallel(ctx, folder, children)
	}

	for i, child := range children {
		if err := ctx.Err(); err != nil {
			return errors.WithContext(err, "crawl cancelled")
		}

		logProgress(depth, i, len(children), child.Name)
		if err := c.expand(ctx, child, true, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) list(ctx context.Context, folder *tree.Folder) error {
	path := folder.ServerRelativeURL

	body, err := c.fetcher.Fetch(ctx, FolderURL(c.baseURL, path, "/Files"))
	if err != nil {
		return errors.WithContext(err, "get files")
	}
	files, err := parseList(path, body)
	if err != nil {
		return err
	}
	for _, e := range files {
		f, err := e.toFile()
		if err != nil {
			return err
		}
		if err := folder.AddFile(f); err != nil {
			return err
		}
	}

	body, err = c.fetcher.Fetch(ctx, FolderURL(c.baseURL, path, "/Folders"))
	if err != nil {
		return errors.WithContext(err, "get folders")
	}
	folders, err := parseList(path, body)
	if err != nil {
		return err
	}
	for _, e := range folders {
		if err := folder.AddFolder(tree.NewFolder(e.Name, e.ServerRelativeURL)); err != nil {
			return err
		}
	}

	folder.MarkExpanded()
	return nil
}

type expandResult struct {
	folder *tree.Folder
	err    error
}

// expandParallel expands the children of parent with a pool of workers.
// Each worker builds its subtree into a folder that nothing else can see.
// Once every worker is done, the subtrees are linked into parent by this
// goroutine alone.
func (c *Crawler) expandParallel(ctx context.Context, parent *tree.Folder, children []*tree.Folder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := c.parallelism
	if len(children) < numWorkers {
		numWorkers = len(children)
	}

	var wg sync.WaitGroup
	toExpand := make(chan *tree.Folder, numWorkers*2)
	results := make(chan expandResult, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for child := range toExpand {
				private := tree.NewFolder(child.Name, child.ServerRelativeURL)
				results <- expandResult{
					folder: private,
					err:    c.expand(ctx, private, true, 1),
				}
			}
		}()
	}

	// Feed the workers.
	go func() {
		defer close(toExpand)
		for i, child := range children {
			if ctx.Err() != nil {
				return
			}
			logProgress(0, i, len(children), child.Name)
			select {
			case toExpand <- child:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	var expanded []*tree.Folder
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		expanded = append(expanded, res.folder)
	}

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return errors.WithContext(err, "crawl cancelled")
	}

	for _, f := range expanded {
		parent.Folders.Replace(f)
	}
	return nil
}

func subfolders(folder *tree.Folder) []*tree.Folder {
	var folders []*tree.Folder
	for _, n := range folder.Folders.Nodes() {
		if f, ok := n.(*tree.Folder); ok {
			folders = append(folders, f)
		}
	}
	return folders
}

func logProgress(depth, idx, total int, name string) {
	log.Debugf("%s> Fetching [%d/%d] %s", strings.Repeat("=", depth+1), idx+1, total, name)
}
