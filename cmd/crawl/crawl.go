package crawl

import (
	"context"
	"fmt"
	"io"
	"os"

	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/remote"
	"github.com/sidkik/odbsync/pkg/tree"
)

// Mocked for unit testing.
var (
	stdout       io.Writer = os.Stdout
	parseSession           = config.ParseSession
	retryPolicy            = remote.DefaultRetryPolicy
)

type options struct {
	sessionPath string
	path        string
	recursive   bool
	output      string
	parallelism int
}

// New creates a new `tree` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Fetch the remote folder hierarchy as a JSON snapshot",
		Long: "Fetch the metadata of the shared folder, or of a folder below it,\n" +
			"and save it as a JSON snapshot for `odbsync plan` and `odbsync print-tree`.",
		Run: func(cmd *cobra.Command, _ []string) {
			defaults := util.UserDefaults()
			util.StringDefault(cmd, "session", &opts.sessionPath, defaults.Session)
			util.StringDefault(cmd, "output", &opts.output, defaults.Listing)
			util.IntDefault(cmd, "parallelism", &opts.parallelism, defaults.Parallelism)

			ctx, cancel := util.SignalContext()
			defer cancel()
			if err := run(ctx, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.sessionPath, "session", config.DefaultSessionPath,
		"The session file created by `odbsync login`")
	cmd.Flags().StringVar(&opts.path, "path", "/",
		"The folder to fetch, relative to the shared folder")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false,
		"Fetch every folder below the path rather than just its direct children")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "",
		"Write the snapshot to this file instead of stdout")
	cmd.Flags().IntVarP(&opts.parallelism, "parallelism", "p", 1,
		"How many top-level subfolders to fetch at once")
	return cmd
}

func run(ctx context.Context, opts options) error {
	session, err := parseSession(opts.sessionPath)
	if err != nil {
		return errors.WithContext(err, "read session")
	}
	log.WithFields(log.Fields{
		"baseURL":    session.BaseURL,
		"baseFolder": session.BaseFolder,
	}).Debug("Loaded session")

	fetcher := remote.NewFetcher(session.CookieFedAuth, retryPolicy())
	crawler := remote.NewCrawler(fetcher, session.BaseURL, opts.parallelism)
	root, err := crawler.Crawl(ctx, FolderPath(session.BaseFolder, opts.path), opts.recursive)
	if err != nil {
		return errors.WithContext(err, "crawl")
	}

	stats := tree.Count(root)
	log.WithFields(log.Fields{
		"folders":    stats.Folders,
		"files":      stats.Files,
		"size":       humanize.IBytes(stats.TotalBytes),
		"unexpanded": stats.Unexpanded,
	}).Info("Fetched remote tree")

	if opts.output == "" {
		return tree.Encode(stdout, root)
	}

	if err := tree.Write(opts.output, root); err != nil {
		return errors.WithContext(err, "save snapshot")
	}
	fmt.Fprintf(stdout, "Wrote snapshot to %s\n", opts.output)
	return nil
}

// FolderPath returns the server relative path of the folder at path below
// the shared folder. "/" is the shared folder itself.
func FolderPath(baseFolder, path string) string {
	if path == "/" || path == "" {
		return baseFolder
	}
	return baseFolder + path
}
