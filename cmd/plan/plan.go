package plan

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/buger/goterm"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
	syncplan "github.com/sidkik/odbsync/pkg/plan"
	"github.com/sidkik/odbsync/pkg/remote"
	"github.com/sidkik/odbsync/pkg/tree"
)

// Mocked for unit testing.
var (
	fs                     = afero.NewOsFs()
	stdout       io.Writer = os.Stdout
	parseSession           = config.ParseSession
	loadTree               = tree.Load
)

type options struct {
	listing        string
	sessionPath    string
	jobList        string
	prefix         string
	downloadPath   string
	exclude        []string
	compareModTime bool
	parallelism    int
}

// New creates a new `plan` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write the aria2c job list that brings the local mirror up to date",
		Long: "Compare a tree snapshot against the download directory, and write\n" +
			"an aria2c input file with every remote file that's missing locally\n" +
			"or has a different size.",
		Run: func(cmd *cobra.Command, _ []string) {
			defaults := util.UserDefaults()
			util.StringDefault(cmd, "listing", &opts.listing, defaults.Listing)
			util.StringDefault(cmd, "session", &opts.sessionPath, defaults.Session)
			util.StringDefault(cmd, "output", &opts.jobList, defaults.JobList)
			util.StringDefault(cmd, "download-path", &opts.downloadPath, defaults.DownloadPath)
			util.IntDefault(cmd, "parallelism", &opts.parallelism, defaults.Parallelism)
			if !cmd.Flags().Changed("exclude") {
				opts.exclude = defaults.Exclude
			}

			ctx, cancel := util.SignalContext()
			defer cancel()
			if err := run(ctx, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.listing, "listing", "tree_metadata.json",
		"The snapshot written by `odbsync tree --recursive`")
	cmd.Flags().StringVar(&opts.sessionPath, "session", config.DefaultSessionPath,
		"The session file created by `odbsync login`")
	cmd.Flags().StringVarP(&opts.jobList, "output", "o", "aria2c.txt",
		"Where to write the aria2c job list")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "",
		"Only download files whose path below the shared folder starts with this prefix")
	cmd.Flags().StringVar(&opts.downloadPath, "download-path", "download",
		"The local directory that mirrors the shared folder")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil,
		"Never download local paths matching this glob, e.g. '**/*.tmp'. May be repeated.")
	cmd.Flags().BoolVar(&opts.compareModTime, "compare-modtime", false,
		"Also update files with the same size that are older than the remote copy")
	cmd.Flags().IntVarP(&opts.parallelism, "parallelism", "p", 1,
		"How many top-level subfolders to compare at once")
	return cmd
}

func run(ctx context.Context, opts options) error {
	session, err := parseSession(opts.sessionPath)
	if err != nil {
		return errors.WithContext(err, "read session")
	}

	root, err := loadTree(opts.listing)
	if err != nil {
		return errors.WithContext(err, "load snapshot")
	}

	contentURL, err := remote.NewContentURLBuilder(session.BaseURL)
	if err != nil {
		return errors.WithContext(err, "session base URL")
	}

	planner, err := syncplan.New(fs, syncplan.Options{
		Exclude:        opts.exclude,
		CompareModTime: opts.compareModTime,
		Parallelism:    opts.parallelism,
	})
	if err != nil {
		return err
	}

	actions, err := planner.Plan(ctx, root, opts.downloadPath, session.BaseFolder+opts.prefix)
	if err != nil {
		return errors.WithContext(err, "plan")
	}
	printActions(actions)

	f, err := fs.Create(opts.jobList)
	if err != nil {
		return errors.WithContext(err, "create job list")
	}

	if _, err := syncplan.NewEmitter(contentURL).Emit(f, actions); err != nil {
		f.Close()
		return errors.WithContext(err, "write job list")
	}
	if err := f.Close(); err != nil {
		return errors.WithContext(err, "close job list")
	}

	summary := syncplan.Summarize(actions)
	log.WithFields(log.Fields{
		"new":    summary.New,
		"update": summary.Update,
		"skip":   summary.Skip,
		"size":   humanize.IBytes(summary.Bytes),
	}).Info("Wrote job list")

	fmt.Fprintln(stdout, syncplan.DownloaderCommand(session.CookieFedAuth, opts.jobList))
	return nil
}

func printActions(actions []syncplan.Action) {
	for _, action := range actions {
		path := action.File.ServerRelativeURL
		switch action.Kind {
		case syncplan.FetchNew:
			fmt.Fprintln(stdout, goterm.Color("NEW "+path, goterm.GREEN))
		case syncplan.FetchUpdate:
			fmt.Fprintln(stdout, goterm.Color("UPDATE "+path, goterm.YELLOW))
			fmt.Fprintln(stdout, goterm.Color(fmt.Sprintf(
				"ServerTime=%s LocalTime=%s ServerSize=%d LocalSize=%d",
				action.File.TimeLastModified.Format(time.RFC3339),
				action.Local.ModTime.Format(time.RFC3339),
				action.File.Length, action.Local.Size), goterm.BLACK))
		default:
			log.WithField("reason", action.Reason).Debugf("SKIP %s", path)
		}
	}
}
