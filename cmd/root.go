package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/odbsync/cmd/config"
	"github.com/sidkik/odbsync/cmd/crawl"
	"github.com/sidkik/odbsync/cmd/login"
	"github.com/sidkik/odbsync/cmd/plan"
	"github.com/sidkik/odbsync/cmd/printtree"
	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "ODBSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "odbsync",
		Short: "Mirror a shared OneDrive or SharePoint folder",
		Long: "Crawl a shared folder, compare it against a local copy, and write\n" +
			"an aria2c job list with the files that need downloading.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose || os.Getenv(verboseLogKey) == "true" {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log debug messages, such as why each file was skipped")

	rootCmd.AddCommand(
		configCmd.New(),
		login.New(),
		crawl.New(),
		printtree.New(),
		plan.New(),
		version.New(),
	)
	return rootCmd
}
