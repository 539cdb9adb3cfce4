package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	guessDefaults                 = guessDefaultsImpl
	parseUserConfig               = config.ParseUser
	writeUserConfig               = config.WriteUser
	stat                          = os.Stat
	getWorkingDirectory           = os.Getwd
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the default paths used by the other commands",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.Session, "session", "",
		"Set the session file path. "+
			"Optional: If not set, `odbsync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.DownloadPath, "download-path", "",
		"Set the download directory. "+
			"Optional: If not set, `odbsync config` will interactively prompt.")
	cmd.Flags().IntVar(&cliOpts.Parallelism, "parallelism", 0,
		"Set the default number of concurrent crawl and plan workers.")
	cmd.Flags().StringArrayVar(&cliOpts.Exclude, "exclude", nil,
		"Set a glob of local paths to never download. May be repeated.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-session",
			short: "Get the configured session file",
			fn:    func(cfg config.User) string { return cfg.Session },
		},
		{
			use:   "get-download-path",
			short: "Get the configured download directory",
			fn:    func(cfg config.User) string { return cfg.DownloadPath },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for the fields not set in cliOpts, and saves the
// result as the user config.
func SetupConfig(cliOpts config.User) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeUserConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

// downloadPathValidationFn rejects download paths that exist but aren't
// directories.
func downloadPathValidationFn(path string) (string, bool) {
	if path == "" {
		return "The download directory is required.", false
	}

	fi, err := stat(path)
	if err == nil && !fi.IsDir() {
		return fmt.Sprintf("%q is a file. Please pick a directory.", path), false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is. The fields set in cliOpts aren't prompted for.
func generateConfig(cliOpts config.User) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts
	if cfg.Parallelism == 0 {
		cfg.Parallelism = currConfig.Parallelism
	}
	if cfg.Exclude == nil {
		cfg.Exclude = currConfig.Exclude
	}

	var prompts []prompt
	if cliOpts.Session == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the path of the session file written by `odbsync login`.",
			prompt:        "Session file",
			defaultAnswer: defaults.Session,
			currAnswer:    currConfig.Session,
			field:         &cfg.Session,
		})
	}

	if cliOpts.DownloadPath == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory that mirrors the shared folder.\n" +
				"Files are downloaded below it with the same layout as the remote folder.",
			prompt:        "Download directory",
			defaultAnswer: defaults.DownloadPath,
			currAnswer:    currConfig.DownloadPath,
			field:         &cfg.DownloadPath,
			validationFn:  downloadPathValidationFn,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.User{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	// The listing and job list live next to the session unless configured
	// otherwise.
	cfg.Listing = currConfig.Listing
	cfg.JobList = currConfig.JobList
	if cfg.Session != "" {
		dir := filepath.Dir(cfg.Session)
		if cfg.Listing == "" {
			cfg.Listing = filepath.Join(dir, "tree_metadata.json")
		}
		if cfg.JobList == "" {
			cfg.JobList = filepath.Join(dir, "aria2c.txt")
		}
	}
	return cfg, nil
}

// guessDefaultsImpl suggests paths in the current directory.
func guessDefaultsImpl() (cfg config.User) {
	currDir, err := getWorkingDirectory()
	if err != nil {
		log.WithError(err).Info("Failed to guess defaults")
		return cfg
	}

	cfg.DownloadPath = filepath.Join(currDir, "download")

	session := filepath.Join(currDir, config.DefaultSessionPath)
	if _, err := stat(session); err == nil {
		cfg.Session = session
	} else if !os.IsNotExist(err) {
		log.WithError(err).Info("Failed to guess session")
	}
	return cfg
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// A blank line separates the fields.
	defer fmt.Fprintln(stdout)

	var options []string
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")
	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option += " (recommended)"
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		choice, err := readChoice(stdinReader, nOptions)
		if err != nil {
			return "", err
		}
		if choice < nOptions {
			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\n"), nil
}

// readChoice asks until the user picks one of the numbered options. An empty
// answer picks the first option.
func readChoice(r *bufio.Reader, nOptions int) (int, error) {
	for {
		fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}

		line = strings.TrimRight(line, "\n")
		if line == "" {
			return 1, nil
		}

		choice, err := strconv.Atoi(line)
		if err == nil && choice >= 1 && choice <= nOptions {
			return choice, nil
		}
	}
}
