package login

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
)

const unexpectedResponseTemplate = "The share link %q didn't redirect to a " +
	"login-free folder view (got %s).\n" +
	"Make sure the link is an \"Anyone with the link\" share of a folder."

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	httpClient           = &http.Client{
		// The redirect itself carries the session, so it must not be
		// followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 30 * time.Second,
	}
	writeSession = config.WriteSession
)

// New creates a new `login` command.
func New() *cobra.Command {
	var shareURL, sessionPath string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session from a share link",
		Long: "Open the share link of a OneDrive for Business folder and save the\n" +
			"session cookie and folder location for the other commands.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := Main(shareURL, sessionPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&shareURL, "url", "",
		"The share link, for example https://corp-my.sharepoint.com/:f:/g/personal/user/abc")
	cmd.Flags().StringVar(&sessionPath, "session", config.DefaultSessionPath,
		"Where to save the session. Pass an empty path to only print it.")
	return cmd
}

// Main logs in with the share link and saves the session to sessionPath.
func Main(shareURL, sessionPath string) error {
	if shareURL == "" {
		return errors.NewFriendlyError("A share link is required.\n" +
			"Please provide it with `odbsync login --url <share link>`")
	}

	session, err := loginViaURL(shareURL)
	if err != nil {
		return errors.WithContext(err, "login")
	}

	if sessionPath != "" {
		if err := writeSession(sessionPath, session); err != nil {
			return errors.WithContext(err, "save session")
		}
	}

	log.WithField("cookie", session.CookieFedAuth).Debug("Got session cookie")
	fmt.Fprintf(stdout, "Base URL: %s\n", session.BaseURL)
	fmt.Fprintf(stdout, "Base Folder: %s\n", session.BaseFolder)
	if sessionPath != "" {
		fmt.Fprintf(stdout, "Saved session to %s\n", sessionPath)
	}
	return nil
}

// loginViaURL opens the share link and derives the session from the
// redirect. The redirect points at the folder view, e.g.
// https://corp-my.sharepoint.com/personal/user/_layouts/15/onedrive.aspx?id=/personal/user/Documents/shared
// and sets the FedAuth cookie.
func loginViaURL(shareURL string) (config.Session, error) {
	resp, err := httpClient.Get(shareURL)
	if err != nil {
		return config.Session{}, errors.WithContext(err, "open share link")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return config.Session{}, errors.NewFriendlyError(unexpectedResponseTemplate,
			shareURL, resp.Status)
	}

	cookie := strings.TrimSpace(strings.Split(resp.Header.Get("Set-Cookie"), ";")[0])
	if cookie == "" {
		return config.Session{}, errors.NewFriendlyError(unexpectedResponseTemplate,
			shareURL, "no session cookie")
	}

	location, err := resp.Location()
	if err != nil {
		return config.Session{}, errors.WithContext(err, "parse redirect")
	}

	idx := strings.Index(location.Path, "/_layouts")
	if idx <= 0 {
		return config.Session{}, errors.NewFriendlyError(unexpectedResponseTemplate,
			shareURL, fmt.Sprintf("redirect to %s", location))
	}

	folder := location.Query().Get("id")
	if folder == "" {
		return config.Session{}, errors.NewFriendlyError(unexpectedResponseTemplate,
			shareURL, fmt.Sprintf("redirect without a folder to %s", location))
	}

	return config.Session{
		CookieFedAuth: cookie,
		BaseURL:       fmt.Sprintf("https://%s%s/_api/web", location.Host, location.Path[:idx]),
		BaseFolder:    folder,
	}, nil
}
