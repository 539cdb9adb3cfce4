package config

import (
	"encoding/json"

	"github.com/spf13/afero"

	"github.com/sidkik/odbsync/pkg/errors"
)

// DefaultSessionPath is where `odbsync login` saves the session by default.
const DefaultSessionPath = "session.json"

// Session holds what's needed to talk to the remote store on behalf of a
// user. It's obtained by following a share link.
type Session struct {
	// CookieFedAuth is the `FedAuth=...` cookie pair sent with every
	// request.
	CookieFedAuth string `json:"cookie_fed_auth"`

	// BaseURL is the REST endpoint of the site that owns the share, ending
	// in `/_api/web`.
	BaseURL string `json:"base_url"`

	// BaseFolder is the server relative path of the shared folder.
	BaseFolder string `json:"base_folder"`
}

// ParseSession reads the session file at path.
func ParseSession(path string) (Session, error) {
	contents, err := readFile(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Session{}, errors.NewFriendlyError("The session file %q "+
				"doesn't exist. Please run `odbsync login --url <share link>` "+
				"to create it.", path)
		}
		return Session{}, err
	}

	var session Session
	if err := json.Unmarshal(contents, &session); err != nil {
		return Session{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if err := session.validate(); err != nil {
		return Session{}, errors.WithContext(err, "validate")
	}
	return session, nil
}

// WriteSession saves session to path.
func WriteSession(path string, session Session) error {
	contents, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, append(contents, '\n'), 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func (session Session) validate() error {
	switch {
	case session.CookieFedAuth == "":
		return errors.MissingFieldError{Field: "cookie_fed_auth"}
	case session.BaseURL == "":
		return errors.MissingFieldError{Field: "base_url"}
	case session.BaseFolder == "":
		return errors.MissingFieldError{Field: "base_folder"}
	}
	return nil
}
