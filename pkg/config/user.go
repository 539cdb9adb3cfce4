package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/odbsync/pkg/errors"
)

const (
	// UserConfigPath is the default path to the odbsync user config.
	UserConfigPath = "~/.odbsync.yaml"

	// InitialUserConfigVersion is the first version of the user config.
	// Config files that do not specify a version default to it.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the version of the user config written
	// and understood by this binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User holds the defaults for command line flags that weren't set
// explicitly. Zero values mean "use the built-in default".
type User struct {
	Version string `json:"version,omitempty"`

	// Session is the path of the session file.
	Session string `json:"session,omitempty"`

	// Listing is the path of the tree snapshot.
	Listing string `json:"listing,omitempty"`

	// JobList is the path the download job list is written to.
	JobList string `json:"jobList,omitempty"`

	// DownloadPath is the local directory that mirrors the remote folder.
	DownloadPath string `json:"downloadPath,omitempty"`

	// Parallelism bounds the concurrent crawl and plan workers.
	Parallelism int `json:"parallelism,omitempty"`

	// Exclude holds glob patterns of local paths to never download.
	Exclude []string `json:"exclude,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser reads the user config from its default path. A missing file
// isn't an error: an empty config is returned instead.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			log.WithField("path", path).Debug("No user config. Using built-in defaults.")
			return User{Version: SupportedUserConfigVersion}, nil
		}
		return User{}, errors.WithContext(err, "parse")
	}

	// Paths in the config are relative to the config file.
	for _, field := range []*string{&config.Session, &config.Listing, &config.JobList, &config.DownloadPath} {
		*field, err = resolvePath(filepath.Dir(path), *field)
		if err != nil {
			return User{}, errors.WithContext(err, "expand path")
		}
	}
	return config, nil
}

// WriteUser writes the given user config to its default path.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the expanded path to the user config, so it can
// be passed directly to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}

func resolvePath(dir, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return path, nil
}
