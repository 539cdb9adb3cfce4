package util

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
)

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stringDef   string
		intDef      int
		expString   string
		expParallel int
	}{
		{
			name:        "BuiltInDefaults",
			expString:   "download",
			expParallel: 1,
		},
		{
			name:        "UserDefaults",
			stringDef:   "/mirror",
			intDef:      8,
			expString:   "/mirror",
			expParallel: 8,
		},
		{
			name:        "FlagsWin",
			args:        []string{"--download-path", "here", "--parallelism", "2"},
			stringDef:   "/mirror",
			intDef:      8,
			expString:   "here",
			expParallel: 2,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var downloadPath string
			var parallelism int
			cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
			cmd.Flags().StringVar(&downloadPath, "download-path", "download", "")
			cmd.Flags().IntVar(&parallelism, "parallelism", 1, "")
			require.NoError(t, cmd.ParseFlags(test.args))

			StringDefault(cmd, "download-path", &downloadPath, test.stringDef)
			IntDefault(cmd, "parallelism", &parallelism, test.intDef)
			assert.Equal(t, test.expString, downloadPath)
			assert.Equal(t, test.expParallel, parallelism)
		})
	}
}

func TestUserDefaults(t *testing.T) {
	parseUserConfig = func() (config.User, error) {
		return config.User{Session: "/s.json"}, nil
	}
	assert.Equal(t, config.User{Session: "/s.json"}, UserDefaults())

	parseUserConfig = func() (config.User, error) {
		return config.User{}, errors.New("bad config")
	}
	assert.Equal(t, config.User{}, UserDefaults())
}

func TestHandleFatalError(t *testing.T) {
	var exitCode int
	exit = func(code int) { exitCode = code }

	HandleFatalError(errors.WithContext(errors.New("boom"), "crawl"))
	assert.Equal(t, 1, exitCode)
}
