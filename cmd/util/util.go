package util

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/pkg/config"
	"github.com/sidkik/odbsync/pkg/errors"
)

// Mocked for unit testing.
var (
	exit            = os.Exit
	parseUserConfig = config.ParseUser
)

// HandleFatalError prints the error and exits. Friendly errors are printed
// as-is, and everything else is printed with its full context chain.
func HandleFatalError(err error) {
	log.WithError(errors.RootCause(err)).Debug("Fatal error")
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs the stack of a panic before re-raising it. It should be
// deferred at the top of main.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Error("Unexpected crash")
		panic(r)
	}
}

// SignalContext returns a context that's cancelled when the process receives
// SIGINT or SIGTERM, so that long crawls stop cleanly between requests.
func SignalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.WithField("signal", sig).Info("Interrupted. Stopping.")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// UserDefaults returns the user config. A broken config is reported but
// doesn't stop the command, since every default can be overridden by a
// flag.
func UserDefaults() config.User {
	cfg, err := parseUserConfig()
	if err != nil {
		log.WithError(err).Warn("Failed to read the user config. Ignoring it.")
		return config.User{}
	}
	return cfg
}

// StringDefault sets *value to def if the flag wasn't set explicitly and def
// isn't empty.
func StringDefault(cmd *cobra.Command, flag string, value *string, def string) {
	if def != "" && !cmd.Flags().Changed(flag) {
		*value = def
	}
}

// IntDefault sets *value to def if the flag wasn't set explicitly and def
// isn't zero.
func IntDefault(cmd *cobra.Command, flag string, value *int, def int) {
	if def != 0 && !cmd.Flags().Changed(flag) {
		*value = def
	}
}
