package plan

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sidkik/odbsync/pkg/errors"
)

// Job is one download in the job list.
type Job struct {
	URL             string
	OutputFileName  string
	OutputDirectory string
}

// String renders the job in the aria2c input file format.
func (j Job) String() string {
	return fmt.Sprintf("%s\n  out=%s\n  dir=%s\n\n", j.URL, j.OutputFileName, j.OutputDirectory)
}

// URLBuilder returns the download URL of the file at the given server
// relative path.
type URLBuilder func(serverRelativeURL string) string

// Emitter turns accepted actions into download jobs.
type Emitter struct {
	contentURL URLBuilder
}

// NewEmitter creates an Emitter that resolves download URLs with contentURL.
func NewEmitter(contentURL URLBuilder) Emitter {
	return Emitter{contentURL: contentURL}
}

// Jobs returns a job for every accepted action, in the order of actions.
func (e Emitter) Jobs(actions []Action) []Job {
	var jobs []Job
	for _, action := range actions {
		if !action.Accepted() {
			continue
		}

		jobs = append(jobs, Job{
			URL:             e.contentURL(action.File.ServerRelativeURL),
			OutputFileName:  action.File.Name,
			OutputDirectory: filepath.Dir(action.LocalPath),
		})
	}
	return jobs
}

// Emit writes the job list for actions to w, and returns the number of jobs
// written.
func (e Emitter) Emit(w io.Writer, actions []Action) (int, error) {
	bw := bufio.NewWriter(w)
	jobs := e.Jobs(actions)
	for _, job := range jobs {
		if _, err := io.WriteString(bw, job.String()); err != nil {
			return 0, errors.WithContext(err, "write job")
		}
	}

	if err := bw.Flush(); err != nil {
		return 0, errors.WithContext(err, "write job list")
	}
	return len(jobs), nil
}

// DownloaderCommand returns the aria2c invocation that downloads the jobs in
// the list at listPath with the given session cookie.
func DownloaderCommand(cookie, listPath string) string {
	return fmt.Sprintf("aria2c --header 'Cookie: %s' --input-file %s --split=1 --remote-time "+
		"--save-session=aria2c_session.txt --save-session-interval=10 --allow-overwrite true",
		cookie, listPath)
}
