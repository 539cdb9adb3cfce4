package plan

import (
	"fmt"
	"time"

	"github.com/sidkik/odbsync/pkg/tree"
)

// Kind is what should happen to a remote file.
type Kind int

const (
	// Skip leaves the local copy alone.
	Skip Kind = iota

	// FetchNew downloads a file that doesn't exist locally.
	FetchNew

	// FetchUpdate downloads a file whose local copy differs.
	FetchUpdate
)

func (k Kind) String() string {
	switch k {
	case Skip:
		return "SKIP"
	case FetchNew:
		return "NEW"
	case FetchUpdate:
		return "UPDATE"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// SkipReason explains a Skip.
type SkipReason string

const (
	// PrefixMismatch means the file's server path doesn't start with the
	// required prefix.
	PrefixMismatch SkipReason = "prefix"

	// Excluded means the file's local path matched an exclude pattern.
	Excluded SkipReason = "excluded"

	// SameSize means the local copy has the remote length.
	SameSize SkipReason = "same size"

	// SameSizeAndNotNewer means the local copy has the remote length and
	// isn't older than the remote file. Only used when mod times are
	// compared.
	SameSizeAndNotNewer SkipReason = "same size, not older"
)

// LocalFileState is what the local filesystem says about the copy of a
// remote file.
type LocalFileState struct {
	Exists  bool
	Size    uint64
	ModTime time.Time
}

// Action is the decision made for one remote file.
type Action struct {
	Kind   Kind
	Reason SkipReason

	File *tree.File

	// LocalPath is where the file lives locally: the local root joined
	// with the names from the tree root down to the file.
	LocalPath string

	// Local is the state of LocalPath when the plan was made. It's zero
	// for files skipped before the filesystem was consulted.
	Local LocalFileState
}

// Accepted returns whether the action needs a download.
func (a Action) Accepted() bool {
	return a.Kind == FetchNew || a.Kind == FetchUpdate
}

// Summary counts actions by kind.
type Summary struct {
	New, Update, Skip int
	Bytes            uint64
}

// Summarize counts the actions, and the bytes to download.
func Summarize(actions []Action) Summary {
	var s Summary
	for _, a := range actions {
		switch a.Kind {
		case FetchNew:
			s.New++
		case FetchUpdate:
			s.Update++
		default:
			s.Skip++
			continue
		}
		s.Bytes += a.File.Length
	}
	return s
}
