package printtree

import (
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/odbsync/cmd/util"
	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/tree"
)

// Mocked for unit testing.
var (
	fs                 = afero.NewOsFs()
	stdout   io.Writer = os.Stdout
	loadTree           = tree.Load
)

// New creates a new `print-tree` command.
func New() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "print-tree",
		Short: "Pretty-print a tree snapshot",
		Run: func(cmd *cobra.Command, _ []string) {
			util.StringDefault(cmd, "input", &input, util.UserDefaults().Listing)
			if err := run(input, output); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "tree_metadata.json",
		"The snapshot written by `odbsync tree`")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"Write to this file instead of stdout")
	return cmd
}

func run(input, output string) error {
	root, err := loadTree(input)
	if err != nil {
		return errors.WithContext(err, "load snapshot")
	}

	if output == "" {
		return tree.Print(stdout, root)
	}

	f, err := fs.Create(output)
	if err != nil {
		return errors.WithContext(err, "create output")
	}

	if err := tree.Print(f, root); err != nil {
		f.Close()
		return errors.WithContext(err, "write")
	}
	if err := f.Close(); err != nil {
		return errors.WithContext(err, "close output")
	}
	return nil
}
