package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-imas/securefoundation/shred"
)

var (
	shredPasses   int
	shredPassSize int
	shredNoEOF    bool
	shredRemove   bool
	shredDest     string
)

var shredCmd = &cobra.Command{
	Use:   "shred <path>",
	Short: "Overwrite a file before it is deleted",
	Long: `Overwrite a file's contents in several write-through passes (zeros, ones,
random) and optionally a final end-of-file marker pass.

With --to the file is first moved to the destination and scrubbed there.
With --remove it is unlinked once scrubbed.`,
	Args: cobra.ExactArgs(1),
	RunE: runShred,
}

func init() {
	rootCmd.AddCommand(shredCmd)

	shredCmd.Flags().IntVar(&shredPasses, "passes", shred.DefaultPasses, "number of overwrite passes")
	shredCmd.Flags().IntVar(&shredPassSize, "pass-size", shred.DefaultPassSize, "bytes written per write call")
	shredCmd.Flags().BoolVar(&shredNoEOF, "no-eof", false, "skip the end-of-file marker pass")
	shredCmd.Flags().BoolVar(&shredRemove, "remove", false, "unlink the file afterwards")
	shredCmd.Flags().StringVar(&shredDest, "to", "", "move the file here before overwriting it")
}

func runShred(cmd *cobra.Command, args []string) error {
	path := args[0]

	s := foundation.Shredder
	flags := cmd.Flags()
	if flags.Changed("passes") || flags.Changed("pass-size") || flags.Changed("no-eof") {
		s = shred.New(
			shred.WithPasses(shredPassSize, shredPasses),
			shred.WithEOFMarker(!shredNoEOF),
			shred.WithAuditLogger(foundation.Audit()),
		)
	}

	var err error
	switch {
	case shredDest != "":
		err = s.ShredTo(path, shredDest)
		path = shredDest
		if err == nil && shredRemove {
			err = os.Remove(path)
		}
	case shredRemove:
		err = s.Remove(path)
	default:
		err = s.Shred(path)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Shredded %s (%d passes)\n", path, shredPasses)
	return nil
}
