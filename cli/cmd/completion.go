package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion <bash|zsh|fish|powershell>",
	Short: "Print a shell completion script",
	Long: `Print a completion script for sfctl to stdout.

  bash:        source <(sfctl completion bash)
  zsh:         sfctl completion zsh > "${fpath[1]}/_sfctl"
  fish:        sfctl completion fish > ~/.config/fish/completions/sfctl.fish
  powershell:  sfctl completion powershell | Out-String | Invoke-Expression

Start a new shell after installing the script.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  writeCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func writeCompletion(cmd *cobra.Command, args []string) error {
	root, out := cmd.Root(), cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "zsh":
		return root.GenZshCompletion(out)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	}
	return fmt.Errorf("unsupported shell: %s", args[0])
}
