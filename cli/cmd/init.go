package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initPasscode  string
	initQuestions []string
	initAnswers   []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure unlock factors and create the master key",
	Long: `Stage a passcode, security questions with answers, or both, then finalize.

On a fresh data directory this generates the master key and stores one wrapped
copy per factor. On a configured directory the current factors must unlock
first (--passcode or --answers) and the live key is wrapped under the new
factors instead.

Examples:
  sfctl init --new-passcode 1234
  sfctl init --new-passcode 1234 --question "First pet?" --answer Rex`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initPasscode, "new-passcode", "", "passcode factor to configure")
	initCmd.Flags().StringArrayVar(&initQuestions, "question", nil, "security question (repeatable)")
	initCmd.Flags().StringArrayVar(&initAnswers, "answer", nil, "answer to the question at the same position (repeatable)")
}

func runInit(cmd *cobra.Command, args []string) error {
	m := foundation.Manager

	if m.HasPasscode() || m.HasSecurityQA() {
		if err := unlock(); err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("new-passcode") {
		m.StoreTemporaryPasscode(initPasscode)
	}
	if len(initQuestions) > 0 || len(initAnswers) > 0 {
		if err := m.StoreTemporarySecurityQA(initQuestions, initAnswers); err != nil {
			return err
		}
	}

	if err := m.Finalize(); err != nil {
		return err
	}

	fmt.Println("Unlock factors finalized")
	fmt.Printf("  Passcode:           %s\n", yesNo(m.HasPasscode()))
	fmt.Printf("  Security questions: %d\n", len(m.SecurityQuestions()))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
