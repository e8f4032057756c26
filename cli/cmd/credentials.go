package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Manage the passcode factor",
}

var passcodeUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the passcode",
	Long: `Unlock with the current passcode or the security answers, then wrap the
master key under a new passcode. The old passcode stops working.`,
	RunE: runPasscodeUpdate,
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage the security question factor",
}

var questionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the configured security questions",
	RunE:  runQuestionsShow,
}

var questionsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the security questions and answers",
	RunE:  runQuestionsUpdate,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Check that the supplied factor unlocks the master key",
	RunE:  runUnlock,
}

var (
	newPasscode  string
	newQuestions []string
	newAnswers   []string
)

func init() {
	rootCmd.AddCommand(passcodeCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(unlockCmd)

	passcodeCmd.AddCommand(passcodeUpdateCmd)
	questionsCmd.AddCommand(questionsShowCmd)
	questionsCmd.AddCommand(questionsUpdateCmd)

	passcodeUpdateCmd.Flags().StringVar(&newPasscode, "new", "", "the new passcode")
	_ = passcodeUpdateCmd.MarkFlagRequired("new")

	questionsUpdateCmd.Flags().StringArrayVar(&newQuestions, "question", nil, "security question (repeatable)")
	questionsUpdateCmd.Flags().StringArrayVar(&newAnswers, "answer", nil, "answer to the question at the same position (repeatable)")
}

func runPasscodeUpdate(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}
	if err := foundation.Manager.UpdatePasscode(newPasscode); err != nil {
		return fmt.Errorf("failed to update passcode: %w", err)
	}
	fmt.Println("Passcode updated")
	return nil
}

func runQuestionsShow(cmd *cobra.Command, args []string) error {
	questions := foundation.Manager.SecurityQuestions()
	if len(questions) == 0 {
		fmt.Println("No security questions configured")
		return nil
	}
	for i, q := range questions {
		fmt.Printf("%d. %s\n", i+1, q)
	}
	return nil
}

func runQuestionsUpdate(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}
	if err := foundation.Manager.UpdateSecurityQA(newQuestions, newAnswers); err != nil {
		return fmt.Errorf("failed to update security questions: %w", err)
	}
	fmt.Printf("Security questions updated (%d)\n", len(newQuestions))
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	if err := unlock(); err != nil {
		return err
	}
	fmt.Println("Unlocked")
	return nil
}
