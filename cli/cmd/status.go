package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/keychain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential manager status",
	Long:  "Display which unlock factors are configured, the lock state, memory protection and item counts.",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	m := foundation.Manager

	fmt.Println("Secure Foundation Status")
	fmt.Println("========================")
	fmt.Printf("Data Directory:     %s\n", viper.GetString("data_dir"))
	fmt.Printf("Memory Protection:  %s\n", foundation.MemoryProtection())
	state := color.YellowString(m.State().String())
	if !m.IsLocked() {
		state = color.GreenString(m.State().String())
	}
	fmt.Printf("Lock State:         %s\n", state)
	fmt.Printf("Passcode:           %s\n", yesNo(m.HasPasscode()))
	fmt.Printf("Security Questions: %d\n", len(m.SecurityQuestions()))

	plain, secure := 0, 0
	for _, account := range foundation.Keychain.ListAccounts(keychain.AllServices) {
		if misc.IsReservedService(account.Service) {
			continue
		}
		if account.Secure {
			secure++
		} else {
			plain++
		}
	}
	fmt.Printf("Keychain Items:     %d plain, %d secure\n", plain, secure)

	return nil
}
