package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/crypto"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/keychain"
)

var secretsCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage keychain items",
	Long: `Store, retrieve, delete and list keychain items addressed by service and account.

Secure items are encrypted with the master key and need --passcode or
--answers. Plain items are stored in the clear and need neither.`,
}

var setSecretCmd = &cobra.Command{
	Use:   "set <service> <account>",
	Short: "Store an item",
	Long:  "Store an item. Data can be provided inline, from a file, or from stdin with --file -.",
	Args:  cobra.ExactArgs(2),
	RunE:  setSecret,
}

var getSecretCmd = &cobra.Command{
	Use:   "get <service> <account>",
	Short: "Retrieve an item",
	Args:  cobra.ExactArgs(2),
	RunE:  getSecret,
}

var deleteSecretCmd = &cobra.Command{
	Use:   "delete <service> <account>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(2),
	RunE:  deleteSecret,
}

var listSecretsCmd = &cobra.Command{
	Use:   "list [service]",
	Short: "List stored items",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listSecrets,
}

var (
	secretPlain  bool
	secretValue  string
	secretFile   string
	secretBase64 bool
	outputJSON   bool
	showReserved bool
)

func init() {
	rootCmd.AddCommand(secretsCmd)

	secretsCmd.AddCommand(setSecretCmd)
	secretsCmd.AddCommand(getSecretCmd)
	secretsCmd.AddCommand(deleteSecretCmd)
	secretsCmd.AddCommand(listSecretsCmd)

	secretsCmd.PersistentFlags().BoolVar(&secretPlain, "plain", false, "use the plain partition instead of the secure one")
	secretsCmd.PersistentFlags().BoolVar(&secretBase64, "base64", false, "values are Base64 on input and output")

	setSecretCmd.Flags().StringVar(&secretValue, "value", "", "item value")
	setSecretCmd.Flags().StringVarP(&secretFile, "file", "f", "", "read the value from a file (use '-' for stdin)")

	listSecretsCmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	listSecretsCmd.Flags().BoolVar(&showReserved, "reserved", false, "include the credential manager's own records")
}

func setSecret(cmd *cobra.Command, args []string) error {
	service, account := args[0], args[1]
	if err := guardReserved(service); err != nil {
		return err
	}

	value, err := readValue()
	if err != nil {
		return err
	}

	kc := foundation.Keychain
	if secretPlain {
		err = kc.SetPlain(service, account, value)
	} else {
		if err = unlock(); err != nil {
			return err
		}
		err = kc.SetSecure(service, account, value)
	}
	if err != nil {
		return fmt.Errorf("failed to store %s/%s: %w", service, account, err)
	}

	if err = kc.Synchronize(); err != nil {
		return err
	}

	fmt.Printf("Stored %s/%s (%d bytes)\n", service, account, len(value))
	return nil
}

func getSecret(cmd *cobra.Command, args []string) error {
	service, account := args[0], args[1]
	kc := foundation.Keychain

	var (
		value []byte
		err   error
	)
	if secretPlain {
		value, err = kc.Plain(service, account)
	} else {
		if err = unlock(); err != nil {
			return err
		}
		value, err = kc.Secure(service, account)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", service, account, err)
	}

	if secretBase64 {
		fmt.Println(crypto.Base64Encode(value))
		return nil
	}
	_, err = os.Stdout.Write(append(value, '\n'))
	return err
}

func deleteSecret(cmd *cobra.Command, args []string) error {
	service, account := args[0], args[1]
	if err := guardReserved(service); err != nil {
		return err
	}

	kc := foundation.Keychain
	var err error
	if secretPlain {
		err = kc.DeletePlain(service, account)
	} else {
		err = kc.DeleteSecure(service, account)
	}
	if err != nil {
		return err
	}
	if err = kc.Synchronize(); err != nil {
		return err
	}

	fmt.Printf("Deleted %s/%s\n", service, account)
	return nil
}

func listSecrets(cmd *cobra.Command, args []string) error {
	service := keychain.AllServices
	if len(args) == 1 {
		service = args[0]
	}

	var accounts []keychain.Account
	for _, a := range foundation.Keychain.ListAccounts(service) {
		if misc.IsReservedService(a.Service) && !showReserved {
			continue
		}
		accounts = append(accounts, a)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(accounts)
	}

	if len(accounts) == 0 {
		fmt.Println("No items found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tACCOUNT\tPARTITION")
	for _, a := range accounts {
		partition := "plain"
		if a.Secure {
			partition = "secure"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Service, a.Account, partition)
	}
	return w.Flush()
}

func readValue() ([]byte, error) {
	var raw []byte
	switch {
	case secretFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = data
	case secretFile != "":
		data, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", secretFile, err)
		}
		raw = data
	default:
		raw = []byte(secretValue)
	}

	if secretBase64 {
		return crypto.Base64Decode(string(raw))
	}
	return raw, nil
}

func guardReserved(service string) error {
	if misc.IsReservedService(service) {
		return fmt.Errorf("%w: service %s is reserved for the credential manager", errs.ErrInput, service)
	}
	return nil
}
