package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/project-imas/securefoundation"
	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/persist"
)

var (
	cfgFile    string
	foundation *securefoundation.Foundation
	cliContext *CLIContext
)

type CLIContext struct {
	UserID    string
	SessionID string
	Source    string
	StartTime time.Time
}

var rootCmd = &cobra.Command{
	Use:   "sfctl",
	Short: "Drive the on-device credential manager from a terminal",
	Long: `sfctl stands in for the host application of a secure foundation data
directory. It stages unlock factors, finalizes the wrapped master key, unlocks
with a passcode or security answers, and reads and writes keychain items.

The master key never outlives a single invocation: every command starts
locked and purges the key before exiting.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openFoundation,
	PersistentPostRunE: closeFoundation,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.securefoundation.yaml)")
	flags.StringP("data-dir", "d", "", "application data directory holding the keychain")
	flags.String("store", "", "keychain store (filesystem, memory)")
	flags.Int("key-size", 0, "master key size in bytes (16 or 32)")
	flags.Bool("memory-lock", false, "lock process memory to keep keys out of swap")
	flags.Bool("auto-sync", false, "write the keychain after every change")
	flags.String("passcode", "", "passcode used to unlock (or SF_CREDENTIALS_PASSCODE)")
	flags.StringArray("answers", nil, "security answer used to unlock, repeated in question order")

	bindFlagOrPanic("data_dir", "data-dir")
	bindFlagOrPanic("store", "store")
	bindFlagOrPanic("key_size", "key-size")
	bindFlagOrPanic("enable_memory_lock", "memory-lock")
	bindFlagOrPanic("auto_sync", "auto-sync")
	bindFlagOrPanic("credentials.passcode", "passcode")
	bindFlagOrPanic("credentials.answers", "answers")

	flags.Bool("audit", false, "enable audit logging")
	flags.String("audit-type", "", "audit logger type (file, syslog)")
	flags.String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".securefoundation")
	}

	viper.SetEnvPrefix("SF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else if os.Getenv("DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	viper.SetDefault("data_dir", ".securefoundation")
	viper.SetDefault("store", string(persist.StoreTypeFileSystem))
	viper.SetDefault("key_size", 16)
	viper.SetDefault("enable_memory_lock", false)
	viper.SetDefault("auto_sync", false)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", string(audit.FileAuditType))
	viper.SetDefault("audit.log_level", "info")
	viper.SetDefault("audit.options.max_size", 10)
	viper.SetDefault("audit.options.max_backups", 3)
}

// loadOptions assembles Options from flags, environment and config file.
func loadOptions() securefoundation.Options {
	dataDir := viper.GetString("data_dir")

	auditPath := viper.GetString("audit.options.file_path")
	if auditPath == "" {
		auditPath = dataDir + string(os.PathSeparator) + "audit.log"
	}

	return securefoundation.Options{
		DataDir:          dataDir,
		Store:            persist.StoreType(viper.GetString("store")),
		KeySize:          viper.GetInt("key_size"),
		EnableMemoryLock: viper.GetBool("enable_memory_lock"),
		AutoSync:         viper.GetBool("auto_sync"),
		UserID:           cliContext.UserID,
		Audit: &audit.Config{
			Enabled: viper.GetBool("audit.enabled"),
			UserID:  cliContext.UserID,
			Type:    audit.ConfigType(viper.GetString("audit.type")),
			Options: map[string]interface{}{
				"file_path":   auditPath,
				"max_size":    viper.GetInt("audit.options.max_size"),
				"max_backups": viper.GetInt("audit.options.max_backups"),
			},
			LogLevel: viper.GetString("audit.log_level"),
		},
	}
}

func openFoundation(cmd *cobra.Command, args []string) error {
	if skipsFoundation(cmd) {
		return nil
	}

	cliContext = &CLIContext{
		UserID:    getCurrentUser(),
		SessionID: uuid.NewString(),
		Source:    getHostname(),
		StartTime: time.Now(),
	}

	f, err := securefoundation.Open(loadOptions())
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	foundation = f

	_ = foundation.Audit().Log("command_start", true, map[string]interface{}{
		"command":    cmd.CommandPath(),
		"flags":      sanitizeFlags(cmd),
		"session_id": cliContext.SessionID,
		"source":     cliContext.Source,
	})
	return nil
}

// skipsFoundation reports commands that never touch the data directory.
func skipsFoundation(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return true
	}
	return cmd.HasParent() && cmd.Parent().Name() == "config"
}

func closeFoundation(cmd *cobra.Command, args []string) error {
	if foundation == nil {
		return nil
	}

	_ = foundation.Audit().Log("command_complete", true, map[string]interface{}{
		"command":     cmd.CommandPath(),
		"duration_ms": time.Since(cliContext.StartTime).Milliseconds(),
		"session_id":  cliContext.SessionID,
	})

	err := foundation.Close()
	foundation = nil
	return err
}

// unlock brings the manager to Unlocked with whichever factor was supplied,
// preferring the security answers.
func unlock() error {
	m := foundation.Manager
	if !m.IsLocked() {
		return nil
	}
	if !m.HasPasscode() && !m.HasSecurityQA() {
		return fmt.Errorf("%w: run sfctl init first", errs.ErrNotConfigured)
	}

	if answers := unlockAnswers(rootCmd.PersistentFlags()); len(answers) > 0 {
		return m.UnlockWithSecurityAnswers(answers)
	}
	if passcode := viper.GetString("credentials.passcode"); passcode != "" {
		return m.UnlockWithPasscode(passcode)
	}
	if m.HasPasscode() && term.IsTerminal(int(os.Stdin.Fd())) {
		passcode, err := promptSecret("Passcode: ")
		if err != nil {
			return err
		}
		return m.UnlockWithPasscode(passcode)
	}
	return fmt.Errorf("%w: supply --passcode or --answers", errs.ErrLocked)
}

// unlockAnswers takes --answers verbatim, so an answer may contain commas.
// Without the flag it falls back to the config file and SF_CREDENTIALS_ANSWERS.
func unlockAnswers(flags *pflag.FlagSet) []string {
	if flag := flags.Lookup("answers"); flag != nil && flag.Changed {
		answers, err := flags.GetStringArray("answers")
		if err == nil {
			return answers
		}
	}
	return viper.GetStringSlice("credentials.answers")
}

// promptSecret reads a line from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passcode: %w", err)
	}
	return string(secret), nil
}

func isSensitiveFlag(name string) bool {
	sensitive := []string{"passcode", "answer", "value", "secret", "new"}
	lower := strings.ToLower(name)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func sanitizeFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			return
		}
		if isSensitiveFlag(flag.Name) {
			flags[flag.Name] = "[REDACTED]"
		} else {
			flags[flag.Name] = flag.Value.String()
		}
	})
	return flags
}

func getCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		if envUser := os.Getenv("USER"); envUser != "" {
			return envUser
		}
		log.Printf("WARNING: could not get current user: %v", err)
		return "unknown_user"
	}
	return currentUser.Username
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("WARNING: could not get hostname: %v", err)
		return "unknown_host"
	}
	return hostname
}
