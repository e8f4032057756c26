package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/project-imas/securefoundation/audit"
)

var (
	auditJSONOutput   bool
	auditSince        string
	auditUntil        string
	auditAction       string
	auditService      string
	auditLimit        int
	auditOffset       int
	auditFailuresOnly bool
	auditUnlockOnly   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events with filters",
	Long: `Query audit events, newest first.

Examples:
  # failed unlock attempts in the last day
  sfctl audit query --unlock-only --failures-only --since "$(date -d '24 hours ago' -Iseconds)"

  # secure item access for one service
  sfctl audit query --service mail`,
	RunE: runAuditQuery,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	f := auditQueryCmd.Flags()
	f.BoolVar(&auditJSONOutput, "json", false, "output in JSON format")
	f.StringVar(&auditSince, "since", "", "only events at or after this RFC 3339 time")
	f.StringVar(&auditUntil, "until", "", "only events at or before this RFC 3339 time")
	f.StringVar(&auditAction, "action", "", "only this action")
	f.StringVar(&auditService, "service", "", "only events for this keychain service")
	f.IntVar(&auditLimit, "limit", 50, "maximum number of events")
	f.IntVar(&auditOffset, "offset", 0, "events to skip")
	f.BoolVar(&auditFailuresOnly, "failures-only", false, "only failed operations")
	f.BoolVar(&auditUnlockOnly, "unlock-only", false, "only unlock attempts and factor changes")
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	options := audit.QueryOptions{
		Action:       strings.ToUpper(auditAction),
		Service:      auditService,
		Limit:        auditLimit,
		Offset:       auditOffset,
		UnlockEvents: auditUnlockOnly,
	}

	var err error
	if options.Since, err = parseTimeFlag("since", auditSince); err != nil {
		return err
	}
	if options.Until, err = parseTimeFlag("until", auditUntil); err != nil {
		return err
	}
	if auditFailuresOnly {
		failed := false
		options.Success = &failed
	}

	result, err := foundation.Audit().Query(options)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}

	if auditJSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Events) == 0 {
		fmt.Println("No audit events found (is auditing enabled?)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tRESULT\tDETAIL")
	for _, e := range result.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, outcome(e), detail(e))
	}
	if err = w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d of %d matching events", len(result.Events), result.Filtered)
	if result.HasMore {
		fmt.Print(" (more available, use --offset)")
	}
	fmt.Println()
	return nil
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return &t, nil
}

func outcome(e audit.Event) string {
	if e.Success {
		return color.GreenString("ok")
	}
	return color.RedString("FAILED")
}

func detail(e audit.Event) string {
	var parts []string
	if e.Service != "" {
		parts = append(parts, e.Service+"/"+e.Account)
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if e.Error != "" {
		parts = append(parts, e.Error)
	}
	return strings.Join(parts, " ")
}
