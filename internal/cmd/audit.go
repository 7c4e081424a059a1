package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/partvault/partvault/internal/audit"
)

var (
	auditActor  string
	auditAction string
	auditTarget string
	auditMatch  string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail",
	Long: `Print audit entries, oldest first. Filter with --actor, --action and
--target; --match filters targets by glob pattern; --limit keeps only the
most recent matches.

Examples:
  # Everything that happened to one document
  partvault audit --target bracket.dwg

  # Recent forced releases
  partvault audit --action FORCED_RELEASE --limit 20

  # All drawing files
  partvault audit --match "*.dwg"`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "filter by acting username")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action, e.g. CHECKOUT")
	auditCmd.Flags().StringVar(&auditTarget, "target", "", "filter by document or part")
	auditCmd.Flags().StringVar(&auditMatch, "match", "", "glob pattern filtering targets")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 0, "keep only the N most recent matches")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	var matcher glob.Glob
	if auditMatch != "" {
		var err error
		matcher, err = glob.Compile(auditMatch)
		if err != nil {
			return fmt.Errorf("invalid --match pattern: %w", err)
		}
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	// The glob narrows the set before the limit trims it, so fetch
	// unlimited and keep the newest matches here.
	filter := audit.Filter{
		Actor:  auditActor,
		Action: audit.Action(strings.ToUpper(auditAction)),
		Target: auditTarget,
		Limit:  auditLimit,
	}
	if matcher != nil {
		filter.Limit = 0
	}

	entries, err := svcs.vault.AuditTrail(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	if matcher != nil {
		kept := entries[:0]
		for _, e := range entries {
			if matcher.Match(e.Target) {
				kept = append(kept, e)
			}
		}
		entries = kept
		if auditLimit > 0 && len(entries) > auditLimit {
			entries = entries[len(entries)-auditLimit:]
		}
	}

	if len(entries) == 0 {
		cmd.Println("No matching audit entries")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-16s  %-12s  %s",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Actor, e.Target)
		if e.Status != audit.StatusSuccess {
			line += "  [" + e.Status + "]"
		}
		if len(e.Details) > 0 {
			line += "  " + formatDetails(e.Details)
		}
		cmd.Println(line)
	}
	return nil
}

func formatDetails(details map[string]any) string {
	parts := make([]string, 0, len(details))
	for k, v := range details {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	// Stable output for the terminal and tests.
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
