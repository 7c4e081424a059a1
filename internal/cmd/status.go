package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/partvault/partvault/internal/lockmgr"
	"github.com/partvault/partvault/internal/util"
)

var statusMatch string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active document locks",
	Long: `List every document currently checked out, who holds it and since when.
Use --match to narrow the list with a glob pattern, e.g. "*.dwg" or
"housing-*".`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusMatch, "match", "", "glob pattern filtering filenames")
	rootCmd.AddCommand(statusCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	holderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	ageStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runStatus(cmd *cobra.Command, args []string) error {
	var matcher glob.Glob
	if statusMatch != "" {
		var err error
		matcher, err = glob.Compile(statusMatch)
		if err != nil {
			return fmt.Errorf("invalid --match pattern: %w", err)
		}
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	locks, err := svcs.vault.Locks(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	if matcher != nil {
		kept := locks[:0]
		for _, l := range locks {
			if matcher.Match(l.Filename) {
				kept = append(kept, l)
			}
		}
		locks = kept
	}

	if len(locks) == 0 {
		cmd.Println("No documents checked out")
		return nil
	}

	cmd.Print(renderLockTable(locks, terminalWidth()))
	return nil
}

// terminalWidth returns the usable output width, defaulting to 100 columns
// when stdout is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

func renderLockTable(locks []lockmgr.Lock, width int) string {
	fileW, holderW := len("FILE"), len("HOLDER")
	for _, l := range locks {
		fileW = max(fileW, len(l.Filename))
		holderW = max(holderW, len(l.Holder))
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %-8s  %s", fileW, "FILE", holderW, "HOLDER", "AGE", "MESSAGE")))
	sb.WriteByte('\n')
	for _, l := range locks {
		line := fmt.Sprintf("%-*s  %s  %s  %s",
			fileW, l.Filename,
			holderStyle.Render(fmt.Sprintf("%-*s", holderW, l.Holder)),
			ageStyle.Render(fmt.Sprintf("%-8s", lockAge(l.AcquiredAt))),
			l.Message)
		sb.WriteString(strings.TrimRight(util.TruncateANSI(line, width), " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// lockAge renders how long a lock has been held, coarsely.
func lockAge(since time.Time) string {
	d := time.Since(since)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
