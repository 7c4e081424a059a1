package cmd

import (
	"github.com/spf13/cobra"

	"github.com/partvault/partvault/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of document locks",
	Long: `Open a full-screen view of the active locks that refreshes on a timer
and on local record changes. Quit with q.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	return tui.Run(svcs.vault, svcs.cfg.Repo.Path)
}
