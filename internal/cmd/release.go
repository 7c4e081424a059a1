package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var releaseForce bool

var releaseCmd = &cobra.Command{
	Use:   "release <filename>",
	Short: "Release a lock, your own or (with --force) someone else's",
	Long: `Release a lock on a document. Without --force this is the same as
checkin and only works on your own lock. With --force an admin or
supervisor can break another user's lock; the override is recorded in
the audit trail with the previous holder's name.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().BoolVar(&releaseForce, "force", false, "break another user's lock (admin or supervisor)")
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	if releaseForce {
		if err := svcs.vault.ForceRelease(cmd.Context(), actor, args[0]); err != nil {
			return fmt.Errorf("%s", userMessage(err))
		}
		cmd.Printf("Force-released %s\n", args[0])
		return nil
	}

	if err := svcs.vault.Checkin(cmd.Context(), actor, args[0]); err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}
	cmd.Printf("Checked in %s\n", args[0])
	return nil
}
