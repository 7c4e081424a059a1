package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <filename>",
	Short: "Release your lock on a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)
}

func runCheckin(cmd *cobra.Command, args []string) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	if err := svcs.vault.Checkin(cmd.Context(), actor, args[0]); err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	cmd.Printf("Checked in %s\n", args[0])
	return nil
}
