package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <part-number>",
	Short: "Get notified when a part's revision advances",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribe,
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <part-number>",
	Short: "Stop revision notifications for a part",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnsubscribe,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	return editSubscription(cmd, args[0], true)
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	return editSubscription(cmd, args[0], false)
}

func editSubscription(cmd *cobra.Command, partNumber string, add bool) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	if add {
		err = svcs.vault.Subscribe(cmd.Context(), actor, partNumber)
	} else {
		err = svcs.vault.Unsubscribe(cmd.Context(), actor, partNumber)
	}
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	if add {
		cmd.Printf("Subscribed to %s\n", partNumber)
	} else {
		cmd.Printf("Unsubscribed from %s\n", partNumber)
	}
	return nil
}
