package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkoutMessage string

var checkoutCmd = &cobra.Command{
	Use:   "checkout <filename>",
	Short: "Check out a document for exclusive editing",
	Long: `Acquire an exclusive lock on a document. While you hold the lock no one
else can check the document out; release it with checkin when done.
Checking out a document you already hold is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckout,
}

func init() {
	checkoutCmd.Flags().StringVarP(&checkoutMessage, "message", "m", "", "note stored with the lock")
	rootCmd.AddCommand(checkoutCmd)
}

func runCheckout(cmd *cobra.Command, args []string) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	lock, err := svcs.vault.Checkout(cmd.Context(), actor, args[0], checkoutMessage)
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	cmd.Printf("Checked out %s (held by %s since %s)\n",
		lock.Filename, lock.Holder, lock.AcquiredAt.Format("2006-01-02 15:04:05"))
	return nil
}
