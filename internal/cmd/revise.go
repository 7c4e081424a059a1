package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviseDescription string

var reviseCmd = &cobra.Command{
	Use:   "revise <part-number> <revision>",
	Short: "Advance a part to a later revision",
	Long: `Advance the released revision of a part. Revisions are uppercase letter
sequences ordered A, B, ... Z, AA, AB and so on; an advance must move
strictly forward. Users subscribed to the part are notified.`,
	Args: cobra.ExactArgs(2),
	RunE: runRevise,
}

func init() {
	reviseCmd.Flags().StringVarP(&reviseDescription, "description", "d", "", "part description to record")
	rootCmd.AddCommand(reviseCmd)
}

func runRevise(cmd *cobra.Command, args []string) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	part, err := svcs.vault.AdvanceRevision(cmd.Context(), actor, args[0], args[1], reviseDescription)
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	cmd.Printf("Part %s is now revision %s\n", part.PartNumber, part.CurrentRev)
	return nil
}
