package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "List known parts and their current revisions",
	Args:  cobra.NoArgs,
	RunE:  runParts,
}

func init() {
	rootCmd.AddCommand(partsCmd)
}

func runParts(cmd *cobra.Command, args []string) error {
	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	parts, err := svcs.vault.Parts(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	if len(parts) == 0 {
		cmd.Println("No parts recorded")
		return nil
	}

	numW, revW := len("PART"), len("REV")
	for _, p := range parts {
		numW = max(numW, len(p.PartNumber))
		revW = max(revW, len(p.CurrentRev))
	}

	cmd.Println(headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %s", numW, "PART", revW, "REV", "DESCRIPTION")))
	for _, p := range parts {
		cmd.Println(strings.TrimRight(
			fmt.Sprintf("%-*s  %-*s  %s", numW, p.PartNumber, revW, p.CurrentRev, p.Description), " "))
	}
	return nil
}
