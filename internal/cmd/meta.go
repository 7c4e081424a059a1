package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/partvault/partvault/internal/vault"
)

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Show and edit document metadata",
}

var metaShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Print a document's metadata record",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetaShow,
}

var (
	metaExpect      int
	metaDescription string
	metaAuthor      string
	metaRevision    string
)

var metaUpdateCmd = &cobra.Command{
	Use:   "update <filename>",
	Short: "Edit a document's metadata record",
	Long: `Edit a document's metadata. State the record version you read with
--expect; if someone published a newer version in the meantime the edit
is rejected and nothing is written. Use --expect 0 to create the record.`,
	Args: cobra.ExactArgs(1),
	RunE: runMetaUpdate,
}

func init() {
	metaUpdateCmd.Flags().IntVar(&metaExpect, "expect", 0, "record version this edit is based on (0 creates)")
	metaUpdateCmd.Flags().StringVarP(&metaDescription, "description", "d", "", "new description")
	metaUpdateCmd.Flags().StringVar(&metaAuthor, "author", "", "new author")
	metaUpdateCmd.Flags().StringVar(&metaRevision, "revision", "", "new drawing revision")

	metaCmd.AddCommand(metaShowCmd)
	metaCmd.AddCommand(metaUpdateCmd)
	rootCmd.AddCommand(metaCmd)
}

func runMetaShow(cmd *cobra.Command, args []string) error {
	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	rec, found, err := svcs.vault.Metadata(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}
	if !found {
		return fmt.Errorf("no metadata for %s", args[0])
	}

	out, err := yaml.Marshal(map[string]any{
		"filename":    rec.Filename,
		"description": rec.Description,
		"author":      rec.Author,
		"revision":    rec.Revision,
		"version":     rec.Version,
	})
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}

func runMetaUpdate(cmd *cobra.Command, args []string) error {
	actor, err := currentIdentity()
	if err != nil {
		return err
	}

	change := vault.MetadataChange{}
	if cmd.Flags().Changed("description") {
		change.Description = &metaDescription
	}
	if cmd.Flags().Changed("author") {
		change.Author = &metaAuthor
	}
	if cmd.Flags().Changed("revision") {
		change.Revision = &metaRevision
	}
	if change.Description == nil && change.Author == nil && change.Revision == nil {
		return fmt.Errorf("nothing to update: pass --description, --author or --revision")
	}

	svcs, err := newServices()
	if err != nil {
		return err
	}
	defer svcs.Close()

	rec, err := svcs.vault.UpdateMetadata(cmd.Context(), actor, args[0], metaExpect, change)
	if err != nil {
		return fmt.Errorf("%s", userMessage(err))
	}

	cmd.Printf("Updated %s (version %d)\n", rec.Filename, rec.Version)
	return nil
}
