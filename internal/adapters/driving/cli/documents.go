package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents",
	Long:  `List, inspect, or remove documents from the index.`,
	RunE:  runDocumentsList,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runDocumentsList,
}

var documentsShowCmd = &cobra.Command{
	Use:   "show [document-id]",
	Short: "Show document metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Remove a document from the index",
	Long:  `Removes the document and every chunk segmented from it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed. Run 'ancora ingest' first.")
		return nil
	}

	cmd.Println("Indexed documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File:  %s\n", docs[i].Filename)
		if docs[i].Title != "" {
			cmd.Printf("    Title: %s\n", docs[i].Title)
		}
		if docs[i].Version != "" {
			cmd.Printf("    Version: %s\n", docs[i].Version)
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:        %s\n", doc.Filename)
	cmd.Printf("  Type:        %s\n", doc.Type)
	if doc.Title != "" {
		cmd.Printf("  Title:       %s\n", doc.Title)
	}
	if doc.Version != "" {
		cmd.Printf("  Version:     %s\n", doc.Version)
	}
	if doc.EffectiveDate != "" {
		cmd.Printf("  Effective:   %s\n", doc.EffectiveDate)
	}
	if doc.Department != "" {
		cmd.Printf("  Department:  %s\n", doc.Department)
	}
	cmd.Printf("  Fingerprint: %s\n", doc.Fingerprint)
	cmd.Printf("  Size:        %d characters\n", len(doc.Text))
	cmd.Printf("  Ingested:    %s\n", doc.IngestedAt.Format("2006-01-02 15:04:05"))

	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	docID := args[0]
	if err := ingestService.Delete(cmd.Context(), docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s removed from the index.\n", docID)
	return nil
}
