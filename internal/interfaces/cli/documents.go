package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/LegisGraph/pkg/client"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// NewDocumentsCmd builds the documents command group.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Ingest and manage legislative documents",
	}

	cmd.AddCommand(
		newDocumentsIngestCmd(),
		newDocumentsGetCmd(),
		newDocumentsListCmd(),
		newDocumentsDeleteCmd(),
	)
	return cmd
}

func newDocumentsIngestCmd() *cobra.Command {
	var (
		file       string
		sourceName string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload a document for conversion and segmentation",
		Long:  "Reads document content from --file, or from stdin when --file is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			doc, err := cliCtx.Client.Documents().Ingest(ctx, &btypes.IngestRequest{
				SourceName: sourceName,
				Format:     btypes.DocumentFormat(format),
				Content:    content,
			})
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("ingested document %s (%d chars, %d sections)",
				doc.ID, doc.CharCount, len(doc.Sections)))
			return PrintResult(cmd, doc)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the document file (default: stdin)")
	cmd.Flags().StringVarP(&sourceName, "source", "s", "", "source name, e.g. us_congress (required)")
	cmd.Flags().StringVar(&format, "format", string(btypes.FormatText), "document format: text or html")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func newDocumentsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Fetch one document including its raw text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			doc, err := cliCtx.Client.Documents().Get(ctx, common.ID(args[0]))
			if err != nil {
				return err
			}
			return PrintResult(cmd, doc)
		},
	}
}

// documentListView renders a document page as a table.
type documentListView struct {
	*client.DocumentList
}

func (v documentListView) TableHeaders() []string {
	return []string{"ID", "Source", "Title", "Format", "Chars", "Created"}
}

func (v documentListView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Documents))
	for _, d := range v.Documents {
		rows = append(rows, []string{
			string(d.ID),
			d.SourceName,
			truncate(d.Title, 48),
			string(d.Format),
			strconv.Itoa(d.CharCount),
			d.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func newDocumentsListCmd() *cobra.Command {
	var (
		sourceName string
		page       int
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			list, err := cliCtx.Client.Documents().List(ctx, client.ListDocumentsOptions{
				SourceName: sourceName,
				Page:       page,
				PageSize:   pageSize,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, documentListView{list})
		},
	}

	cmd.Flags().StringVarP(&sourceName, "source", "s", "", "filter by source name")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")

	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document together with its runs and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			if err := cliCtx.Client.Documents().Delete(ctx, common.ID(args[0])); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("deleted document %s", args[0]))
			return nil
		},
	}
}

// readContent loads document content from a file or, when path is empty,
// from stdin.
func readContent(cmd *cobra.Command, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
