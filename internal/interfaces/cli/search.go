package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/LegisGraph/pkg/client"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// NewSearchCmd builds the search command group.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search extracted entities and relations",
	}

	cmd.AddCommand(
		newSearchEntitiesCmd(),
		newSearchRelationsCmd(),
	)
	return cmd
}

// entityHitsView renders entity matches as a table.
type entityHitsView struct {
	*client.EntitySearchResult
}

func (v entityHitsView) TableHeaders() []string {
	return []string{"Score", "Text", "Type", "Confidence", "Document", "Context"}
}

func (v entityHitsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Hits))
	for _, h := range v.Hits {
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", h.Score),
			truncate(h.Entity.Text, 40),
			h.Entity.Type,
			fmt.Sprintf("%.2f", h.Entity.Confidence),
			string(h.Entity.DocumentID),
			truncate(h.Entity.Context, 48),
		})
	}
	return rows
}

func newSearchEntitiesCmd() *cobra.Command {
	var (
		types         string
		minConfidence float64
		documentID    string
		page          int
		pageSize      int
	)

	cmd := &cobra.Command{
		Use:   "entities <query>",
		Short: "Search entities by text and context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			opts := client.EntitySearchOptions{
				Query:         args[0],
				MinConfidence: minConfidence,
				DocumentID:    common.ID(documentID),
				Page:          page,
				PageSize:      pageSize,
			}
			if types != "" {
				opts.Types = strings.Split(types, ",")
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := cliCtx.Client.Search().Entities(ctx, opts)
			if err != nil {
				return err
			}

			if cliCtx.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d matches in %dms\n", res.Pagination.Total, res.TookMs)
			}
			return PrintResult(cmd, entityHitsView{res})
		},
	}

	cmd.Flags().StringVar(&types, "types", "", "comma-separated entity types, e.g. agency,law")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence filter")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "restrict to one document")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")

	return cmd
}

// relationHitsView renders relation matches as a table.
type relationHitsView struct {
	*client.RelationSearchResult
}

func (v relationHitsView) TableHeaders() []string {
	return []string{"Score", "Subject", "Predicate", "Object", "Confidence", "Document"}
}

func (v relationHitsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Hits))
	for _, h := range v.Hits {
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", h.Score),
			truncate(h.Relation.Subject, 32),
			h.Relation.Predicate,
			truncate(h.Relation.Object, 40),
			fmt.Sprintf("%.2f", h.Relation.Confidence),
			string(h.Relation.DocumentID),
		})
	}
	return rows
}

func newSearchRelationsCmd() *cobra.Command {
	var (
		predicate     string
		minConfidence float64
		documentID    string
		page          int
		pageSize      int
	)

	cmd := &cobra.Command{
		Use:   "relations [query]",
		Short: "Search relation triples by text or predicate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			opts := client.RelationSearchOptions{
				Predicate:     predicate,
				MinConfidence: minConfidence,
				DocumentID:    common.ID(documentID),
				Page:          page,
				PageSize:      pageSize,
			}
			if len(args) == 1 {
				opts.Query = args[0]
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := cliCtx.Client.Search().Relations(ctx, opts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, relationHitsView{res})
		},
	}

	cmd.Flags().StringVarP(&predicate, "predicate", "p", "", "filter by predicate, e.g. shall_establish")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence filter")
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "restrict to one document")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")

	return cmd
}
