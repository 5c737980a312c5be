package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

// NewGraphCmd builds the graph command group.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the exported knowledge graph",
	}

	cmd.AddCommand(
		newGraphStatsCmd(),
		newGraphRelatedCmd(),
	)
	return cmd
}

// graphStatsView renders graph totals as a table.
type graphStatsView struct {
	*btypes.GraphStatsDTO
}

func (v graphStatsView) TableHeaders() []string {
	return []string{"Metric", "Count"}
}

func (v graphStatsView) TableRows() [][]string {
	rows := [][]string{
		{"nodes", strconv.FormatInt(v.NodeCount, 10)},
		{"edges", strconv.FormatInt(v.EdgeCount, 10)},
	}

	labels := make([]string, 0, len(v.NodesByLabel))
	for label := range v.NodesByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		rows = append(rows, []string{"nodes:" + label, strconv.FormatInt(v.NodesByLabel[label], 10)})
	}

	types := make([]string, 0, len(v.EdgesByType))
	for t := range v.EdgesByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []string{"edges:" + t, strconv.FormatInt(v.EdgesByType[t], 10)})
	}

	return rows
}

func newGraphStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show node and edge totals by label and relation type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			stats, err := cliCtx.Client.Search().GraphStats(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, graphStatsView{stats})
		},
	}
}

func newGraphRelatedCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "related <text>",
		Short: "List entities reachable from a text in the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := cliCtx.Client.Search().Related(ctx, args[0], depth)
			if err != nil {
				return err
			}

			for _, related := range res.Related {
				cmd.Println(related)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "traversal depth (server default when omitted)")
	return cmd
}
