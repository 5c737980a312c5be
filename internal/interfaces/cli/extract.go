package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/LegisGraph/pkg/client"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// pollInterval is how often `extract start --wait` checks an async run.
const pollInterval = 2 * time.Second

// NewExtractCmd builds the extract command group.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run and inspect entity/relation extractions",
	}

	cmd.AddCommand(
		newExtractStartCmd(),
		newExtractGetCmd(),
		newExtractListCmd(),
		newExtractResultsCmd(),
		newExtractExportCmd(),
		newExtractShareCmd(),
		newExtractStatusCmd(),
	)
	return cmd
}

func newExtractStartCmd() *cobra.Command {
	var (
		mode  string
		async bool
		wait  bool
	)

	cmd := &cobra.Command{
		Use:   "start <document-id>",
		Short: "Start an extraction run for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			run, err := cliCtx.Client.Extractions().Start(ctx, &btypes.ExtractRequest{
				DocumentID: common.ID(args[0]),
				Mode:       btypes.ExtractionMode(mode),
				Async:      async,
			})
			if err != nil {
				return err
			}

			if async && wait {
				run, err = waitForRun(ctx, cliCtx.Client, run.ID)
				if err != nil {
					return err
				}
			}

			return PrintResult(cmd, runView{run})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(btypes.ModeRemoteFirst),
		"extraction mode: remote_first or pattern_only")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue the run instead of waiting for the pipeline")
	cmd.Flags().BoolVar(&wait, "wait", false, "with --async, poll until the run reaches a terminal status")

	return cmd
}

// waitForRun polls an async run until it succeeds or fails.
func waitForRun(ctx context.Context, c *client.Client, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			run, err := c.Extractions().Get(ctx, runID)
			if err != nil {
				return nil, err
			}
			if run.Status.IsTerminal() {
				return run, nil
			}
		}
	}
}

// runView renders one run as a single-row table.
type runView struct {
	*btypes.ExtractionRunDTO
}

func (v runView) TableHeaders() []string {
	return []string{"Run", "Document", "Mode", "Status", "Chunks", "Entities", "Relations", "Duration"}
}

func (v runView) TableRows() [][]string {
	return [][]string{{
		string(v.ID),
		string(v.DocumentID),
		string(v.Mode),
		colorStatus(v.Status),
		strconv.Itoa(v.TotalChunks),
		strconv.Itoa(v.EntityCount),
		strconv.Itoa(v.RelationCount),
		fmt.Sprintf("%.0fms", v.DurationMs),
	}}
}

func (v runView) String() string {
	line := fmt.Sprintf("run %s: %s (%d entities, %d relations)",
		v.ID, colorStatus(v.Status), v.EntityCount, v.RelationCount)
	if v.FailureReason != "" {
		line += "\n  reason: " + v.FailureReason
	}
	return line
}

func colorStatus(s btypes.RunStatus) string {
	switch s {
	case btypes.RunSucceeded:
		return color.GreenString(string(s))
	case btypes.RunFailed:
		return color.RedString(string(s))
	case btypes.RunRunning:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func newExtractGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Fetch one extraction run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			run, err := cliCtx.Client.Extractions().Get(ctx, common.ID(args[0]))
			if err != nil {
				return err
			}
			return PrintResult(cmd, runView{run})
		},
	}
}

// runListView renders a run page as a table.
type runListView struct {
	*client.RunList
}

func (v runListView) TableHeaders() []string {
	return []string{"Run", "Document", "Mode", "Status", "Entities", "Relations", "Created"}
}

func (v runListView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		rows = append(rows, []string{
			string(r.ID),
			string(r.DocumentID),
			string(r.Mode),
			colorStatus(r.Status),
			strconv.Itoa(r.EntityCount),
			strconv.Itoa(r.RelationCount),
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func newExtractListCmd() *cobra.Command {
	var (
		documentID string
		status     string
		page       int
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List extraction runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			list, err := cliCtx.Client.Extractions().List(ctx, client.ListRunsOptions{
				DocumentID: common.ID(documentID),
				Status:     btypes.RunStatus(status),
				Page:       page,
				PageSize:   pageSize,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, runListView{list})
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "filter by document id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, running, succeeded, failed)")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")

	return cmd
}

// resultsView renders extraction results as an entity/relation table.
type resultsView struct {
	*btypes.ExtractionResultDTO
}

func (v resultsView) TableHeaders() []string {
	return []string{"Kind", "Text", "Type", "Confidence", "Source"}
}

func (v resultsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Entities)+len(v.Relations))
	for _, e := range v.Entities {
		rows = append(rows, []string{
			"entity",
			truncate(e.Text, 56),
			e.Type,
			fmt.Sprintf("%.2f", e.Confidence),
			e.Source,
		})
	}
	for _, r := range v.Relations {
		rows = append(rows, []string{
			"relation",
			truncate(fmt.Sprintf("%s -%s-> %s", r.Subject, r.Predicate, r.Object), 56),
			r.Type,
			fmt.Sprintf("%.2f", r.Confidence),
			r.Source,
		})
	}
	return rows
}

func newExtractResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <run-id>",
		Short: "Fetch the entities and relations of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := cliCtx.Client.Extractions().Results(ctx, common.ID(args[0]))
			if err != nil {
				return err
			}
			return PrintResult(cmd, resultsView{res})
		},
	}
}

func newExtractExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a succeeded run into the knowledge graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := cliCtx.Client.Extractions().Export(ctx, common.ID(args[0]))
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("exported %d entities and %d relations",
				res.EntityCount, res.RelationCount))
			return PrintResult(cmd, res)
		},
	}
}

func newExtractShareCmd() *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "share <run-id>",
		Short: "Create a presigned link to a result bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			link, err := cliCtx.Client.Extractions().Share(ctx, common.ID(args[0]), expiry)
			if err != nil {
				return err
			}
			return PrintResult(cmd, link.URL)
		},
	}

	cmd.Flags().DurationVar(&expiry, "expiry", 0, "link lifetime (server default when omitted)")
	return cmd
}

// statusCountsView renders run counts per status.
type statusCountsView map[btypes.RunStatus]int64

func (v statusCountsView) TableHeaders() []string {
	return []string{"Status", "Runs"}
}

func (v statusCountsView) TableRows() [][]string {
	order := []btypes.RunStatus{btypes.RunPending, btypes.RunRunning, btypes.RunSucceeded, btypes.RunFailed}
	rows := make([][]string, 0, len(order))
	for _, s := range order {
		rows = append(rows, []string{colorStatus(s), strconv.FormatInt(v[s], 10)})
	}
	return rows
}

func newExtractStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many runs sit in each status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			counts, err := cliCtx.Client.Extractions().StatusCounts(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, statusCountsView(counts))
		},
	}
}
