package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ExtractionsClient calls the extraction-run endpoints.
type ExtractionsClient struct {
	client *Client
}

// ListRunsOptions narrows and pages a run listing.
type ListRunsOptions struct {
	DocumentID common.ID
	Status     btypes.RunStatus
	Page       int
	PageSize   int
}

// RunList is one page of extraction runs, newest first.
type RunList struct {
	Runs       []btypes.ExtractionRunDTO `json:"runs"`
	Pagination common.Pagination         `json:"pagination"`
}

// ExportResult reports what a graph export produced.
type ExportResult struct {
	RunID         common.ID             `json:"run_id"`
	DocumentID    common.ID             `json:"document_id"`
	EntityCount   int                   `json:"entity_count"`
	RelationCount int                   `json:"relation_count"`
	GraphStats    *btypes.GraphStatsDTO `json:"graph_stats,omitempty"`
	Artifacts     []string              `json:"artifacts,omitempty"`
}

// ShareLink is one presigned download link.
type ShareLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Start creates an extraction run. With req.Async the run is enqueued
// and returned pending; otherwise the call blocks until the pipeline
// finishes.
func (ec *ExtractionsClient) Start(ctx context.Context, req *btypes.ExtractRequest) (*btypes.ExtractionRunDTO, error) {
	if req == nil {
		return nil, fmt.Errorf("client: extract request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var run btypes.ExtractionRunDTO
	if err := ec.client.post(ctx, "/api/v1/extractions", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Get fetches one run.
func (ec *ExtractionsClient) Get(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run id is empty")
	}

	var run btypes.ExtractionRunDTO
	if err := ec.client.get(ctx, "/api/v1/extractions/"+url.PathEscape(string(runID)), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List fetches a page of runs.
func (ec *ExtractionsClient) List(ctx context.Context, opts ListRunsOptions) (*RunList, error) {
	q := url.Values{}
	if opts.DocumentID != "" {
		q.Set("document_id", string(opts.DocumentID))
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/extractions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list RunList
	if err := ec.client.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Results fetches a run together with its entities and relations.
func (ec *ExtractionsClient) Results(ctx context.Context, runID common.ID) (*btypes.ExtractionResultDTO, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run id is empty")
	}

	var res btypes.ExtractionResultDTO
	if err := ec.client.get(ctx, "/api/v1/extractions/"+url.PathEscape(string(runID))+"/results", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Export writes a succeeded run into the knowledge graph and object
// storage.
func (ec *ExtractionsClient) Export(ctx context.Context, runID common.ID) (*ExportResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run id is empty")
	}

	var res ExportResult
	if err := ec.client.post(ctx, "/api/v1/extractions/"+url.PathEscape(string(runID))+"/export", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Artifact fetches a presigned link to one export artifact of a run. A
// zero expiry leaves the server default in place.
func (ec *ExtractionsClient) Artifact(ctx context.Context, runID common.ID, name string, expiry time.Duration) (*ShareLink, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run id is empty")
	}
	if name == "" {
		return nil, fmt.Errorf("client: artifact name is empty")
	}

	path := "/api/v1/extractions/" + url.PathEscape(string(runID)) + "/artifacts/" + url.PathEscape(name)
	if expiry > 0 {
		path += "?expiry=" + url.QueryEscape(expiry.String())
	}

	var link ShareLink
	if err := ec.client.get(ctx, path, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Share fetches a presigned link to a self-expiring bundle of the run
// results. A zero expiry leaves the server default in place.
func (ec *ExtractionsClient) Share(ctx context.Context, runID common.ID, expiry time.Duration) (*ShareLink, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run id is empty")
	}

	path := "/api/v1/extractions/" + url.PathEscape(string(runID)) + "/share"
	if expiry > 0 {
		path += "?expiry=" + url.QueryEscape(expiry.String())
	}

	var link ShareLink
	if err := ec.client.post(ctx, path, nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// StatusCounts reports how many runs sit in each status.
func (ec *ExtractionsClient) StatusCounts(ctx context.Context) (map[btypes.RunStatus]int64, error) {
	var counts map[btypes.RunStatus]int64
	if err := ec.client.get(ctx, "/api/v1/extractions/status", &counts); err != nil {
		return nil, err
	}
	return counts, nil
}
