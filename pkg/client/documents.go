package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// DocumentsClient calls the document endpoints.
type DocumentsClient struct {
	client *Client
}

// ListDocumentsOptions narrows and pages a document listing.
type ListDocumentsOptions struct {
	SourceName string
	Page       int
	PageSize   int
}

// DocumentList is one page of documents.
type DocumentList struct {
	Documents  []btypes.DocumentDTO `json:"documents"`
	Pagination common.Pagination    `json:"pagination"`
}

// Ingest uploads one source document for conversion and segmentation.
func (dc *DocumentsClient) Ingest(ctx context.Context, req *btypes.IngestRequest) (*btypes.DocumentDTO, error) {
	if req == nil {
		return nil, fmt.Errorf("client: ingest request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var doc btypes.DocumentDTO
	if err := dc.client.post(ctx, "/api/v1/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get fetches one document including its raw text.
func (dc *DocumentsClient) Get(ctx context.Context, id common.ID) (*btypes.DocumentDTO, error) {
	if id == "" {
		return nil, fmt.Errorf("client: document id is empty")
	}

	var doc btypes.DocumentDTO
	if err := dc.client.get(ctx, "/api/v1/documents/"+url.PathEscape(string(id)), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List fetches a page of documents without raw text.
func (dc *DocumentsClient) List(ctx context.Context, opts ListDocumentsOptions) (*DocumentList, error) {
	q := url.Values{}
	if opts.SourceName != "" {
		q.Set("source_name", opts.SourceName)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/v1/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list DocumentList
	if err := dc.client.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Delete removes a document together with its runs and results.
func (dc *DocumentsClient) Delete(ctx context.Context, id common.ID) error {
	if id == "" {
		return fmt.Errorf("client: document id is empty")
	}
	return dc.client.delete(ctx, "/api/v1/documents/"+url.PathEscape(string(id)))
}
