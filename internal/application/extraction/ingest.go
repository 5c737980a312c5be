package extraction

import (
	"context"
	"time"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	storage "github.com/turtacn/LegisGraph/internal/infrastructure/storage/minio"
	"github.com/turtacn/LegisGraph/internal/intelligence/textproc"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// SourceStore keeps the originally uploaded bytes of each document.
// minio.ObjectStore satisfies it.
type SourceStore interface {
	PutDocumentSource(ctx context.Context, documentID common.ID, data []byte, contentType string) (*storage.StoredObject, error)
	DeleteDocumentSource(ctx context.Context, documentID common.ID) error
}

// ---------------------------------------------------------------------------
// Request / Response DTOs
// ---------------------------------------------------------------------------

// ListDocumentsRequest narrows and pages a document listing.
type ListDocumentsRequest struct {
	SourceName string            `json:"source_name,omitempty"`
	Pagination common.Pagination `json:"pagination"`
}

// DocumentList is one page of documents, raw text omitted.
type DocumentList struct {
	Documents  []btypes.DocumentDTO `json:"documents"`
	Pagination common.Pagination    `json:"pagination"`
}

// ---------------------------------------------------------------------------
// Service Interface
// ---------------------------------------------------------------------------

// IngestService manages the document side of the platform: bringing source
// content in, listing what has been ingested, and removing it again.
type IngestService interface {
	// IngestDocument converts, deduplicates, segments, and persists one
	// source document. Re-uploading unchanged content is rejected with a
	// conflict naming the existing document.
	IngestDocument(ctx context.Context, req *btypes.IngestRequest) (*btypes.DocumentDTO, error)

	// GetDocument returns one document with its raw text.
	GetDocument(ctx context.Context, id common.ID) (*btypes.DocumentDTO, error)

	// ListDocuments returns a page of documents without raw text.
	ListDocuments(ctx context.Context, req *ListDocumentsRequest) (*DocumentList, error)

	// DeleteDocument removes a document together with its stored source
	// and search rows. Extraction runs are removed by the database cascade.
	DeleteDocument(ctx context.Context, id common.ID) error
}

// IngestDeps carries the collaborators of the ingest service. Documents and
// Logger are required; Store, Index, and Metrics may be nil, which disables
// source retention, search cleanup, and instrumentation respectively.
type IngestDeps struct {
	Documents bill.DocumentRepository
	Store     SourceStore
	Index     SearchIndex
	Logger    logging.Logger
	Metrics   *prometheus.AppMetrics
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type ingestServiceImpl struct {
	documents bill.DocumentRepository
	store     SourceStore
	index     SearchIndex
	converter textproc.HTMLConverter
	segmenter textproc.Segmenter
	logger    logging.Logger
	metrics   *prometheus.AppMetrics
}

// NewIngestService builds the ingest service and its text-processing
// collaborators.
func NewIngestService(deps IngestDeps) (IngestService, error) {
	if deps.Documents == nil {
		return nil, appErrors.InvalidParam("document repository must not be nil")
	}
	if deps.Logger == nil {
		return nil, appErrors.InvalidParam("logger must not be nil")
	}

	kv := newKVLogger(deps.Logger)
	return &ingestServiceImpl{
		documents: deps.Documents,
		store:     deps.Store,
		index:     deps.Index,
		converter: textproc.NewHTMLConverter(kv),
		segmenter: textproc.NewSegmenter(kv),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}, nil
}

func (s *ingestServiceImpl) IngestDocument(ctx context.Context, req *btypes.IngestRequest) (*btypes.DocumentDTO, error) {
	if req == nil {
		return nil, appErrors.InvalidParam("ingest request must not be nil")
	}
	if err := req.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeValidation, "invalid ingest request")
	}

	started := time.Now()
	success := false
	defer func() {
		if s.metrics != nil {
			prometheus.RecordDocumentIngest(s.metrics, string(req.Format), success, time.Since(started))
		}
	}()

	// 1. HTML sources are reduced to plain text; the pipeline never sees
	// markup.
	text := req.Content
	if req.Format == btypes.FormatHTML {
		converted, err := s.converter.Convert(req.Content)
		if err != nil {
			return nil, err
		}
		text = converted
	}

	// 2. Construct the aggregate. This rejects whitespace-only content and
	// fixes the content hash.
	doc, err := bill.NewDocument(req.SourceName, req.Format, text)
	if err != nil {
		return nil, err
	}

	// 3. Unchanged re-uploads are rejected with a pointer to the original.
	if existing, err := s.documents.GetByContentHash(ctx, doc.ContentHash); err == nil {
		return nil, appErrors.New(appErrors.ErrCodeDocumentExists,
			"document with identical content already exists").
			WithDetail("existing document id: " + string(existing.ID))
	} else if !appErrors.IsCode(err, appErrors.ErrCodeDocumentNotFound) {
		return nil, err
	}

	// 4. Attach the titles and numbered sections recovered from the text.
	seg := s.segmenter.Segment(text)
	doc.ApplySegmentation(seg.MeasureTitle, seg.ReportTitle, seg.Description, docSections(seg.Sections))

	// 5. Persist, then keep the original upload for later re-processing.
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.storeSource(ctx, doc.ID, req)

	success = true
	s.logger.Info("Document ingested",
		logging.String("document_id", string(doc.ID)),
		logging.String("source_name", doc.SourceName),
		logging.String("format", string(doc.Format)),
		logging.Int("chars", doc.CharCount()),
		logging.Int("sections", len(doc.Sections)))

	dto := doc.ToDTO()
	return &dto, nil
}

func (s *ingestServiceImpl) GetDocument(ctx context.Context, id common.ID) (*btypes.DocumentDTO, error) {
	if err := id.Validate(); err != nil {
		return nil, appErrors.InvalidParam("invalid document id: " + err.Error())
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := doc.ToDTO()
	return &dto, nil
}

func (s *ingestServiceImpl) ListDocuments(ctx context.Context, req *ListDocumentsRequest) (*DocumentList, error) {
	if req == nil {
		req = &ListDocumentsRequest{}
	}
	page := normalizePage(req.Pagination)

	docs, total, err := s.documents.List(ctx, bill.DocumentFilter{
		SourceName: req.SourceName,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	items := make([]btypes.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.ToDTO())
	}
	page.Total = total
	return &DocumentList{Documents: items, Pagination: page}, nil
}

func (s *ingestServiceImpl) DeleteDocument(ctx context.Context, id common.ID) error {
	if err := id.Validate(); err != nil {
		return appErrors.InvalidParam("invalid document id: " + err.Error())
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}

	// The database row is gone; source and search cleanup is best effort.
	if s.store != nil {
		if err := s.store.DeleteDocumentSource(ctx, id); err != nil {
			s.logger.Warn("Failed to delete stored document source",
				logging.String("document_id", string(id)), logging.Err(err))
			recordError(s.metrics, "minio", "source_delete")
		}
	}
	if s.index != nil {
		if _, err := s.index.RemoveDocument(ctx, id); err != nil {
			s.logger.Warn("Failed to remove document from search index",
				logging.String("document_id", string(id)), logging.Err(err))
			recordError(s.metrics, "opensearch", "index_delete")
		}
	}

	s.logger.Info("Document deleted", logging.String("document_id", string(id)))
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// storeSource keeps the uploaded bytes for later re-processing. Postgres
// already holds the text the pipeline runs on, so a storage failure here
// only costs the original markup.
func (s *ingestServiceImpl) storeSource(ctx context.Context, id common.ID, req *btypes.IngestRequest) {
	if s.store == nil {
		return
	}
	contentType := "text/plain"
	if req.Format == btypes.FormatHTML {
		contentType = "text/html"
	}
	if _, err := s.store.PutDocumentSource(ctx, id, []byte(req.Content), contentType); err != nil {
		s.logger.Warn("Failed to store original document source",
			logging.String("document_id", string(id)), logging.Err(err))
		recordError(s.metrics, "minio", "source_write")
	}
}

func docSections(sections []textproc.BillSection) []bill.Section {
	out := make([]bill.Section, 0, len(sections))
	for _, sec := range sections {
		out = append(out, bill.Section{Number: sec.Number, Content: sec.Content})
	}
	return out
}
