package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ErrObjectNotFound reports a read of an object that does not exist.
var ErrObjectNotFound = appErrors.New(appErrors.ErrCodeNotFound, "object not found")

// ─────────────────────────────────────────────────────────────────────────────
// OBJECT STORE
// ─────────────────────────────────────────────────────────────────────────────

// ObjectStore is the application-facing port over the three buckets.
// Document sources are keyed by document id, export artifacts by run id and
// artifact name, and temp objects by caller-chosen keys that the bucket
// lifecycle expires.
type ObjectStore interface {
	PutDocumentSource(ctx context.Context, documentID common.ID, data []byte, contentType string) (*StoredObject, error)
	GetDocumentSource(ctx context.Context, documentID common.ID) (*SourceObject, error)
	DeleteDocumentSource(ctx context.Context, documentID common.ID) error

	PutExport(ctx context.Context, runID common.ID, name string, data []byte) (*StoredObject, error)
	GetExport(ctx context.Context, runID common.ID, name string) ([]byte, error)
	ListExports(ctx context.Context, runID common.ID) ([]ObjectInfo, error)
	PresignExport(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error)

	PutTemp(ctx context.Context, key string, data []byte, contentType string) (*StoredObject, error)
	PresignTemp(ctx context.Context, key string, expiry time.Duration) (string, error)
	RemoveTemp(ctx context.Context, keys []string) []RemoveError
}

// StoredObject describes a completed write.
type StoredObject struct {
	Bucket string
	Key    string
	ETag   string
	Size   int64
}

// SourceObject carries a document source body with its stored content type.
type SourceObject struct {
	Data         []byte
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// RemoveError records one failed deletion in a batch.
type RemoveError struct {
	Key string
	Err error
}

type store struct {
	api           StorageAPI
	buckets       Buckets
	presignExpiry time.Duration
	logger        logging.Logger
}

// NewObjectStore builds the store over a connected client.
func NewObjectStore(client *Client, log logging.Logger) ObjectStore {
	expiry := client.cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return newStore(client.api, client.buckets, expiry, log)
}

func newStore(api StorageAPI, buckets Buckets, presignExpiry time.Duration, log logging.Logger) *store {
	return &store{
		api:           api,
		buckets:       buckets,
		presignExpiry: presignExpiry,
		logger:        log,
	}
}

func sourceKey(documentID common.ID) string {
	return string(documentID) + "/source"
}

func exportKey(runID common.ID, name string) string {
	return string(runID) + "/" + name
}

// ─────────────────────────────────────────────────────────────────────────────
// DOCUMENT SOURCES
// ─────────────────────────────────────────────────────────────────────────────

// PutDocumentSource stores the raw uploaded bill file.  Re-uploads for the
// same document overwrite the previous source.
func (s *store) PutDocumentSource(ctx context.Context, documentID common.ID, data []byte, contentType string) (*StoredObject, error) {
	if documentID == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "document id is required")
	}
	if len(data) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "document body is empty")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data[:min(512, len(data))])
	}

	result, err := s.put(ctx, s.buckets.Documents, sourceKey(documentID), data, contentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageWrite, "failed to store document source")
	}

	s.logger.Debug("Document source stored",
		logging.String("document_id", string(documentID)),
		logging.Int64("size", result.Size),
	)
	return result, nil
}

// GetDocumentSource reads the raw bill file back, e.g. for re-extraction.
func (s *store) GetDocumentSource(ctx context.Context, documentID common.ID) (*SourceObject, error) {
	if documentID == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "document id is required")
	}
	return s.read(ctx, s.buckets.Documents, sourceKey(documentID), "document source")
}

// DeleteDocumentSource removes the raw bill file.  Deleting an absent object
// is not an error.
func (s *store) DeleteDocumentSource(ctx context.Context, documentID common.ID) error {
	if documentID == "" {
		return appErrors.New(appErrors.ErrCodeValidation, "document id is required")
	}
	err := s.api.RemoveObject(ctx, s.buckets.Documents, sourceKey(documentID), minio.RemoveObjectOptions{})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeStorageWrite, "failed to delete document source")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EXPORT ARTIFACTS
// ─────────────────────────────────────────────────────────────────────────────

// PutExport stores one artifact of an extraction run under <run>/<name>.
func (s *store) PutExport(ctx context.Context, runID common.ID, name string, data []byte) (*StoredObject, error) {
	if runID == "" || name == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "run id and artifact name are required")
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(name, ".json") {
		contentType = "application/json"
	}

	result, err := s.put(ctx, s.buckets.Exports, exportKey(runID, name), data, contentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageWrite, "failed to store export artifact")
	}

	s.logger.Debug("Export artifact stored",
		logging.String("run_id", string(runID)),
		logging.String("name", name),
		logging.Int64("size", result.Size),
	)
	return result, nil
}

// GetExport reads one artifact of an extraction run.
func (s *store) GetExport(ctx context.Context, runID common.ID, name string) ([]byte, error) {
	if runID == "" || name == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "run id and artifact name are required")
	}
	obj, err := s.read(ctx, s.buckets.Exports, exportKey(runID, name), "export artifact")
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// ListExports lists the artifacts stored for a run.
func (s *store) ListExports(ctx context.Context, runID common.ID) ([]ObjectInfo, error) {
	if runID == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "run id is required")
	}

	opts := minio.ListObjectsOptions{
		Prefix:    string(runID) + "/",
		Recursive: true,
	}

	var objects []ObjectInfo
	for obj := range s.api.ListObjects(ctx, s.buckets.Exports, opts) {
		if obj.Err != nil {
			return nil, appErrors.Wrap(obj.Err, appErrors.ErrCodeStorageRead, "failed to list export artifacts")
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// PresignExport returns a time-limited download URL for an artifact.
// A zero expiry uses the configured default.
func (s *store) PresignExport(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error) {
	if runID == "" || name == "" {
		return "", appErrors.New(appErrors.ErrCodeValidation, "run id and artifact name are required")
	}
	return s.presign(ctx, s.buckets.Exports, exportKey(runID, name), expiry)
}

// ─────────────────────────────────────────────────────────────────────────────
// TEMP STAGING
// ─────────────────────────────────────────────────────────────────────────────

// PutTemp stores a disposable object.  The bucket lifecycle removes it after
// the configured number of days.
func (s *store) PutTemp(ctx context.Context, key string, data []byte, contentType string) (*StoredObject, error) {
	if key == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "object key is required")
	}
	if contentType == "" && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(512, len(data))])
	}

	result, err := s.put(ctx, s.buckets.Temp, key, data, contentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeStorageWrite, "failed to store temp object")
	}
	return result, nil
}

// PresignTemp returns a time-limited download URL for a temp object.
func (s *store) PresignTemp(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if key == "" {
		return "", appErrors.New(appErrors.ErrCodeValidation, "object key is required")
	}
	return s.presign(ctx, s.buckets.Temp, key, expiry)
}

// RemoveTemp deletes temp objects ahead of their lifecycle expiry, returning
// one entry per key that failed.
func (s *store) RemoveTemp(ctx context.Context, keys []string) []RemoveError {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var failures []RemoveError
	for removeErr := range s.api.RemoveObjects(ctx, s.buckets.Temp, objectsCh, minio.RemoveObjectsOptions{}) {
		failures = append(failures, RemoveError{Key: removeErr.ObjectName, Err: removeErr.Err})
	}
	return failures
}

// ─────────────────────────────────────────────────────────────────────────────
// SHARED PLUMBING
// ─────────────────────────────────────────────────────────────────────────────

func (s *store) put(ctx context.Context, bucket, key string, data []byte, contentType string) (*StoredObject, error) {
	info, err := s.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, err
	}
	return &StoredObject{
		Bucket: bucket,
		Key:    key,
		ETag:   info.ETag,
		Size:   info.Size,
	}, nil
}

func (s *store) read(ctx context.Context, bucket, key, what string) (*SourceObject, error) {
	obj, err := s.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeStorageRead, "failed to open %s", what)
	}
	defer obj.Close()

	// GetObject is lazy; a missing object only surfaces on Stat.
	stat, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return nil, ErrObjectNotFound
		}
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeStorageRead, "failed to stat %s", what)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeStorageRead, "failed to read %s", what)
	}

	return &SourceObject{
		Data:         data,
		ContentType:  stat.ContentType,
		Size:         stat.Size,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

func (s *store) presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.presignExpiry
	}
	u, err := s.api.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrCodeStorageRead, "failed to presign download")
	}
	return u.String(), nil
}
