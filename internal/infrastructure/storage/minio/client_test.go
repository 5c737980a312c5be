package minio

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// mockStorageAPI implements StorageAPI for the client and store tests.
type mockStorageAPI struct {
	mock.Mock
}

func (m *mockStorageAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *mockStorageAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorageAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *mockStorageAPI) SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error {
	args := m.Called(ctx, bucketName, config)
	return args.Error(0)
}

func (m *mockStorageAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockStorageAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.Object), args.Error(1)
}

func (m *mockStorageAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *mockStorageAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func (m *mockStorageAPI) RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	args := m.Called(ctx, bucketName, objectsCh, opts)
	return args.Get(0).(<-chan minio.RemoveObjectError)
}

func (m *mockStorageAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *mockStorageAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func makeURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

type ClientTestSuite struct {
	suite.Suite
	api    *mockStorageAPI
	client *Client
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(mockStorageAPI)
	s.client = &Client{
		api:     s.api,
		cfg:     config.MinIOConfig{TempExpiryDays: 7},
		buckets: BucketsForPrefix("legisgraph"),
		logger:  logging.NewNopLogger(),
	}
}

func (s *ClientTestSuite) TestBucketsForPrefix() {
	buckets := BucketsForPrefix("bills")
	assert.Equal(s.T(), "bills-documents", buckets.Documents)
	assert.Equal(s.T(), "bills-exports", buckets.Exports)
	assert.Equal(s.T(), "bills-temp", buckets.Temp)

	// An empty prefix falls back to the default.
	assert.Equal(s.T(), "legisgraph-documents", BucketsForPrefix("").Documents)
}

func (s *ClientTestSuite) TestEnsureBuckets_CreatesOnlyMissing() {
	s.api.On("BucketExists", mock.Anything, "legisgraph-documents").Return(false, nil)
	s.api.On("BucketExists", mock.Anything, "legisgraph-exports").Return(true, nil)
	s.api.On("BucketExists", mock.Anything, "legisgraph-temp").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "legisgraph-documents", mock.Anything).Return(nil)
	s.api.On("MakeBucket", mock.Anything, "legisgraph-temp", mock.Anything).Return(nil)

	var captured *lifecycle.Configuration
	s.api.On("SetBucketLifecycle", mock.Anything, "legisgraph-temp", mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*lifecycle.Configuration)
		}).
		Return(nil)

	err := s.client.EnsureBuckets(context.Background())
	assert.NoError(s.T(), err)
	s.api.AssertExpectations(s.T())
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, "legisgraph-exports", mock.Anything)

	s.Require().NotNil(captured)
	s.Require().Len(captured.Rules, 1)
	assert.Equal(s.T(), "temp-expiry", captured.Rules[0].ID)
	assert.Equal(s.T(), "Enabled", captured.Rules[0].Status)
	assert.Equal(s.T(), lifecycle.ExpirationDays(7), captured.Rules[0].Expiration.Days)
}

func (s *ClientTestSuite) TestEnsureBuckets_ToleratesCreationRace() {
	raceErr := minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}
	s.api.On("BucketExists", mock.Anything, mock.Anything).Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, mock.Anything, mock.Anything).Return(raceErr)
	s.api.On("SetBucketLifecycle", mock.Anything, "legisgraph-temp", mock.Anything).Return(nil)

	assert.NoError(s.T(), s.client.EnsureBuckets(context.Background()))
}

func (s *ClientTestSuite) TestEnsureBuckets_WrapsExistsFailure() {
	s.api.On("BucketExists", mock.Anything, "legisgraph-documents").Return(false, assert.AnError)

	err := s.client.EnsureBuckets(context.Background())
	assert.Error(s.T(), err)
	assert.True(s.T(), appErrors.IsCode(err, appErrors.ErrCodeBucketSetup))
	assert.Contains(s.T(), err.Error(), "legisgraph-documents")
}

func (s *ClientTestSuite) TestEnsureBuckets_WrapsCreateFailure() {
	s.api.On("BucketExists", mock.Anything, "legisgraph-documents").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "legisgraph-documents", mock.Anything).Return(assert.AnError)

	err := s.client.EnsureBuckets(context.Background())
	assert.True(s.T(), appErrors.IsCode(err, appErrors.ErrCodeBucketSetup))
}

func (s *ClientTestSuite) TestEnsureBuckets_LifecycleFailureIsNonFatal() {
	s.api.On("BucketExists", mock.Anything, mock.Anything).Return(true, nil)
	s.api.On("SetBucketLifecycle", mock.Anything, "legisgraph-temp", mock.Anything).Return(assert.AnError)

	assert.NoError(s.T(), s.client.EnsureBuckets(context.Background()))
}

func (s *ClientTestSuite) TestPing() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{}, nil)

	assert.NoError(s.T(), s.client.Ping(context.Background()))
}

func (s *ClientTestSuite) TestPing_WrapsFailure() {
	s.api.On("ListBuckets", mock.Anything).Return(nil, assert.AnError)

	err := s.client.Ping(context.Background())
	assert.True(s.T(), appErrors.IsCode(err, appErrors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestHealthCheck_AllBucketsPresent() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", mock.Anything, mock.Anything).Return(true, nil)

	status := s.client.HealthCheck(context.Background())
	assert.True(s.T(), status.Healthy)
	assert.Empty(s.T(), status.Error)
	assert.Len(s.T(), status.Buckets, 3)
	assert.True(s.T(), status.Buckets["legisgraph-documents"])
}

func (s *ClientTestSuite) TestHealthCheck_ReportsMissingBucket() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", mock.Anything, "legisgraph-documents").Return(true, nil)
	s.api.On("BucketExists", mock.Anything, "legisgraph-exports").Return(true, nil)
	s.api.On("BucketExists", mock.Anything, "legisgraph-temp").Return(false, nil)

	status := s.client.HealthCheck(context.Background())
	assert.False(s.T(), status.Healthy)
	assert.Contains(s.T(), status.Error, "legisgraph-temp")
	assert.False(s.T(), status.Buckets["legisgraph-temp"])
}

func (s *ClientTestSuite) TestHealthCheck_EndpointDown() {
	s.api.On("ListBuckets", mock.Anything).Return(nil, assert.AnError)

	status := s.client.HealthCheck(context.Background())
	assert.False(s.T(), status.Healthy)
	assert.NotEmpty(s.T(), status.Error)
	assert.Empty(s.T(), status.Buckets)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
