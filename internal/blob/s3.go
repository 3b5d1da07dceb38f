package blob

import (
	"context"

	infraS3 "campreg/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// S3MockTransport is the fake S3 endpoint used by tests for fault injection.
type S3MockTransport = infraS3.MockTransport

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 fake and its transport for
// cross-package tests.
func NewMockS3ForTests() (Store, *S3MockTransport) {
	return infraS3.NewMock()
}
