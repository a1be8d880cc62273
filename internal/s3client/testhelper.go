package s3client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewInMemory starts a gofakes3 server with an empty bucket and returns a
// client for it. Call the returned func to stop the server. The server's
// contents are lost on shutdown.
func NewInMemory(ctx context.Context, bucketName string) (*Client, func(), error) {
	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())

	client, err := New(ctx, Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "fake-key",
		SecretAccessKey: "fake-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		ts.Close()
		return nil, nil, err
	}

	if _, err := client.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		ts.Close()
		return nil, nil, fmt.Errorf("create bucket %q: %w", bucketName, err)
	}
	return client, ts.Close, nil
}

// TestClient is NewInMemory for tests; the server stops at cleanup.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()
	client, stop, err := NewInMemory(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start fake S3: %v", err)
	}
	t.Cleanup(stop)
	return client
}
