//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("ASKDB_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("ASKDB_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, config.ObjectStoreConfig{
		Endpoint:         endpoint,
		Region:           envOr("ASKDB_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("ASKDB_TEST_S3_BUCKET", "askdb-it"),
		AccessKeyID:      envOr("ASKDB_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("ASKDB_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "sessions/date=2026-01-01/roundtrip-" + time.Now().UTC().Format("150405.000000000") + ".parquet"
	payload := []byte("askdb-integration")
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	objects, err := store.List(ctx, "sessions/date=2026-01-01")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, obj := range objects {
		if obj.Key == key {
			found = obj.Size == int64(len(payload))
		}
	}
	if !found {
		t.Fatalf("List() = %#v, want %q", objects, key)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", readPayload, payload)
	}

	if _, err := store.Get(ctx, "sessions/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
