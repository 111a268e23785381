package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	gos3 "bptools/pkg/s3"
	"bptools/services/ftpd/internal/ingest"
)

// contentType is what BellePoule result files are served as.
const contentType = "application/xml"

// Archive mirrors filed artifacts into an S3 bucket under <folder>/<file>.
type Archive struct {
	bucket string
	client gos3.API
}

// New configures an Archive for bucket.
func New(bucket string, client gos3.API) (*Archive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	return &Archive{bucket: bucket, client: client}, nil
}

// Key returns the object key used for an outcome.
func Key(outcome ingest.Outcome) string {
	return path.Join(outcome.Folder, outcome.File)
}

// Notify uploads filed artifacts; discarded ones are ignored.
func (a *Archive) Notify(ctx context.Context, outcome ingest.Outcome) error {
	if outcome.Action != ingest.ActionFiled {
		return nil
	}
	file, err := os.Open(outcome.Destination)
	if err != nil {
		return fmt.Errorf("open %s: %w", outcome.Destination, err)
	}
	defer file.Close()

	key := Key(outcome)
	err = a.client.PutObject(ctx, gos3.Object{
		Bucket:      a.bucket,
		Key:         key,
		Body:        file,
		Size:        outcome.Size,
		SHA256:      outcome.SHA256,
		ContentType: contentType,
		Metadata: map[string]string{
			"folder":     outcome.Folder,
			"attributes": strings.Join(outcome.Attributes, ","),
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a temporary download link for an archived key.
func (a *Archive) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return a.client.PresignGet(ctx, a.bucket, strings.TrimPrefix(key, "/"), ttl)
}
