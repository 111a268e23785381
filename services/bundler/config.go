package bundler

import (
	"context"
	"io"
	"time"

	gos3 "bptools/pkg/s3"
)

// BuildConfig configures bundle creation.
type BuildConfig struct {
	SourceDir string
	Output    string
	Name      string
	Version   string
	Signer    *Signer
	Now       func() time.Time
	Stdout    io.Writer
}

// Uploader stores verified bundle files.
type Uploader interface {
	PutObject(ctx context.Context, obj gos3.Object) error
}

// PublishConfig configures bundle publication.
type PublishConfig struct {
	BundlePath string
	Bucket     string
	Prefix     string
	Uploader   Uploader
	Signer     *Signer
	Stdout     io.Writer
}
