package s3

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	defaultRegion  = "us-east-1"
	requestTimeout = 30 * time.Second
)

// Object is one upload: a filed result or a published bundle file.
type Object struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	SHA256      string // hex
	ContentType string
	Metadata    map[string]string
}

// API is the object storage surface used by the result archive and bundle publishing.
type API interface {
	PutObject(ctx context.Context, obj Object) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

var _ API = (*Client)(nil)

// Config selects the S3 endpoint. An empty Endpoint means AWS itself; empty keys fall
// back to the SDK's default credential chain (profiles, instance roles).
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// ConfigFromEnv reads S3_ENDPOINT, S3_REGION, S3_ACCESS_KEY, S3_SECRET_KEY,
// S3_DISABLE_TLS and S3_FORCE_PATH_STYLE. A bare host:port endpoint gets https://
// unless S3_DISABLE_TLS is true. Path-style addressing defaults on when an endpoint is set,
// which is what MinIO and SeaweedFS expect.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return Config{}, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
	}

	disableTLS, err := envBool("S3_DISABLE_TLS", false)
	if err != nil {
		return Config{}, err
	}
	if cfg.ForcePathStyle, err = envBool("S3_FORCE_PATH_STYLE", cfg.Endpoint != ""); err != nil {
		return Config{}, err
	}

	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "://") {
		scheme := "https"
		if disableTLS {
			scheme = "http"
		}
		cfg.Endpoint = scheme + "://" + cfg.Endpoint
	}
	return cfg, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return parsed, nil
}

// Client wraps the AWS SDK v2 S3 client.
type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
}

// NewClientFromEnv builds a Client from ConfigFromEnv.
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, cfg)
}

// NewClient builds a Client for cfg.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Client{
		api:     client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// PutObject uploads obj. The SHA-256 is sent as the S3 checksum, so the store rejects a
// body that does not match it, and is kept in the object metadata.
func (c *Client) PutObject(ctx context.Context, obj Object) error {
	if c == nil {
		return errors.New("nil client")
	}
	input, err := putInput(obj)
	if err != nil {
		return err
	}
	_, err = c.api.PutObject(ctx, input)
	return err
}

func putInput(obj Object) (*s3.PutObjectInput, error) {
	if obj.Bucket == "" || obj.Key == "" {
		return nil, errors.New("bucket and key are required")
	}
	if obj.Body == nil {
		return nil, fmt.Errorf("%s: nil body", obj.Key)
	}
	checksum, err := encodeSHA256(obj.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", obj.Key, err)
	}

	metadata := map[string]string{"sha256": strings.ToLower(obj.SHA256)}
	for k, v := range obj.Metadata {
		metadata[strings.ToLower(k)] = v
	}

	input := &s3.PutObjectInput{
		Bucket:            aws.String(obj.Bucket),
		Key:               aws.String(obj.Key),
		Body:              obj.Body,
		ContentLength:     aws.Int64(obj.Size),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(checksum),
		Metadata:          metadata,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	return input, nil
}

// PresignGet returns a download link for bucket/key valid for ttl.
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("invalid ttl %s", ttl)
	}

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func encodeSHA256(hexDigest string) (string, error) {
	if hexDigest == "" {
		return "", errors.New("sha256 digest required")
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", fmt.Errorf("decode sha256: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("sha256 digest must be 32 bytes, got %d", len(raw))
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
