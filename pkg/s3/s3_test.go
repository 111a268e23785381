package s3

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestEncodeSHA256(t *testing.T) {
	got, err := encodeSHA256(emptySHA256)
	require.NoError(t, err)
	assert.Equal(t, "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", got)

	for _, bad := range []string{"", "zz", "abcd"} {
		_, err := encodeSHA256(bad)
		assert.Error(t, err, bad)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_DISABLE_TLS", "S3_FORCE_PATH_STYLE"} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    Config
		wantErr bool
	}{
		{
			name: "aws defaults",
			want: Config{Region: "us-east-1"},
		},
		{
			name: "minio over http",
			env: map[string]string{
				"S3_ENDPOINT":    "localhost:9000",
				"S3_DISABLE_TLS": "true",
				"S3_ACCESS_KEY":  "a",
				"S3_SECRET_KEY":  "b",
			},
			want: Config{Endpoint: "http://localhost:9000", Region: "us-east-1", AccessKey: "a", SecretKey: "b", ForcePathStyle: true},
		},
		{
			name: "explicit scheme and virtual hosts",
			env: map[string]string{
				"S3_ENDPOINT":         "https://s3.example.org",
				"S3_REGION":           "eu-west-3",
				"S3_FORCE_PATH_STYLE": "false",
			},
			want: Config{Endpoint: "https://s3.example.org", Region: "eu-west-3"},
		},
		{
			name:    "half credentials",
			env:     map[string]string{"S3_ACCESS_KEY": "a"},
			wantErr: true,
		},
		{
			name:    "bad bool",
			env:     map[string]string{"S3_DISABLE_TLS": "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := ConfigFromEnv()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPutInput(t *testing.T) {
	input, err := putInput(Object{
		Bucket:      "results",
		Key:         "Epee-M/a.cotcot",
		Body:        strings.NewReader(""),
		SHA256:      strings.ToUpper(emptySHA256),
		ContentType: "application/xml",
		Metadata:    map[string]string{"Folder": "Epee-M"},
	})
	require.NoError(t, err)
	assert.Equal(t, "results", *input.Bucket)
	assert.Equal(t, "application/xml", *input.ContentType)
	assert.Equal(t, "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=", *input.ChecksumSHA256)
	assert.Equal(t, map[string]string{"sha256": emptySHA256, "folder": "Epee-M"}, input.Metadata)

	_, err = putInput(Object{Bucket: "results", Key: "x", SHA256: emptySHA256})
	assert.Error(t, err)
	_, err = putInput(Object{Key: "x", Body: strings.NewReader(""), SHA256: emptySHA256})
	assert.Error(t, err)
}

func TestPresignGet(t *testing.T) {
	client, err := NewClient(context.Background(), Config{
		Endpoint: "http://localhost:9000", Region: "us-east-1", AccessKey: "a", SecretKey: "b", ForcePathStyle: true,
	})
	require.NoError(t, err)

	link, err := client.PresignGet(context.Background(), "results", "Epee-M/a.cotcot", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:9000/results/Epee-M/a.cotcot?"), link)
	assert.Contains(t, link, "X-Amz-Expires=300")

	_, err = client.PresignGet(context.Background(), "results", "k", 0)
	assert.Error(t, err)
}
