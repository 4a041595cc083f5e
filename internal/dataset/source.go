package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection details for datasets stored in an S3-compatible
// object store.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// Open loads a dataset from uri. Plain paths are read from the local
// filesystem, "s3://bucket/key" URIs through an S3 client built from cfg.
func Open(ctx context.Context, uri string, cfg S3Config) (*Dataset, error) {
	bucket, key, ok := splitS3URI(uri)
	if !ok {
		return Load(uri)
	}
	if cfg.Endpoint == "" {
		return nil, &LoadError{Source: uri, Reason: "s3 endpoint not configured"}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &LoadError{Source: uri, Reason: "s3 client", cause: err}
	}
	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &LoadError{Source: uri, Reason: "s3 get object", cause: err}
	}
	defer obj.Close()
	return Parse(uri, obj)
}

func splitS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// IsRemote reports whether uri points to an object store.
func IsRemote(uri string) bool {
	_, _, ok := splitS3URI(uri)
	return ok
}

// Loader produces a fresh dataset snapshot.
type Loader func(ctx context.Context) (*Dataset, error)

// SourceLoader returns a Loader reading uri with Open.
func SourceLoader(uri string, cfg S3Config) Loader {
	return func(ctx context.Context) (*Dataset, error) {
		ds, err := Open(ctx, uri, cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", uri, err)
		}
		return ds, nil
	}
}
