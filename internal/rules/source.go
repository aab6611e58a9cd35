package rules

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Document is a raw catalog plus an opaque revision used to skip reparsing
// unchanged content.
type Document struct {
	Data     []byte
	Revision string
}

// Source supplies catalog documents.
type Source interface {
	Read(ctx context.Context) (Document, error)
}

//go:embed default_rules.yaml
var defaultCatalog []byte

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Read(context.Context) (Document, error) {
	return Document{Data: defaultCatalog, Revision: "embedded"}, nil
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	cat, err := ParseCatalog(defaultCatalog)
	if err != nil {
		return nil, err
	}
	cat.Revision = "embedded"
	return cat, nil
}

// FileSource reads a catalog from the local filesystem. The revision is the
// file's modification time.
type FileSource struct {
	Path string
}

func (f FileSource) Read(context.Context) (Document, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return Document{}, fmt.Errorf("rules: stat %s: %w", f.Path, err)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Document{}, fmt.Errorf("rules: read %s: %w", f.Path, err)
	}
	return Document{Data: data, Revision: info.ModTime().UTC().Format(time.RFC3339Nano)}, nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a catalog object. The revision is the object version id,
// or the ETag on unversioned buckets.
type S3Source struct {
	Client S3API
	Bucket string
	Key    string
}

func (s S3Source) Read(ctx context.Context) (Document, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return Document{}, fmt.Errorf("rules: s3 get %s/%s: %w", s.Bucket, s.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Document{}, fmt.Errorf("rules: s3 read %s/%s: %w", s.Bucket, s.Key, err)
	}
	revision := aws.ToString(out.VersionId)
	if revision == "" {
		revision = aws.ToString(out.ETag)
	}
	return Document{Data: data, Revision: revision}, nil
}
