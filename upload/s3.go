// Package upload ships support bundles (plan archives, solver debug data)
// to S3 for offline analysis.
package upload

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ascent-project/ascent/iox"
)

// s3API is the slice of the S3 client the uploader uses; fakes implement
// it in tests.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ParsePath splits "bucket/prefix" (or a bare "bucket") into its parts.
func ParsePath(p string) (bucket, prefix string) {
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// Uploader ships local files into an S3 bucket under a fixed prefix.
type Uploader struct {
	api    s3API
	bucket string
	prefix string
}

// New builds an uploader for the "bucket/prefix" destination path, using
// the AWS SDK default credential chain.
func New(ctx context.Context, destPath, region string) (*Uploader, error) {
	bucket, prefix := ParsePath(destPath)
	if bucket == "" {
		return nil, fmt.Errorf("upload destination %q has no bucket", destPath)
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Uploader{
		api:    s3.NewFromConfig(awsConfig),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// UploadFile puts a single local file at key (relative to the prefix).
func (u *Uploader) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	defer iox.DiscardClose(f)

	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(path.Join(u.prefix, key)),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	return nil
}

// UploadTree puts every regular file under root, preserving the relative
// layout below keyPrefix. The first failure aborts the walk.
func (u *Uploader) UploadTree(ctx context.Context, root, keyPrefix string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return u.UploadFile(ctx, p, path.Join(keyPrefix, filepath.ToSlash(rel)))
	})
}
