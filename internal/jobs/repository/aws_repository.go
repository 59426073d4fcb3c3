package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the artifact store uses.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type awsArtifacts struct {
	client     S3API
	bucket     string
	prefix     string
	stagingDir string
}

// NewAwsArtifacts stages outputs in stagingDir and uploads them to
// bucket/prefix on publish.
func NewAwsArtifacts(client S3API, bucket, prefix, stagingDir string) jobs.ArtifactRepository {
	return &awsArtifacts{client: client, bucket: bucket, prefix: prefix, stagingDir: stagingDir}
}

func (a *awsArtifacts) key(name string) string {
	return path.Join(a.prefix, filepath.ToSlash(name))
}

func (a *awsArtifacts) LocalPath(name string) string {
	return filepath.Join(a.stagingDir, filepath.FromSlash(name))
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (a *awsArtifacts) Exists(ctx context.Context, name string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(name)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

func (a *awsArtifacts) Publish(ctx context.Context, name string) (string, error) {
	local := a.LocalPath(name)
	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key(name)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	f.Close()
	_ = os.Remove(local)
	return name, nil
}

func (a *awsArtifacts) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, err := cleanRef(ref)
	if err != nil {
		return nil, 0, jobs.ErrArtifactNotFound
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(clean)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, jobs.ErrArtifactNotFound
		}
		return nil, 0, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}
