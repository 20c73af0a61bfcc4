package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fitcheckr/fitcheckr/models"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3ObjectStore stores named objects in a single bucket.
type S3ObjectStore struct {
	client  s3API
	bucket  string
	baseURL string
}

// InitS3 initializes the S3 client from the default AWS credential chain
func InitS3(ctx context.Context, region, bucket string) (*S3ObjectStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return newS3ObjectStore(s3.NewFromConfig(cfg), region, bucket), nil
}

func newS3ObjectStore(client s3API, region, bucket string) *S3ObjectStore {
	return &S3ObjectStore{
		client:  client,
		bucket:  bucket,
		baseURL: fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", bucket, region),
	}
}

// Put uploads content under name and returns the stored object.
func (s *S3ObjectStore) Put(ctx context.Context, name string, content []byte, contentType string) (models.StoredObject, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return models.StoredObject{}, fmt.Errorf("failed to upload file to S3: %w", err)
	}

	return models.StoredObject{
		Key:          name,
		URL:          s.baseURL + name,
		Size:         int64(len(content)),
		LastModified: time.Now().UTC(),
	}, nil
}

// List returns every object whose key starts with prefix.
func (s *S3ObjectStore) List(ctx context.Context, prefix string) ([]models.StoredObject, error) {
	var objects []models.StoredObject
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects = append(objects, models.StoredObject{
				Key:          key,
				URL:          s.baseURL + key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// Get reads the object stored under key or a URL returned by Put/List.
func (s *S3ObjectStore) Get(ctx context.Context, keyOrURL string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyOf(keyOrURL)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Delete removes the object stored under key or a URL returned by Put/List.
func (s *S3ObjectStore) Delete(ctx context.Context, keyOrURL string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyOf(keyOrURL)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return nil
}

func (s *S3ObjectStore) keyOf(keyOrURL string) string {
	return strings.TrimPrefix(keyOrURL, s.baseURL)
}
