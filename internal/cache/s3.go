package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	storedAtMetaKey  = "stored_at"
	expiresAtMetaKey = "expires_at"
)

// S3Store keeps one object per entry at <category>/<key>, with the
// timestamps in object metadata.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Store(bucket string, client *s3.Client) *S3Store {
	return &S3Store{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func objectKey(key string, category Category) string {
	return string(category) + "/" + key
}

func (s *S3Store) Get(ctx context.Context, key string, category Category) (Entry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key, category)),
	})
	if err != nil {
		if isNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Key:       key,
		Category:  category,
		Payload:   body,
		StoredAt:  parseMetaTime(out.Metadata, storedAtMetaKey),
		ExpiresAt: parseMetaTime(out.Metadata, expiresAtMetaKey),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, entry Entry) error {
	meta := map[string]string{
		storedAtMetaKey:  strconv.FormatInt(entry.StoredAt.UnixNano(), 10),
		expiresAtMetaKey: strconv.FormatInt(entry.ExpiresAt.UnixNano(), 10),
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(entry.Key, entry.Category)),
		Body:        bytes.NewReader(entry.Payload),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    meta,
	}

	_, err := s.uploader.Upload(ctx, input)
	return err
}

func (s *S3Store) Delete(ctx context.Context, key string, category Category) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key, category)),
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

// parseMetaTime returns the zero time when the value is missing, which
// Entry.Expired treats as already expired.
func parseMetaTime(meta map[string]string, name string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	val, ok := meta[name]
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
