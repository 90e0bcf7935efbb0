package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fade-go/internal/config"
	"fade-go/internal/fade"
)

// S3API is the subset of the S3 client used by S3Remote.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Remote stores records and blobs in an S3 bucket:
//
//	<prefix>/<owner>/entries/<id>.json
//	<prefix>/<owner>/blobs/<name>
type S3Remote struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

// NewS3Remote creates an S3 remote from config. A custom endpoint (for MinIO or
// another S3-compatible store) and static credentials are optional.
func NewS3Remote(ctx context.Context, cfg config.RemoteConfig) (*S3Remote, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3RemoteWithClient(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

// NewS3RemoteWithClient creates an S3 remote around an existing client.
func NewS3RemoteWithClient(name, bucket, prefix string, client S3API) *S3Remote {
	return &S3Remote{
		name:     name,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3Remote) ownerPrefix(owner string) string {
	return path.Join(s.prefix, owner) + "/"
}

func (s *S3Remote) entryKey(owner, id string) string {
	return s.ownerPrefix(owner) + "entries/" + id + ".json"
}

func (s *S3Remote) blobKey(owner, name string) string {
	return s.ownerPrefix(owner) + "blobs/" + name
}

func (s *S3Remote) PutEntry(ctx context.Context, owner string, entry *fade.RemoteEntry) error {
	if err := validSegments("owner", owner, "entry id", entry.ID); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.entryKey(owner, entry.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *S3Remote) ListEntries(ctx context.Context, owner string) ([]*fade.RemoteEntry, error) {
	if err := validSegment("owner", owner); err != nil {
		return nil, err
	}
	prefix := s.ownerPrefix(owner) + "entries/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var out []*fade.RemoteEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing entries: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			entry, err := s.getEntry(ctx, key)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				out = append(out, entry)
			}
		}
	}
	slices.SortFunc(out, func(a, b *fade.RemoteEntry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// getEntry returns nil when the object disappeared between list and get.
func (s *S3Remote) getEntry(ctx context.Context, key string) (*fade.RemoteEntry, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer obj.Body.Close()

	var e fade.RemoteEntry
	if err := json.NewDecoder(obj.Body).Decode(&e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &e, nil
}

func (s *S3Remote) DeleteEntry(ctx context.Context, owner, id string) error {
	if err := validSegments("owner", owner, "entry id", id); err != nil {
		return err
	}
	return s.deleteObject(ctx, s.entryKey(owner, id))
}

func (s *S3Remote) HasBlob(ctx context.Context, owner, name string) (bool, error) {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(owner, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking blob %s: %w", name, err)
	}
	return true, nil
}

func (s *S3Remote) PutBlob(ctx context.Context, owner, name string, r io.Reader, size int64) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	counter := &countingReader{r: r}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(owner, name)),
		Body:   counter,
	})
	if err != nil {
		return fmt.Errorf("uploading blob %s: %w", name, err)
	}
	if counter.n != size {
		return fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", fade.ErrValidationFailed, size, counter.n)
	}
	return nil
}

func (s *S3Remote) GetBlob(ctx context.Context, owner, name string, w io.Writer) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(owner, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: blob %s", fade.ErrNotFound, name)
		}
		return fmt.Errorf("fetching blob %s: %w", name, err)
	}
	defer obj.Body.Close()

	if _, err := io.Copy(w, obj.Body); err != nil {
		return fmt.Errorf("reading blob %s: %w", name, err)
	}
	return nil
}

func (s *S3Remote) DeleteBlob(ctx context.Context, owner, name string) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	return s.deleteObject(ctx, s.blobKey(owner, name))
}

// ValidateSetup checks that the bucket exists and is reachable with the configured credentials.
func (s *S3Remote) ValidateSetup(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// deleteObject removes key. S3 treats deleting a missing key as success.
func (s *S3Remote) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Remote implements fade.Remote interface
var _ fade.Remote = (*S3Remote)(nil)
