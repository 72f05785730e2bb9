package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// S3Backend persists document records in Amazon S3 or a compatible service.
// Records are JSON envelopes keyed by certificate ID under the configured
// prefix.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates an S3 document backend. Credentials are optional for
// buckets that allow anonymous access; writes will generally require them.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		log.Warn("No S3 credentials provided - document writes may fail unless bucket is public writable")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.TrimSuffix(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Store uploads the record envelope, replacing any prior object for the same
// certificate ID.
func (b *S3Backend) Store(ctx context.Context, record interfaces.DocumentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode document record: %w", err)
	}

	key := b.getObjectKey(record.TokenID)
	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store document in S3: %w", err)
	}

	b.log.Debug("Stored document in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)))
	return nil
}

// Fetch retrieves the record for id. Returns ErrRecordNotFound if the object
// doesn't exist.
func (b *S3Backend) Fetch(ctx context.Context, id interfaces.TokenID) (interfaces.DocumentRecord, error) {
	key := b.getObjectKey(id)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return interfaces.DocumentRecord{}, interfaces.ErrRecordNotFound
		}
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to fetch document from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	var record interfaces.DocumentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.DocumentRecord{}, fmt.Errorf("failed to decode document record: %w", err)
	}
	return record, nil
}

// Delete removes the object for id.
func (b *S3Backend) Delete(ctx context.Context, id interfaces.TokenID) error {
	key := b.getObjectKey(id)

	if _, err := b.Fetch(ctx, id); err != nil {
		return err
	}

	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document from S3: %w", err)
	}
	return nil
}

// List returns the certificate IDs with a stored document under the prefix.
func (b *S3Backend) List(ctx context.Context) ([]interfaces.TokenID, error) {
	listPrefix := path.Join(b.prefix, "documents") + "/"

	var ids []interfaces.TokenID
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(listPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), listPrefix)
			name = strings.TrimSuffix(name, ".json")
			id, err := interfaces.NewTokenIDFromString(name)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in S3: %w", err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Available checks bucket accessibility with a HEAD request.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Debug("S3 backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) getObjectKey(id interfaces.TokenID) string {
	return path.Join(b.prefix, "documents", id.String()+".json")
}
