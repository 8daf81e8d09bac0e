package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/idilsaglam/recipebox/internal/model"
)

// S3Config points at an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// objectAPI is the slice of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store stores each document as <prefix>/<collection>/<id>.json.
type S3Store struct {
	api    objectAPI
	bucket string
	prefix string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("missing S3 credentials (set RECIPEBOX_S3_ACCESS_KEY and RECIPEBOX_S3_SECRET_KEY)")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "auto"
	}
	awsCfg := aws.Config{
		Region: region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(api objectAPI, bucket, prefix string) *S3Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "recipebox"
	}
	return &S3Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3Store) collectionPrefix(kind model.Kind) string {
	return path.Join(s.prefix, kind.Collection()) + "/"
}

func (s *S3Store) key(kind model.Kind, id string) string {
	return s.collectionPrefix(kind) + id + ".json"
}

func (s *S3Store) Create(ctx context.Context, kind model.Kind, data model.Data) (string, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.putJSON(ctx, s.key(kind, id), data); err != nil {
		return "", fmt.Errorf("create %s: %w", kind.Collection(), err)
	}
	return id, nil
}

func (s *S3Store) Get(ctx context.Context, kind model.Kind, id string) (model.Item, error) {
	if err := checkKind(kind); err != nil {
		return model.Item{}, err
	}
	var data model.Data
	if err := s.getJSON(ctx, s.key(kind, id), &data); err != nil {
		if isNotFound(err) {
			return model.Item{}, notFound(kind, id)
		}
		return model.Item{}, err
	}
	return model.Item{Kind: kind, ID: id, Data: data}, nil
}

func (s *S3Store) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	prefix := s.collectionPrefix(kind)
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []model.Item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind.Collection(), err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".json") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ".json")
			if id == "" || strings.Contains(id, "/") {
				continue
			}
			var data model.Data
			if err := s.getJSON(ctx, *obj.Key, &data); err != nil {
				// Deleted between listing and reading.
				if isNotFound(err) {
					continue
				}
				return nil, err
			}
			out = append(out, model.Item{Kind: kind, ID: id, Data: data})
		}
	}
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	key := s.key(kind, id)
	// DeleteObject succeeds for missing keys, so check first.
	if _, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return notFound(kind, id)
		}
		return err
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Store) getJSON(ctx context.Context, key string, dst any) error {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := strings.TrimSpace(apiErr.ErrorCode())
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
