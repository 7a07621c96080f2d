// Package storage implements the Blob Interface: put/get/presign/delete
// against an S3-compatible endpoint, with upload validation (size, magic
// number, MIME, extension) happening before any bytes reach the backend.
// Trimmed from the teacher's multi-cloud (LakeFS/MinIO/Hetzner/S3) grab-bag
// down to the one S3-compatible client this engine needs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/filotkyc/engine/kycerr"
)

// MaxUploadBytes is the hard cap on document uploads (§4.2).
const MaxUploadBytes = 5 * 1024 * 1024

// sharedHTTPClient pools connections across all blob operations, same
// rationale as the teacher's shared client for bulk storage operations.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Blob is the S3-compatible Blob Interface.
type Blob struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	bucket     string
	presignTTL time.Duration
}

// Config configures the blob backend connection.
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	PresignTTL time.Duration
	UseSSL     bool
}

// New builds a Blob client against an S3-compatible endpoint (AWS S3,
// MinIO, or similar), grounded on the teacher's MinIO/Hetzner client-setup
// pattern generalized to one config struct.
func New(ctx context.Context, cfg Config) (*Blob, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = sharedHTTPClient
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Blob{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		presignTTL: ttl,
	}, nil
}

// Ping verifies the configured bucket is reachable, used by the health
// endpoint.
func (b *Blob) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return fmt.Errorf("storage: head bucket: %w", err)
	}
	return nil
}

// Put validates and uploads bytes under key. Validation (size, magic
// number, MIME, extension) happens before any network call, per §4.2.
func (b *Blob) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ValidateUpload(key, data, contentType); err != nil {
		return err
	}

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return kycerr.Wrap(kycerr.Transient, "BLOB_PUT_FAILED", "failed to store blob", err)
	}
	return nil
}

// Get downloads the full object at key.
func (b *Blob) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, kycerr.New(kycerr.TerminalInfra, "BLOB_NOT_FOUND", fmt.Sprintf("key %s not found", key))
		}
		return nil, kycerr.Wrap(kycerr.Transient, "BLOB_GET_FAILED", "failed to fetch blob", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, kycerr.Wrap(kycerr.Transient, "BLOB_READ_FAILED", "failed to read blob body", err)
	}
	return buf.Bytes(), nil
}

// Delete removes the object at key. Deleting an absent key is not an error.
func (b *Blob) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return kycerr.Wrap(kycerr.Transient, "BLOB_DELETE_FAILED", "failed to delete blob", err)
	}
	return nil
}

// Presign issues a time-limited, signature-bearing download URL. Blob keys
// are never public; every client read goes through a URL minted here.
func (b *Blob) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = b.presignTTL
	}
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", kycerr.Wrap(kycerr.Internal, "BLOB_PRESIGN_FAILED", "failed to presign url", err)
	}
	return req.URL, nil
}

// ExtractKeyFromURL recovers the object key from a presigned or legacy
// direct URL, used when migrating stored references that predate
// presigning.
func ExtractKeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("storage: parse url: %w", err)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}
