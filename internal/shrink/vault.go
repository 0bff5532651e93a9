package shrink

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/acm19/shrink/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Vault keeps a copy of an original before it is deleted from disk.
type Vault interface {
	// Store uploads the file at path. Storing an identical file twice is a no-op.
	Store(ctx context.Context, path string) error
}

// Vault drivers.
const (
	VaultNone  = "none"
	VaultS3    = "s3"
	VaultMinio = "minio"
)

// VaultOptions configures NewVault.
type VaultOptions struct {
	Driver    string
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Root is the library directory; object keys are relative to it.
	Root string
}

// NewVault builds the Vault selected by opts.Driver. It returns nil for the
// "none" driver.
func NewVault(ctx context.Context, opts VaultOptions) (Vault, error) {
	switch opts.Driver {
	case "", VaultNone:
		return nil, nil
	case VaultS3:
		return newS3Vault(ctx, opts)
	case VaultMinio:
		return newMinioVault(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown vault driver %q", opts.Driver)
	}
}

// objectKey maps a local path to a key under prefix, relative to root.
func objectKey(prefix, root, filePath string) string {
	rel := filepath.Base(filePath)
	if root != "" {
		if r, err := filepath.Rel(root, filePath); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return path.Join(prefix, filepath.ToSlash(rel))
}

// fileMD5 calculates the MD5 hash of a file.
func fileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// s3API is the subset of the S3 client used by s3Vault.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Vault implements Vault with the AWS SDK.
type s3Vault struct {
	client s3API
	bucket string
	prefix string
	root   string
}

func newS3Vault(ctx context.Context, opts VaultOptions) (Vault, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 vault requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Vault{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		root:   opts.Root,
	}, nil
}

// Store uploads filePath unless an object with the same hash already exists.
func (v *s3Vault) Store(ctx context.Context, filePath string) error {
	key := objectKey(v.prefix, v.root, filePath)

	localHash, err := fileMD5(filePath)
	if err != nil {
		return fmt.Errorf("failed to calculate MD5: %w", err)
	}

	head, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		remoteETag := strings.Trim(aws.ToString(head.ETag), `"`)
		if remoteETag == localHash {
			logger.Debug("Original already in vault", "key", key, "hash", localHash)
			return nil
		}
		return fmt.Errorf("hash mismatch for '%s': vault object exists with different content (local: %s, remote: %s)", key, localHash, remoteETag)
	} else if !isNotFoundError(err) {
		return fmt.Errorf("failed to check vault object: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logger.Info("Stored original in vault", "bucket", v.bucket, "key", key)
	return nil
}

// isNotFoundError checks if the error is a NotFound error
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NotFound" || code == "NoSuchKey" {
			return true
		}
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "StatusCode: 404")
}

// minioVault implements Vault with minio-go for self-hosted object stores.
type minioVault struct {
	client *minio.Client
	bucket string
	prefix string
	root   string
}

func newMinioVault(ctx context.Context, opts VaultOptions) (Vault, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio vault requires an endpoint")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio vault requires a bucket")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("minio vault requires an access key and secret key")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("Created vault bucket", "bucket", opts.Bucket)
	}

	return &minioVault{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		root:   opts.Root,
	}, nil
}

// Store uploads filePath unless an object with the same hash already exists.
func (v *minioVault) Store(ctx context.Context, filePath string) error {
	key := objectKey(v.prefix, v.root, filePath)

	localHash, err := fileMD5(filePath)
	if err != nil {
		return fmt.Errorf("failed to calculate MD5: %w", err)
	}

	info, err := v.client.StatObject(ctx, v.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		if info.ETag == localHash {
			logger.Debug("Original already in vault", "key", key, "hash", localHash)
			return nil
		}
		return fmt.Errorf("hash mismatch for '%s': vault object exists with different content (local: %s, remote: %s)", key, localHash, info.ETag)
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("failed to check vault object: %w", err)
	}

	mime, _ := DetectMime(filePath)
	if _, err := v.client.FPutObject(ctx, v.bucket, key, filePath, minio.PutObjectOptions{ContentType: mime}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logger.Info("Stored original in vault", "bucket", v.bucket, "key", key)
	return nil
}
