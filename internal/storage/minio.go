package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resumeforge/internal/config"
)

// ThumbnailCacheControl 缩略图对象使用一年的不可变缓存，靠 URL 参数做版本失效。
const ThumbnailCacheControl = "public, max-age=31536000, immutable"

// Client 封装 MinIO 客户端，管理图标与缩略图两个桶。
type Client struct {
	internalClient  *minio.Client
	publicBase      *url.URL
	iconBucket      string
	thumbnailBucket string
}

// ObjectMeta 描述 Bucket 中对象的关键信息。
type ObjectMeta struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// NewClient 根据配置初始化 MinIO 客户端，并确保两个 Bucket 存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	bucketLookup := minio.BucketLookupAuto
	switch strings.ToLower(strings.TrimSpace(cfg.BucketLookup)) {
	case "", "auto":
		bucketLookup = minio.BucketLookupAuto
	case "dns":
		bucketLookup = minio.BucketLookupDNS
	case "path":
		bucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf("invalid minio bucket lookup %q", cfg.BucketLookup)
	}

	internalClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	publicBase, err := url.Parse(strings.TrimRight(cfg.PublicEndpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if publicBase.Host == "" {
		return nil, fmt.Errorf("invalid minio public endpoint, host missing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, bucket := range []string{cfg.IconBucket, cfg.ThumbnailBucket} {
		if err := ensureBucket(ctx, internalClient, bucket, cfg); err != nil {
			return nil, err
		}
	}

	return &Client{
		internalClient:  internalClient,
		publicBase:      publicBase,
		iconBucket:      cfg.IconBucket,
		thumbnailBucket: cfg.ThumbnailBucket,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, cfg config.MinIOConfig) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if !cfg.AutoCreateBucket {
		return fmt.Errorf("bucket %q (auto create disabled): %w", bucket, ErrBucketMissing)
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", bucket, err)
	}
	// 图标与缩略图通过公开 URL 访问，新建的桶设为匿名只读。
	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return fmt.Errorf("set public read policy on %q: %w", bucket, err)
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

// IconBucket 返回图标桶名。
func (c *Client) IconBucket() string { return c.iconBucket }

// ThumbnailBucket 返回缩略图桶名。
func (c *Client) ThumbnailBucket() string { return c.thumbnailBucket }

// PutObject 以覆盖语义写入对象。cacheControl 为空时不设置。
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error {
	opts := minio.PutObjectOptions{ContentType: contentType, CacheControl: cacheControl}
	if _, err := c.internalClient.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return wrapErr("put object", bucket, key, err)
	}
	return nil
}

// GetObject 读取对象全部字节，对象不存在时返回 ErrObjectNotFound。
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.internalClient.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapErr("get object", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapErr("get object", bucket, key, err)
	}
	return data, nil
}

// CopyObject 在同一个桶内复制对象。
func (c *Client) CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error {
	dst := minio.CopyDestOptions{Bucket: bucket, Object: dstKey}
	src := minio.CopySrcOptions{Bucket: bucket, Object: srcKey}
	if _, err := c.internalClient.CopyObject(ctx, dst, src); err != nil {
		return wrapErr("copy object", bucket, srcKey, err)
	}
	return nil
}

// PublicURL 返回可直接访问的对象地址（path-style）。
func (c *Client) PublicURL(bucket, key string) string {
	u := *c.publicBase
	u.Path = strings.TrimRight(u.Path, "/") + "/" + bucket + "/" + key
	return u.String()
}

// ListObjects 列出指定前缀下的对象元数据。
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]ObjectMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	objCh := c.internalClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	result := make([]ObjectMeta, 0, limit)
	for object := range objCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, object.Err)
		}
		result = append(result, ObjectMeta{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// DeleteObject 删除指定对象。
// 若对象不存在会被视为成功（幂等）。
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := c.internalClient.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if IsNoSuchKey(err) {
			return nil
		}
		return wrapErr("remove object", bucket, key, err)
	}
	return nil
}

// DeletePrefix 删除指定前缀下的所有对象。
// 若某些对象已不存在会被忽略；其余错误会聚合返回。
func (c *Client) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}

	objCh := c.internalClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	keys := make([]string, 0, 32)
	for object := range objCh {
		if object.Err != nil {
			return fmt.Errorf("list objects under %q: %w", prefix, object.Err)
		}
		if strings.TrimSpace(object.Key) != "" {
			keys = append(keys, object.Key)
		}
	}

	errs := make([]error, 0)
	for _, key := range keys {
		if err := c.DeleteObject(ctx, bucket, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	slog.Default().Error("delete minio objects under prefix failed",
		slog.String("bucket", bucket),
		slog.String("prefix", prefix),
		slog.Int("failed_count", len(errs)),
	)
	return fmt.Errorf("delete objects under %q: %d errors", prefix, len(errs))
}
