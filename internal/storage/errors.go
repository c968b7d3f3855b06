package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ErrBucketMissing 表示桶不存在，属于部署配置问题，重试无意义。
var ErrBucketMissing = errors.New("bucket missing")

func s3Code(err error) string {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return strings.ToLower(strings.TrimSpace(minioErr.Code))
	}
	return ""
}

// IsNoSuchKey 判断错误是否表示对象不存在（NoSuchKey/NotFound）。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	switch s3Code(err) {
	case "nosuchkey", "notfound":
		return true
	case "nosuchbucket":
		return false
	}
	// 网关可能只留下错误文本。
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchkey") ||
		strings.Contains(lower, "specified key does not exist") ||
		strings.Contains(lower, "not found")
}

// IsNoSuchBucket 判断错误是否表示桶不存在。
func IsNoSuchBucket(err error) bool {
	if err == nil {
		return false
	}
	if s3Code(err) == "nosuchbucket" {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "nosuchbucket") ||
		strings.Contains(lower, "specified bucket does not exist")
}

// wrapErr 给对象操作的错误加上上下文，并把桶缺失与对象缺失映射为哨兵错误。
func wrapErr(op, bucket, key string, err error) error {
	switch {
	case IsNoSuchBucket(err):
		return fmt.Errorf("%s %s/%s: %w", op, bucket, key, ErrBucketMissing)
	case IsNoSuchKey(err):
		return fmt.Errorf("%s %s/%s: %w", op, bucket, key, ErrObjectNotFound)
	default:
		return fmt.Errorf("%s %s/%s: %w", op, bucket, key, err)
	}
}
