package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "u1/r1/github.png", IconKey("u1", "r1", "github.png"))
	require.Equal(t, "u1/r1/thumbnail.png", ThumbnailKey("u1", "r1"))
	require.Equal(t, "u1/r1/", ResumePrefix("u1", "r1"))
}

func TestIsNoSuchKey(t *testing.T) {
	wrapped := fmt.Errorf("get object: %w", minio.ErrorResponse{Code: "NoSuchKey"})
	require.True(t, IsNoSuchKey(wrapped))
	require.True(t, IsNoSuchKey(errors.New("The specified key does not exist.")))
	require.False(t, IsNoSuchKey(errors.New("connection reset by peer")))
	require.False(t, IsNoSuchKey(nil))
}

func TestIsNoSuchBucket(t *testing.T) {
	require.True(t, IsNoSuchBucket(minio.ErrorResponse{Code: "NoSuchBucket"}))
	require.True(t, IsNoSuchBucket(errors.New("The specified bucket does not exist")))
	require.False(t, IsNoSuchBucket(minio.ErrorResponse{Code: "NoSuchKey"}))
	require.False(t, IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchBucket", Message: "bucket not found"}))
}

func TestWrapErr(t *testing.T) {
	err := wrapErr("get object", "resume-icons", "a/b/go.png", minio.ErrorResponse{Code: "NoSuchBucket"})
	require.ErrorIs(t, err, ErrBucketMissing)
	require.NotErrorIs(t, err, ErrObjectNotFound)
	require.Contains(t, err.Error(), "resume-icons/a/b/go.png")

	err = wrapErr("get object", "resume-icons", "a/b/go.png", minio.ErrorResponse{Code: "NoSuchKey"})
	require.ErrorIs(t, err, ErrObjectNotFound)

	cause := errors.New("connection reset by peer")
	err = wrapErr("put object", "resume-icons", "k", cause)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrBucketMissing)
}
