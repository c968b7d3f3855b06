package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resumeforge/internal/render"
	"resumeforge/internal/storage"
)

type fakeRaster struct {
	img image.Image
	err error
}

func (f fakeRaster) Rasterize(context.Context, string) (image.Image, error) { return f.img, f.err }

type fakeUploader struct {
	key          string
	contentType  string
	cacheControl string
	data         []byte
	err          error
}

func (f *fakeUploader) ThumbnailBucket() string { return "resume-thumbnails" }

func (f *fakeUploader) PutObject(_ context.Context, _, key string, data []byte, contentType, cacheControl string) error {
	if f.err != nil {
		return f.err
	}
	f.key, f.data, f.contentType, f.cacheControl = key, data, contentType, cacheControl
	return nil
}

func (f *fakeUploader) PublicURL(bucket, key string) string {
	return "https://objects.example/" + bucket + "/" + key
}

func page(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func TestResize_PreservesAspect(t *testing.T) {
	out := Resize(page(1240, 1754), Width)
	require.Equal(t, 400, out.Bounds().Dx())
	require.Equal(t, 565, out.Bounds().Dy())
}

func TestDerive(t *testing.T) {
	up := &fakeUploader{}
	d := NewDeriver(fakeRaster{img: page(800, 1131)}, up, nil)
	d.now = func() time.Time { return time.UnixMilli(1700000000123) }

	url, err := d.Derive(context.Background(), "/tmp/x.pdf", "alice", "r1")
	require.NoError(t, err)
	require.Equal(t, "https://objects.example/resume-thumbnails/alice/r1/thumbnail.png?v=1700000000123", url)
	require.Equal(t, "alice/r1/thumbnail.png", up.key)
	require.Equal(t, "image/png", up.contentType)
	require.Equal(t, "public, max-age=31536000, immutable", up.cacheControl)

	img, err := png.Decode(bytes.NewReader(up.data))
	require.NoError(t, err)
	require.Equal(t, 400, img.Bounds().Dx())
}

func TestDerive_SameKeyDifferentVersion(t *testing.T) {
	up := &fakeUploader{}
	d := NewDeriver(fakeRaster{img: page(100, 141)}, up, nil)
	tick := int64(1000)
	d.now = func() time.Time { tick++; return time.UnixMilli(tick) }

	first, err := d.Derive(context.Background(), "x.pdf", "alice", "r1")
	require.NoError(t, err)
	second, err := d.Derive(context.Background(), "x.pdf", "alice", "r1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, strings.Split(first, "?")[0], strings.Split(second, "?")[0])
}

func TestDerive_UploadFailureIsStorage(t *testing.T) {
	up := &fakeUploader{err: errors.New("i/o timeout")}
	d := NewDeriver(fakeRaster{img: page(10, 14)}, up, nil)
	_, err := d.Derive(context.Background(), "x.pdf", "alice", "r1")
	require.Error(t, err)
	require.Equal(t, render.ClassStorage, render.Classify(err))
	require.True(t, render.Classify(err).Retryable())
}

func TestDerive_MissingBucketIsDependency(t *testing.T) {
	up := &fakeUploader{err: fmt.Errorf("put object resume-thumbnails/alice/r1/thumbnail.png: %w", storage.ErrBucketMissing)}
	d := NewDeriver(fakeRaster{img: page(10, 14)}, up, nil)
	_, err := d.Derive(context.Background(), "x.pdf", "alice", "r1")
	require.Error(t, err)
	require.Equal(t, render.ClassDependency, render.Classify(err))
	require.False(t, render.Classify(err).Retryable())
}

func TestPdftoppm_MissingBinaryIsDependency(t *testing.T) {
	_, err := Pdftoppm{Binary: "definitely-not-pdftoppm"}.Rasterize(context.Background(), "x.pdf")
	require.Error(t, err)
	require.Equal(t, render.ClassDependency, render.Classify(err))
}
