// Package thumbnail derives a small PNG preview from the first page of a PDF.
// Everything after the input PDF stays in memory.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"resumeforge/internal/metrics"
	"resumeforge/internal/render"
	"resumeforge/internal/storage"
)

const (
	// DPI 为第一页栅格化分辨率。
	DPI = 150
	// Width 为缩略图目标宽度（像素）。
	Width = 400
)

// Rasterizer 把 PDF 第一页转换为图像。
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) (image.Image, error)
}

// Pdftoppm 通过 poppler 的 pdftoppm 把第一页输出到 stdout。
type Pdftoppm struct {
	Binary string
}

func (p Pdftoppm) Rasterize(ctx context.Context, pdfPath string) (image.Image, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-png",
		"-r", strconv.Itoa(DPI),
		"-f", "1",
		"-l", "1",
		"-singlefile",
		pdfPath,
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, render.WithClass(render.ClassDependency, fmt.Errorf("rasterizer %s: %w", binary, err))
		}
		return nil, fmt.Errorf("rasterize first page: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, render.WithClass(render.ClassData, fmt.Errorf("decode rasterized page: %w", err))
	}
	return img, nil
}

// Resize 按宽度等比缩放，使用 Catmull-Rom 滤波。
func Resize(src image.Image, width int) image.Image {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return src
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// EncodePNG 以最高压缩等级编码。
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Uploader 是缩略图桶的最小接口，*storage.Client 满足它。
type Uploader interface {
	ThumbnailBucket() string
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error
	PublicURL(bucket, key string) string
}

// Deriver 生成并上传缩略图。
type Deriver struct {
	raster  Rasterizer
	objects Uploader
	logger  *slog.Logger
	now     func() time.Time
}

// NewDeriver 构造 Deriver。
func NewDeriver(raster Rasterizer, objects Uploader, logger *slog.Logger) *Deriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deriver{raster: raster, objects: objects, logger: logger, now: time.Now}
}

// Derive 栅格化、缩放、上传，返回带 ?v= 版本参数的公开地址。
// 上传失败归类为 storage；桶缺失属于配置问题，归类为 dependency。
func (d *Deriver) Derive(ctx context.Context, pdfPath, ownerID, resumeID string) (string, error) {
	img, err := d.raster.Rasterize(ctx, pdfPath)
	if err != nil {
		metrics.ThumbnailDerived("rasterize_failed")
		return "", err
	}
	data, err := EncodePNG(Resize(img, Width))
	if err != nil {
		metrics.ThumbnailDerived("encode_failed")
		return "", err
	}

	bucket := d.objects.ThumbnailBucket()
	key := storage.ThumbnailKey(ownerID, resumeID)
	if err := d.objects.PutObject(ctx, bucket, key, data, "image/png", storage.ThumbnailCacheControl); err != nil {
		metrics.ThumbnailDerived("upload_failed")
		if errors.Is(err, storage.ErrBucketMissing) {
			return "", render.WithClass(render.ClassDependency, err)
		}
		return "", render.WithClass(render.ClassStorage, err)
	}
	metrics.ThumbnailDerived("ok")

	url := fmt.Sprintf("%s?v=%d", d.objects.PublicURL(bucket, key), d.now().UnixMilli())
	d.logger.Info("thumbnail uploaded",
		slog.String("owner_id", ownerID),
		slog.String("resume_id", resumeID),
		slog.Int("bytes", len(data)),
	)
	return url, nil
}
