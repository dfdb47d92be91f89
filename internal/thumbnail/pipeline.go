// Package thumbnail derives a cascade of JPEG thumbnails from an uploaded
// image. Before decoding anything it checks the projected memory cost and
// the configured pixel and file size limits, so oversized inputs are stored
// without thumbnails rather than exhausting the process.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/bytesize"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/metrics"
	"github.com/fruitsalade/mediavault/internal/storage"
)

const (
	DefaultMaxPixels   int64 = 40_000_000
	DefaultMaxFileSize int64 = 20 * bytesize.MiB
)

// ResizeFunc scales and crops img to exactly width x height.
type ResizeFunc func(img image.Image, width, height int) image.Image

// Fill is the default ResizeFunc: crop-to-fill around the centre.
func Fill(img image.Image, width, height int) image.Image {
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

// Config holds the pipeline limits.
type Config struct {
	Specs       []Spec
	MaxPixels   int64
	MaxFileSize int64
	Verbose     bool
}

// Source is one stored original.
type Source struct {
	Data      []byte
	Extension string
	MimeType  string
	Directory string
	BaseName  string // file name without extension
}

// Outcome reports what Derive produced. Width and Height are set whenever
// the image dimensions could be read, even when thumbnails were skipped.
type Outcome struct {
	Width      *uint32
	Height     *uint32
	Thumbnails map[string]string
	Skipped    SkipReason
}

func (o *Outcome) setSize(w, h int) {
	uw, uh := uint32(w), uint32(h)
	o.Width, o.Height = &uw, &uh
}

// Pipeline derives thumbnails into a storage backend.
type Pipeline struct {
	backend     storage.Backend
	specs       []Spec
	maxPixels   int64
	maxFileSize int64
	verbose     bool
	monitor     MemoryMonitor
	resize      ResizeFunc
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMemoryMonitor replaces the runtime memory monitor.
func WithMemoryMonitor(m MemoryMonitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithResizer replaces the resize step.
func WithResizer(f ResizeFunc) Option {
	return func(p *Pipeline) { p.resize = f }
}

// New creates a pipeline writing to backend.
func New(backend storage.Backend, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend:     backend,
		specs:       SortSpecs(cfg.Specs),
		maxPixels:   cfg.MaxPixels,
		maxFileSize: cfg.MaxFileSize,
		verbose:     cfg.Verbose,
		resize:      Fill,
	}
	if p.maxPixels <= 0 {
		p.maxPixels = DefaultMaxPixels
	}
	if p.maxFileSize <= 0 {
		p.maxFileSize = DefaultMaxFileSize
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.monitor == nil {
		p.monitor = NewRuntimeMonitor(0)
	}
	return p
}

// Specs returns the cascade order.
func (p *Pipeline) Specs() []Spec {
	return append([]Spec(nil), p.specs...)
}

// ThumbnailPath returns the storage key for one derived size.
func ThumbnailPath(dir, base, key string) string {
	return path.Join("thumbnails", dir, base+"_"+key+".jpg")
}

var errTooManyPixels = errors.New("decoded image exceeds pixel limit")

func (p *Pipeline) claimKey(dir, base string) (string, bool) {
	if len(p.specs) == 0 {
		return "", false
	}
	return ThumbnailPath(dir, base, p.specs[0].Key), true
}

// Reserve claims the thumbnail names of base in dir by creating the largest
// size exclusively. It reports false when another asset owns them already,
// which happens when two originals share a stem but not an extension.
func (p *Pipeline) Reserve(ctx context.Context, dir, base string) (bool, error) {
	key, ok := p.claimKey(dir, base)
	if !ok {
		return true, nil
	}
	err := p.backend.PutObjectExclusive(ctx, key, bytes.NewReader(nil), 0)
	if errors.Is(err, storage.ErrExclusiveUnsupported) {
		exists, xerr := p.backend.ObjectExists(ctx, key)
		if xerr != nil {
			return false, fmt.Errorf("check %s: %w", key, xerr)
		}
		if exists {
			return false, nil
		}
		err = p.backend.PutObject(ctx, key, bytes.NewReader(nil), 0)
	}
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectExists):
		return false, nil
	default:
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
}

// Release removes a reservation that out did not fill with a thumbnail.
func (p *Pipeline) Release(ctx context.Context, dir, base string, out Outcome) {
	key, ok := p.claimKey(dir, base)
	if !ok || out.Thumbnails[p.specs[0].Key] == key {
		return
	}
	if err := p.backend.DeleteObject(ctx, key); err != nil {
		logging.WithContext(ctx).Warn("failed to release thumbnail reservation", zap.String("key", key), zap.Error(err))
	}
}

// Derive runs the pipeline for src. It never fails: problems are logged and
// reported as an empty thumbnail set.
func (p *Pipeline) Derive(ctx context.Context, src Source) Outcome {
	out := Outcome{Thumbnails: map[string]string{}}
	log := logging.WithContext(ctx).With(zap.String("dir", src.Directory), zap.String("base", src.BaseName))

	if !Applicable(src.Extension, src.MimeType) || len(p.specs) == 0 {
		out.Skipped = SkipNotApplicable
		return out
	}

	width, height, probeErr := Probe(src.Data)
	if probeErr == nil {
		out.setSize(width, height)

		est := Preflight(width, height, p.monitor)
		if p.verbose {
			log.Info("thumbnail preflight",
				zap.Int64("pixels", est.Pixels),
				zap.String("decode", bytesize.Format(est.Decode)),
				zap.String("peak", bytesize.Format(est.Peak)),
				zap.String("usage", bytesize.Format(est.Usage)),
				zap.String("projected", bytesize.Format(est.Projected)),
				zap.String("limit", bytesize.Format(est.Limit)))
		}
		if est.Exceeds() {
			log.Warn("skipping thumbnails: projected memory above limit",
				zap.Int64("projected", est.Projected),
				zap.Int64("threshold", est.Threshold))
			return p.skip(out, SkipMemory)
		}
		if est.Pixels > p.maxPixels {
			log.Warn("skipping thumbnails: image too large",
				zap.Int64("pixels", est.Pixels),
				zap.Int64("max_pixels", p.maxPixels))
			return p.skip(out, SkipPixels)
		}
	} else {
		log.Debug("probe failed, dimensions deferred to decode", zap.Error(probeErr))
	}

	if int64(len(src.Data)) > p.maxFileSize {
		log.Warn("skipping thumbnails: file too large",
			zap.String("size", bytesize.Format(int64(len(src.Data)))),
			zap.String("max", bytesize.Format(p.maxFileSize)))
		return p.skip(out, SkipFileSize)
	}

	start := time.Now()
	thumbs, w, h, err := p.cascade(ctx, src)
	if w > 0 && h > 0 && out.Width == nil {
		out.setSize(w, h)
	}
	if errors.Is(err, errTooManyPixels) {
		log.Warn("skipping thumbnails: decoded image too large",
			zap.Int("width", w), zap.Int("height", h),
			zap.Int64("max_pixels", p.maxPixels))
		return p.skip(out, SkipPixels)
	}
	if err != nil {
		log.Warn("thumbnail generation failed", zap.Error(err))
		p.cleanup(ctx, thumbs)
		return p.skip(out, SkipFailed)
	}

	elapsed := time.Since(start)
	metrics.RecordThumbnailDuration(elapsed)
	if p.verbose {
		log.Info("thumbnails generated", zap.Int("count", len(thumbs)), zap.Duration("duration", elapsed))
	}
	out.Thumbnails = thumbs
	return out
}

func (p *Pipeline) skip(out Outcome, reason SkipReason) Outcome {
	metrics.RecordThumbnailSkip(string(reason))
	out.Skipped = reason
	out.Thumbnails = map[string]string{}
	return out
}

// cascade decodes once and derives each size from the previous one. It
// returns whatever was written so the caller can clean up on error, plus the
// decoded dimensions.
func (p *Pipeline) cascade(ctx context.Context, src Source) (map[string]string, int, int, error) {
	written := map[string]string{}

	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return written, 0, 0, err
	}
	b := img.Bounds()
	if int64(b.Dx())*int64(b.Dy()) > p.maxPixels {
		return written, b.Dx(), b.Dy(), errTooManyPixels
	}
	img = applyOrientation(img, readOrientation(src.Data))

	current := img
	for _, spec := range p.specs {
		next := p.resize(current, spec.Width, spec.Height)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, next, imaging.JPEG, imaging.JPEGQuality(spec.Quality)); err != nil {
			return written, b.Dx(), b.Dy(), err
		}
		key := ThumbnailPath(src.Directory, src.BaseName, spec.Key)
		if err := p.backend.PutObject(ctx, key, &buf, int64(buf.Len())); err != nil {
			return written, b.Dx(), b.Dy(), err
		}
		written[spec.Key] = key
		metrics.RecordThumbnail(spec.Key)
		current = next
	}
	return written, b.Dx(), b.Dy(), nil
}

// cleanup removes thumbnails written before a failure.
func (p *Pipeline) cleanup(ctx context.Context, thumbs map[string]string) {
	for _, key := range thumbs {
		if err := p.backend.DeleteObject(ctx, key); err != nil {
			logging.WithContext(ctx).Warn("failed to remove partial thumbnail", zap.String("key", key), zap.Error(err))
		}
	}
}
