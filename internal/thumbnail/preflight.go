package thumbnail

// SkipReason explains why no thumbnails were produced.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipNotApplicable SkipReason = "not_applicable"
	SkipMemory        SkipReason = "memory_preflight"
	SkipPixels        SkipReason = "pixel_limit"
	SkipFileSize      SkipReason = "file_size_limit"
	SkipFailed        SkipReason = "failed"
)

const (
	bytesPerPixel  = 4
	peakMultiplier = 1.5
	headroom       = 0.9
)

// Estimate is the memory projection for decoding one image.
type Estimate struct {
	Pixels    int64
	Decode    int64
	Peak      int64
	Usage     int64
	Projected int64
	Limit     int64
	Threshold int64
}

// Exceeds reports whether the projection crosses 90% of a known ceiling.
func (e Estimate) Exceeds() bool {
	return e.Limit > 0 && e.Projected > e.Threshold
}

// Preflight projects the memory a full RGBA decode plus resize working set
// would need, without decoding.
func Preflight(width, height int, mon MemoryMonitor) Estimate {
	e := Estimate{Pixels: int64(width) * int64(height)}
	e.Decode = e.Pixels * bytesPerPixel
	e.Peak = int64(float64(e.Decode) * peakMultiplier)
	if mon != nil {
		e.Usage = mon.Usage()
		e.Limit = mon.Limit()
	}
	e.Projected = e.Usage + e.Peak
	if e.Limit > 0 {
		e.Threshold = int64(float64(e.Limit) * headroom)
	}
	return e
}
