package thumbnail

import "sort"

// DefaultQuality is used for specs that leave Quality unset.
const DefaultQuality = 80

// Spec describes one derived size.
type Spec struct {
	Key     string `json:"key" mapstructure:"key" yaml:"key"`
	Width   int    `json:"width" mapstructure:"width" yaml:"width"`
	Height  int    `json:"height" mapstructure:"height" yaml:"height"`
	Quality int    `json:"quality" mapstructure:"quality" yaml:"quality"`
}

// DefaultSpecs returns the built-in 64 and 256 pixel squares.
func DefaultSpecs() []Spec {
	return []Spec{
		{Key: "64", Width: 64, Height: 64, Quality: DefaultQuality},
		{Key: "256", Width: 256, Height: 256, Quality: DefaultQuality},
	}
}

func (s Spec) maxSide() int {
	if s.Width > s.Height {
		return s.Width
	}
	return s.Height
}

// SortSpecs returns a copy of specs ordered largest first. Ties keep their
// configured order. Specs with a non-positive side are dropped and an unset
// quality becomes DefaultQuality.
func SortSpecs(specs []Spec) []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}
		if s.Quality <= 0 {
			s.Quality = DefaultQuality
		}
		if s.Quality > 100 {
			s.Quality = 100
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].maxSide() > out[j].maxSide()
	})
	return out
}
