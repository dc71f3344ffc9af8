package cull

import "time"

type Config struct {
	// MaxMarkersWithoutOptimization is the largest feature count that is always
	// rendered in full.
	MaxMarkersWithoutOptimization int
	// MinZoomForOptimization is the lowest zoom level at which culling kicks in.
	MinZoomForOptimization int
	// BufferFactor scales the viewport around its center before filtering.
	BufferFactor float64
	Debounce     time.Duration
	// Epsilon, in degrees, below which a change of the expanded bounds is ignored.
	Epsilon float64
}

func DefaultConfig() Config {
	return Config{
		MaxMarkersWithoutOptimization: 5000,
		MinZoomForOptimization:        10,
		BufferFactor:                  1.5,
		Debounce:                      100 * time.Millisecond,
		Epsilon:                       0.0009,
	}
}

func (c Config) optimize(featureCount, zoom int) bool {
	return featureCount > c.MaxMarkersWithoutOptimization && zoom >= c.MinZoomForOptimization
}
