package pipeline

import (
	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/dist"
	"github.com/model-collapse/panoptic-prep/util"
)

// RunStats aggregates one batch run.
type RunStats struct {
	dist.Summary

	Total       int
	Skipped     int
	CacheHits   int
	Images      int
	Annotations int
	// Dropped counts segments whose polygons all degenerated.
	Dropped int
	// Unknown counts pixels with colors outside the taxonomy.
	Unknown int
	// Recolored counts pixels changed by a convert run.
	Recolored int
	Document  string
}

func logSummary(op string, s *RunStats) {
	for _, f := range s.Failures {
		util.Logger.Error("unit failed", zap.String("op", op), zap.String("file", f.Path), zap.Error(f.Err))
	}

	util.Logger.Info("run finished",
		zap.String("op", op),
		zap.Int("total", s.Total),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Int("cache_hits", s.CacheHits),
		zap.Int("images", s.Images),
		zap.Int("annotations", s.Annotations),
		zap.Int("dropped_segments", s.Dropped),
		zap.Int("unknown_pixels", s.Unknown),
		zap.Int("recolored_pixels", s.Recolored),
		zap.String("document", s.Document),
	)
}
