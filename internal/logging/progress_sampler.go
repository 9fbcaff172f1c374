package logging

// FrameSampler suppresses per-frame progress logs, letting a line through
// each time the completed share crosses a percentage bucket.
type FrameSampler struct {
	total      int
	bucketSize int
	lastBucket int
}

// NewFrameSampler constructs a sampler for total frames emitting every
// bucketPercent (default 10).
func NewFrameSampler(total, bucketPercent int) *FrameSampler {
	if bucketPercent <= 0 || bucketPercent > 100 {
		bucketPercent = 10
	}
	return &FrameSampler{total: total, bucketSize: bucketPercent, lastBucket: -1}
}

// ShouldLog reports whether done frames out of total crosses a new bucket.
// Callers serialize access.
func (s *FrameSampler) ShouldLog(done int) bool {
	if s == nil || s.total <= 0 {
		return false
	}
	if done >= s.total {
		done = s.total
	}
	bucket := done * 100 / s.total / s.bucketSize
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}
