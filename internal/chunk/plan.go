package chunk

import (
	"fmt"
	"path/filepath"

	"reel/internal/job"
	"reel/internal/reelerr"
)

// Chunk is a contiguous, inclusive slice of the frame range.
type Chunk struct {
	Index      int `json:"index"`
	FrameStart int `json:"frame_start"`
	FrameEnd   int `json:"frame_end"`
}

// Frames is the number of frames the chunk covers.
func (c Chunk) Frames() int {
	return c.FrameEnd - c.FrameStart + 1
}

// Validate checks the chunk bounds.
func (c Chunk) Validate() error {
	if c.Index < 0 {
		return fmt.Errorf("chunk index must be >= 0")
	}
	if c.FrameStart < 0 || c.FrameEnd < c.FrameStart {
		return fmt.Errorf("chunk %d has invalid range %d..%d", c.Index, c.FrameStart, c.FrameEnd)
	}
	return nil
}

// Plan is the partition of [Start, End] into chunks of Size frames.
type Plan struct {
	Start  int
	End    int
	Size   int
	Chunks []Chunk
}

// Partition divides [start, end] into at most concurrency chunks of
// ceil(total/concurrency) frames. Chunks that would start past end are
// dropped, so fewer chunks than requested may result.
func Partition(start, end, concurrency int) (Plan, error) {
	if start < 0 || end < start {
		return Plan{}, reelerr.Wrap(reelerr.ErrInvalidFrameRange, "chunk", "partition",
			fmt.Sprintf("range %d..%d", start, end), nil)
	}
	total := end - start + 1
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > total {
		concurrency = total
	}
	size := (total + concurrency - 1) / concurrency

	plan := Plan{Start: start, End: end, Size: size}
	for i := 0; i < concurrency; i++ {
		first := start + i*size
		if first > end {
			break
		}
		plan.Chunks = append(plan.Chunks, Chunk{
			Index:      i,
			FrameStart: first,
			FrameEnd:   min(first+size-1, end),
		})
	}
	return plan, nil
}

// ChunkFor returns the chunk holding frame: floor((frame-start)/size),
// clamped to the last chunk.
func (p Plan) ChunkFor(frame int) Chunk {
	idx := (frame - p.Start) / p.Size
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Chunks) {
		idx = len(p.Chunks) - 1
	}
	return p.Chunks[idx]
}

// Dir is the directory a chunk writes its frames into.
func Dir(root string, c Chunk) string {
	return filepath.Join(root, fmt.Sprintf("chunk-%d", c.Index))
}

// Stitch returns the frame file paths for frames in global order.
func (p Plan) Stitch(root string, frames []int, pad int, ext string) []string {
	paths := make([]string, 0, len(frames))
	for _, frame := range frames {
		paths = append(paths, filepath.Join(Dir(root, p.ChunkFor(frame)), job.FrameFileName(frame, pad, ext)))
	}
	return paths
}
