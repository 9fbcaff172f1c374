package logging_test

import (
	"testing"

	"reel/internal/logging"
)

func TestFrameSamplerEmitsOncePerBucket(t *testing.T) {
	sampler := logging.NewFrameSampler(100, 25)
	var emitted []int
	for done := 0; done <= 100; done++ {
		if sampler.ShouldLog(done) {
			emitted = append(emitted, done)
		}
	}
	want := []int{0, 25, 50, 75, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
}

func TestFrameSamplerZeroTotal(t *testing.T) {
	if logging.NewFrameSampler(0, 10).ShouldLog(0) {
		t.Fatal("expected no output for empty renders")
	}
}
