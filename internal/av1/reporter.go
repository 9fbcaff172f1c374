package av1

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	draptolib "github.com/five82/drapto"

	"reel/internal/logging"
	"reel/internal/progress"
)

// reporter turns drapto callbacks into status events. Encoding progress is
// sampled so the stream carries one status per 10%.
type reporter struct {
	sink    progress.Sink
	logger  *slog.Logger
	mu      sync.Mutex
	sampler *logging.FrameSampler
	lastErr string
}

var _ draptolib.Reporter = (*reporter)(nil)

func newReporter(sink progress.Sink, logger *slog.Logger) *reporter {
	if sink == nil {
		sink = progress.Discard
	}
	return &reporter{sink: sink, logger: logger, sampler: logging.NewFrameSampler(100, 10)}
}

func (r *reporter) status(format string, args ...any) {
	r.sink.Emit(progress.Status(fmt.Sprintf(format, args...)))
}

func (r *reporter) failure() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr == "" {
		return "drapto encode failed"
	}
	return r.lastErr
}

func (r *reporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto host", logging.String("hostname", s.Hostname))
}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.status("av1: analyzing %v intermediate", s.Resolution)
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	stage := strings.TrimSpace(s.Stage)
	if stage == "" {
		return
	}
	r.logger.Debug("drapto stage", logging.String("stage", stage), logging.Float64("percent", float64(s.Percent)), logging.String("message", s.Message))
}

func (r *reporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop", logging.String("crop", fmt.Sprint(s.Crop)), logging.Bool("required", s.Required))
}

func (r *reporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.status("av1: encoding with %v preset %v quality %v", s.Encoder, s.Preset, s.Quality)
}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.status("av1: encoding %d frames", totalFrames)
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.mu.Lock()
	emit := r.sampler.ShouldLog(int(float64(s.Percent)))
	r.mu.Unlock()
	if emit {
		r.status("av1: %.0f%% at %.1f fps", float64(s.Percent), float64(s.FPS))
	}
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	if s.Passed {
		r.status("av1: validation passed")
		return
	}
	logging.WarnWithContext(r.logger, "drapto validation reported failures", "av1_validation_failed",
		logging.String(logging.FieldImpact, "output may not match the intermediate"),
		logging.String(logging.FieldErrorHint, "inspect the output with ffprobe"),
	)
}

func (r *reporter) EncodingComplete(draptolib.EncodingOutcome) {
	r.status("av1: encode complete")
}

func (r *reporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "av1_warning", logging.String("detail", message))
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.mu.Lock()
	r.lastErr = strings.TrimSpace(e.Title + ": " + e.Message)
	r.mu.Unlock()
	logging.ErrorWithContext(r.logger, "drapto error", "av1_error",
		logging.String("title", e.Title),
		logging.String("message", e.Message),
		logging.String(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *reporter) OperationComplete(message string) {
	r.logger.Debug("drapto operation complete", logging.String("message", message))
}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}
