// Package deps reports whether the external programs a render shells out to
// are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"reel/internal/config"
)

// Requirement defines an external dependency reel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries a render needs under cfg. The browser is
// optional because the launcher downloads a revision when none is configured.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg, ffprobe, browser := "ffmpeg", "ffprobe", ""
	if cfg != nil {
		ffmpeg = orDefault(cfg.Encoder.FFmpegBinary, ffmpeg)
		ffprobe = orDefault(cfg.Encoder.FFprobeBinary, ffprobe)
		browser = strings.TrimSpace(cfg.Browser.Binary)
	}
	reqs := []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Encodes captured frames and mixes audio"},
		{Name: "FFprobe", Command: ffprobe, Description: "Verifies finished renders"},
	}
	if browser != "" {
		reqs = append(reqs, Requirement{Name: "Chromium", Command: browser, Description: "Hosts the composition surface", Optional: true})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable, non-optional dependencies.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
