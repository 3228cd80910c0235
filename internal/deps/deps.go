// Package deps reports whether the external programs behind each stage engine
// can be found.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"subflow/internal/config"
)

// Requirement defines an external program subflow relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the programs the configuration needs. Translation and
// synthesis commands are optional because the pipeline degrades without them.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Extracts audio tracks"},
		{Name: "Transcriber", Command: cfg.Transcription.Command, Description: "Speech recognition"},
	}
	if cfg.Translation.Enabled {
		reqs = append(reqs, Requirement{
			Name:        "Translator",
			Command:     cfg.Translation.Command,
			Description: "Per-segment translation",
			Optional:    true,
		})
	}
	if cfg.Synthesis.Enabled {
		reqs = append(reqs, Requirement{
			Name:        "Synthesizer",
			Command:     cfg.Synthesis.Command,
			Description: "Voice-over synthesis",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Only the first word of a command line is resolved.
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
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(fields[0]); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", fields[0])
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
