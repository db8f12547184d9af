// ffwatcher/probe/probe.go
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Prober answers "how long is this media file" by asking ffprobe. A probe
// that fails or reports a non-positive duration means the file is not (yet)
// decodable.
type Prober struct {
	bin string
}

func New(bin string) (*Prober, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found in PATH: %s", bin)
	}
	return &Prober{bin: bin}, nil
}

// Format mirrors the format block of ffprobe's JSON output.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeOutput struct {
	Format Format `json:"format"`
}

// Duration returns the container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-i", path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	var data probeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if data.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe output has no duration")
	}
	dur, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", data.Format.Duration, err)
	}
	return dur, nil
}
