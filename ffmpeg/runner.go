// ffwatcher/ffmpeg/runner.go
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ffwatcher/config"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Runner drives one ffmpeg process per encode: stderr is teed to the log,
// stdout carries the progress micro-protocol, and completion is only
// accepted when the exit status, the progress terminator and the output
// file all check out.
type Runner struct {
	bin string
	log *slog.Logger

	// ShowProgress renders a progress bar on stderr; enabled by default
	// only when stderr is a terminal.
	ShowProgress bool

	throttleCPU   float64
	minFreeMemory uint64
	minFreeDisk   uint64
}

func NewRunner(cfg *config.Config, log *slog.Logger) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFmpegBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found in PATH: %s", cfg.FFmpegBin)
	}
	return &Runner{
		bin:           cfg.FFmpegBin,
		log:           log,
		ShowProgress:  isatty.IsTerminal(os.Stderr.Fd()),
		throttleCPU:   cfg.ThrottleCPU,
		minFreeMemory: uint64(cfg.MinFreeMemory),
		minFreeDisk:   uint64(cfg.MinFreeDisk),
	}, nil
}

// Run executes the external tool once. durationSeconds, when positive,
// bounds the progress indicator; it never affects correctness. All returned
// failures are *ExecError; only the pre-spawn resource check is transient.
func (r *Runner) Run(ctx context.Context, input, output string, preset *config.Preset, durationSeconds float64) error {
	if err := r.checkResources(filepath.Dir(output)); err != nil {
		return &ExecError{Reason: ReasonResources, Err: err}
	}

	args, err := BuildArgs(input, output, preset)
	if err != nil {
		return &ExecError{Reason: ReasonCommand, Err: err}
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ExecError{Reason: ReasonSpawn, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ExecError{Reason: ReasonSpawn, Err: err}
	}

	r.log.Debug("executing ffmpeg", "bin", r.bin, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return &ExecError{Reason: ReasonSpawn, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			r.log.Debug("ffmpeg", "input", filepath.Base(input), "line", sc.Text())
		}
	}()

	bar := r.newBar(durationSeconds, input)
	progressErr := ParseProgress(stdout, func(s Snapshot) {
		if bar != nil {
			_ = bar.Set64(s.ElapsedSeconds())
		}
	})
	// The parser stops at the terminator; swallow anything the tool still
	// writes so Wait cannot block on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)

	wg.Wait()
	waitErr := cmd.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	if waitErr != nil {
		return &ExecError{Reason: ReasonExit, Err: waitErr}
	}
	if progressErr != nil {
		return &ExecError{Reason: ReasonNoTerminator, Err: progressErr}
	}

	info, err := os.Stat(output)
	if err != nil {
		return &ExecError{Reason: ReasonMissingOutput, Err: err}
	}
	if info.Size() == 0 {
		return &ExecError{Reason: ReasonEmptyOutput, Err: fmt.Errorf("%s has size 0", output)}
	}
	return nil
}

// newBar builds a bounded bar when the total duration is known and a
// spinner otherwise.
func (r *Runner) newBar(durationSeconds float64, input string) *progressbar.ProgressBar {
	if !r.ShowProgress {
		return nil
	}

	desc := filepath.Base(input)
	total := int64(-1)
	if durationSeconds > 0 {
		total = int64(durationSeconds)
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

// checkResources refuses to spawn another encode when the host is starved.
// Zero-valued thresholds disable the matching check.
func (r *Runner) checkResources(outputDir string) error {
	if r.throttleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			r.log.Warn("could not read CPU usage", "error", err)
		} else if len(p) > 0 && p[0] > 100.0-r.throttleCPU {
			return fmt.Errorf("not enough idle CPU: usage %.1f%%, need %.1f%% idle", p[0], r.throttleCPU)
		}
	}

	if r.minFreeMemory > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			r.log.Warn("could not read memory usage", "error", err)
		} else if vm.Available < r.minFreeMemory {
			return fmt.Errorf("not enough free memory: available %d, need %d", vm.Available, r.minFreeMemory)
		}
	}

	if r.minFreeDisk > 0 {
		d, err := disk.Usage(outputDir)
		if err != nil {
			r.log.Warn("could not read disk usage", "dir", outputDir, "error", err)
		} else if d.Free < r.minFreeDisk {
			return fmt.Errorf("not enough free disk in %s: free %d, need %d", outputDir, d.Free, r.minFreeDisk)
		}
	}
	return nil
}
