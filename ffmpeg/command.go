// ffwatcher/ffmpeg/command.go
package ffmpeg

import (
	"fmt"

	"ffwatcher/config"

	"github.com/google/shlex"
)

// BuildArgs assembles the ffmpeg invocation in its fixed shape: quiet mode
// with the progress stream on stdout, input, force-overwrite, output, then
// the preset flags and finally the preset's extra options verbatim and in
// order.
func BuildArgs(input, output string, preset *config.Preset) ([]string, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		"-i", input,
		"-y",
		output,
	}

	if preset.VideoCodec != "" {
		args = append(args, "-c:v", preset.VideoCodec)
	}
	if preset.AudioCodec != "" {
		args = append(args, "-c:a", preset.AudioCodec)
	}
	if preset.VideoBitrate != "" {
		args = append(args, "-b:v", preset.VideoBitrate)
	}
	if preset.AudioBitrate != "" {
		args = append(args, "-b:a", preset.AudioBitrate)
	}
	if preset.PixelFormat != "" {
		args = append(args, "-pix_fmt", preset.PixelFormat)
	}
	if preset.Scale != "" {
		args = append(args, "-vf", "scale="+preset.Scale)
	}

	for _, opt := range preset.ExtraOptions {
		args = append(args, opt.Flag)
		if opt.Value != "" {
			args = append(args, opt.Value)
		}
	}

	if preset.ExtraArgs != "" {
		extra, err := shlex.Split(preset.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("invalid extraArgs syntax: %w", err)
		}
		args = append(args, extra...)
	}

	return args, nil
}
