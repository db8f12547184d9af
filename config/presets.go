// ffwatcher/config/presets.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExamplePresets returns the stock preset set shipped with the service,
// covering the usual speed/quality trade-offs for x264 and x265 plus a
// GoPro-oriented shrink preset.
func ExamplePresets() map[string]Preset {
	return map[string]Preset{
		"fast_h264": {
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p",
			VideoBitrate: "2M",
			AudioBitrate: "128k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "ultrafast"},
				{Flag: "-crf", Value: "28"},
				{Flag: "-tune", Value: "fastdecode"},
			},
		},
		"medium_h264": {
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p",
			VideoBitrate: "4M",
			AudioBitrate: "192k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "medium"},
				{Flag: "-crf", Value: "23"},
				{Flag: "-tune", Value: "film"},
			},
		},
		"slow_h264": {
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p",
			VideoBitrate: "6M",
			AudioBitrate: "256k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "slow"},
				{Flag: "-crf", Value: "18"},
				{Flag: "-tune", Value: "film"},
				{Flag: "-x264-params", Value: "ref=5:me=umh"},
			},
		},
		"fast_h265": {
			VideoCodec:   "libx265",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p10le",
			AudioBitrate: "128k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "ultrafast"},
				{Flag: "-crf", Value: "28"},
				{Flag: "-tag:v", Value: "hvc1"},
			},
		},
		"medium_h265": {
			VideoCodec:   "libx265",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p10le",
			AudioBitrate: "192k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "medium"},
				{Flag: "-crf", Value: "23"},
				{Flag: "-tag:v", Value: "hvc1"},
				{Flag: "-x265-params", Value: "log-level=error"},
			},
		},
		"slow_h265": {
			VideoCodec:   "libx265",
			AudioCodec:   "aac",
			PixelFormat:  "yuv420p10le",
			AudioBitrate: "256k",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "slow"},
				{Flag: "-crf", Value: "18"},
				{Flag: "-tag:v", Value: "hvc1"},
				{Flag: "-x265-params", Value: "ref=5:me=star:rd=4:log-level=error"},
			},
		},
		"gopro_compact": {
			VideoCodec:  "libx265",
			AudioCodec:  "copy",
			PixelFormat: "yuv420p10le",
			ExtraOptions: []ExtraOption{
				{Flag: "-preset", Value: "fast"},
				{Flag: "-crf", Value: "24"},
				{Flag: "-x265-params", Value: "log-level=error"},
				{Flag: "-tag:v", Value: "hvc1"},
				{Flag: "-map", Value: "0:v,0:a,0:m:handler_name:GoPro MET"},
				{Flag: "-map_metadata", Value: "0"},
				{Flag: "-movflags", Value: "use_metadata_tags"},
			},
		},
	}
}

// WriteExampleConfig writes a starter config file populated with the stock
// presets. It refuses to overwrite an existing file.
func WriteExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg := Config{
		Inputs: []Input{},
		Outputs: map[string]Output{
			"default": {
				Path:             "converted",
				FilenameTemplate: "{filename}_encoded",
				Container:        "mp4",
			},
		},
		Presets:         ExamplePresets(),
		MaxParallelJobs: 1,
		FFmpegBin:       "ffmpeg",
		FFprobeBin:      "ffprobe",
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
