// ffwatcher/config/config_test.go
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ffwatcher/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ffwatcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("parses full config and applies defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfigFile(t, dir, `
inputs:
  - path: `+filepath.Join(dir, "incoming")+`
    extensions: [".MP4", "mov"]
    preset: fast
    output: main
outputs:
  main:
    path: `+filepath.Join(dir, "converted")+`
    filenameTemplate: "{filename}_encoded"
    container: mkv
presets:
  fast:
    videoCodec: libx264
    audioBitrate: 128k
    extraOptions:
      - flag: -preset
        value: ultrafast
      - flag: -crf
        value: "28"
maxParallelJobs: 3
`)

		cfg, err := config.Load(path)
		require.NoError(t, err)

		require.Len(t, cfg.Inputs, 1)
		assert.Equal(t, []string{"mp4", "mov"}, cfg.Inputs[0].Extensions)
		assert.True(t, filepath.IsAbs(cfg.Inputs[0].Path))
		assert.Equal(t, 3, cfg.MaxParallelJobs)

		// Extra option order must survive decoding.
		preset := cfg.Presets["fast"]
		require.Len(t, preset.ExtraOptions, 2)
		assert.Equal(t, "-preset", preset.ExtraOptions[0].Flag)
		assert.Equal(t, "ultrafast", preset.ExtraOptions[0].Value)
		assert.Equal(t, "-crf", preset.ExtraOptions[1].Flag)

		// Defaults.
		assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
		assert.Equal(t, "ffprobe", cfg.FFprobeBin)
		assert.Equal(t, 1*time.Second, cfg.StabilityPollInterval)
		assert.Equal(t, 3*time.Second, cfg.StabilityWindow)
		assert.Equal(t, 60*time.Second, cfg.StabilityTimeout)
		assert.Equal(t, 5*time.Second, cfg.RetryBackoff)
		assert.Equal(t, 1*time.Second, cfg.EventDelay)
		assert.Equal(t, 1*time.Hour, cfg.JobHistoryTTL)
		assert.Equal(t, int64(200*1024*1024), cfg.MinFreeDisk)

		// Referenced directories are created.
		assert.DirExists(t, filepath.Join(dir, "incoming"))
		assert.DirExists(t, filepath.Join(dir, "converted"))
	})

	t.Run("rejects unknown preset reference", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfigFile(t, dir, `
inputs:
  - path: `+filepath.Join(dir, "in")+`
    extensions: [mp4]
    preset: nope
    output: main
outputs:
  main:
    path: `+filepath.Join(dir, "out")+`
    filenameTemplate: "{filename}"
    container: mp4
presets: {}
`)
		_, err := config.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `preset "nope"`)
	})

	t.Run("rejects unknown output reference", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfigFile(t, dir, `
inputs:
  - path: `+filepath.Join(dir, "in")+`
    extensions: [mp4]
    preset: fast
    output: nope
outputs: {}
presets:
  fast: {}
`)
		_, err := config.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `output "nope"`)
	})

	t.Run("rejects template without placeholder", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfigFile(t, dir, `
inputs: []
outputs:
  main:
    path: `+filepath.Join(dir, "out")+`
    filenameTemplate: "fixed_name"
    container: mp4
presets: {}
`)
		_, err := config.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "{filename}")
	})
}

func TestMatchInput(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	cfg := &config.Config{
		Inputs: []config.Input{
			{Path: dir, Extensions: []string{"mp4", "mov"}, Preset: "a", Output: "a"},
			{Path: other, Extensions: []string{"mkv"}, Preset: "b", Output: "b"},
		},
	}

	t.Run("matches by prefix and extension", func(t *testing.T) {
		in, ok := cfg.MatchInput(filepath.Join(dir, "sub", "clip.mp4"))
		require.True(t, ok)
		assert.Equal(t, dir, in.Path)
	})

	t.Run("extension comparison is case-insensitive", func(t *testing.T) {
		_, ok := cfg.MatchInput(filepath.Join(dir, "CLIP.MOV"))
		assert.True(t, ok)
	})

	t.Run("no match outside roots", func(t *testing.T) {
		_, ok := cfg.MatchInput("/somewhere/else/clip.mp4")
		assert.False(t, ok)
	})

	t.Run("no match for unlisted extension", func(t *testing.T) {
		_, ok := cfg.MatchInput(filepath.Join(dir, "clip.avi"))
		assert.False(t, ok)
	})

	t.Run("second root matches its own extensions", func(t *testing.T) {
		in, ok := cfg.MatchInput(filepath.Join(other, "clip.mkv"))
		require.True(t, ok)
		assert.Equal(t, other, in.Path)
	})
}

func TestOutputPath(t *testing.T) {
	out := config.Output{
		Path:             "/media/converted",
		FilenameTemplate: "{filename}_encoded",
		Container:        "mp4",
	}
	assert.Equal(t, filepath.Join("/media/converted", "clip_encoded.mp4"), out.OutputPath("/media/incoming/clip.mov"))
}

func TestWriteExampleConfig(t *testing.T) {
	t.Run("writes loadable starter config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "example.yaml")
		require.NoError(t, config.WriteExampleConfig(path))

		// Written file must round-trip through the loader. The example
		// output path is relative; load from the temp dir so the created
		// directory lands there.
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		defer os.Chdir(wd)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Contains(t, cfg.Presets, "medium_h265")
		assert.Equal(t, "libx264", cfg.Presets["fast_h264"].VideoCodec)

		// Stock preset option order is preserved.
		opts := cfg.Presets["fast_h264"].ExtraOptions
		require.Len(t, opts, 3)
		assert.Equal(t, "-preset", opts[0].Flag)
		assert.Equal(t, "-tune", opts[2].Flag)
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "example.yaml")
		require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))
		assert.Error(t, config.WriteExampleConfig(path))
	})
}
