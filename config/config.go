// ffwatcher/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Placeholder that must appear in every output filename template.
const FilenamePlaceholder = "{filename}"

type Config struct {
	Inputs  []Input           `mapstructure:"inputs" yaml:"inputs"`
	Outputs map[string]Output `mapstructure:"outputs" yaml:"outputs"`
	Presets map[string]Preset `mapstructure:"presets" yaml:"presets"`

	MaxParallelJobs int `mapstructure:"maxParallelJobs" yaml:"maxParallelJobs"`

	FFmpegBin  string `mapstructure:"ffmpegBin" yaml:"ffmpegBin"`
	FFprobeBin string `mapstructure:"ffprobeBin" yaml:"ffprobeBin"`

	// Status API. Empty port disables the server.
	Port       string `mapstructure:"port" yaml:"port,omitempty"`
	AuthEnable bool   `mapstructure:"authEnable" yaml:"authEnable,omitempty"`
	AuthKey    string `mapstructure:"authKey" yaml:"authKey,omitempty"`

	// Resource throttle checked before each encode. A zero value disables
	// the corresponding check.
	ThrottleCPU   float64 `mapstructure:"throttleCPU" yaml:"throttleCPU,omitempty"`
	MinFreeMemory int64   `mapstructure:"minFreeMemory" yaml:"minFreeMemory,omitempty"`
	MinFreeDisk   int64   `mapstructure:"minFreeDisk" yaml:"minFreeDisk,omitempty"`

	StabilityPollInterval time.Duration `mapstructure:"stabilityPollInterval" yaml:"stabilityPollInterval,omitempty"`
	StabilityWindow       time.Duration `mapstructure:"stabilityWindow" yaml:"stabilityWindow,omitempty"`
	StabilityTimeout      time.Duration `mapstructure:"stabilityTimeout" yaml:"stabilityTimeout,omitempty"`
	RetryBackoff          time.Duration `mapstructure:"retryBackoff" yaml:"retryBackoff,omitempty"`
	EventDelay            time.Duration `mapstructure:"eventDelay" yaml:"eventDelay,omitempty"`

	// How long finished job records stay visible in the status API.
	JobHistoryTTL time.Duration `mapstructure:"jobHistoryTTL" yaml:"jobHistoryTTL,omitempty"`
}

type Input struct {
	Path       string   `mapstructure:"path" yaml:"path"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Preset     string   `mapstructure:"preset" yaml:"preset"`
	Output     string   `mapstructure:"output" yaml:"output"`
}

type Output struct {
	Path             string `mapstructure:"path" yaml:"path"`
	FilenameTemplate string `mapstructure:"filenameTemplate" yaml:"filenameTemplate"`
	Container        string `mapstructure:"container" yaml:"container"`
}

// ExtraOption is one verbatim ffmpeg flag/value pair. Extra options are a
// list rather than a mapping so their order survives YAML decoding; ffmpeg
// receives them exactly as written.
type ExtraOption struct {
	Flag  string `mapstructure:"flag" yaml:"flag"`
	Value string `mapstructure:"value" yaml:"value,omitempty"`
}

type Preset struct {
	VideoCodec   string        `mapstructure:"videoCodec" yaml:"videoCodec,omitempty"`
	AudioCodec   string        `mapstructure:"audioCodec" yaml:"audioCodec,omitempty"`
	PixelFormat  string        `mapstructure:"pixelFormat" yaml:"pixelFormat,omitempty"`
	VideoBitrate string        `mapstructure:"videoBitrate" yaml:"videoBitrate,omitempty"`
	AudioBitrate string        `mapstructure:"audioBitrate" yaml:"audioBitrate,omitempty"`
	Scale        string        `mapstructure:"scale" yaml:"scale,omitempty"`
	ExtraOptions []ExtraOption `mapstructure:"extraOptions" yaml:"extraOptions,omitempty"`
	ExtraArgs    string        `mapstructure:"extraArgs" yaml:"extraArgs,omitempty"`
}

// stringToDurationHookFunc parses Go duration strings like "3s" or "1m30s".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes like "200MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load(path string) (*Config, error) {
	vp := viper.New()

	vp.SetDefault("maxParallelJobs", 1)
	vp.SetDefault("ffmpegBin", "ffmpeg")
	vp.SetDefault("ffprobeBin", "ffprobe")
	vp.SetDefault("minFreeMemory", "200MB")
	vp.SetDefault("minFreeDisk", "200MB")
	vp.SetDefault("stabilityPollInterval", "1s")
	vp.SetDefault("stabilityWindow", "3s")
	vp.SetDefault("stabilityTimeout", "60s")
	vp.SetDefault("retryBackoff", "5s")
	vp.SetDefault("eventDelay", "1s")
	vp.SetDefault("jobHistoryTTL", "1h")

	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}

	vp.SetEnvPrefix("FFWATCHER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize makes input and output roots absolute, lower-cases extensions
// and creates missing directories.
func (c *Config) normalize() error {
	for i := range c.Inputs {
		abs, err := filepath.Abs(c.Inputs[i].Path)
		if err != nil {
			return fmt.Errorf("input path %q: %w", c.Inputs[i].Path, err)
		}
		c.Inputs[i].Path = filepath.Clean(abs)

		for j, ext := range c.Inputs[i].Extensions {
			c.Inputs[i].Extensions[j] = strings.ToLower(strings.TrimPrefix(ext, "."))
		}

		if err := os.MkdirAll(c.Inputs[i].Path, 0o755); err != nil {
			return fmt.Errorf("create input directory %s: %w", c.Inputs[i].Path, err)
		}
	}

	for name, out := range c.Outputs {
		abs, err := filepath.Abs(out.Path)
		if err != nil {
			return fmt.Errorf("output path %q: %w", out.Path, err)
		}
		out.Path = filepath.Clean(abs)
		c.Outputs[name] = out

		if err := os.MkdirAll(out.Path, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", out.Path, err)
		}
	}

	if c.MaxParallelJobs < 1 {
		c.MaxParallelJobs = 1
	}
	return nil
}

func (c *Config) validate() error {
	for _, in := range c.Inputs {
		if _, ok := c.Presets[in.Preset]; !ok {
			return fmt.Errorf("preset %q referenced by input %s does not exist", in.Preset, in.Path)
		}
		if _, ok := c.Outputs[in.Output]; !ok {
			return fmt.Errorf("output %q referenced by input %s does not exist", in.Output, in.Path)
		}
	}
	for name, out := range c.Outputs {
		if !strings.Contains(out.FilenameTemplate, FilenamePlaceholder) {
			return fmt.Errorf("output %q: filename template must contain %s", name, FilenamePlaceholder)
		}
		if out.Container == "" {
			return fmt.Errorf("output %q: container extension is required", name)
		}
	}
	return nil
}

// MatchInput returns the first input whose root is a path prefix of the
// given canonical path and whose extension set contains the path's
// extension. Extensions compare case-insensitively.
func (c *Config) MatchInput(path string) (*Input, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return nil, false
	}

	for i := range c.Inputs {
		in := &c.Inputs[i]
		rel, err := filepath.Rel(in.Path, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		for _, e := range in.Extensions {
			if e == ext {
				return in, true
			}
		}
	}
	return nil, false
}

// OutputPath renders the destination for an input file: the template with
// {filename} replaced by the input's base name without extension, joined to
// the output directory with the container extension appended.
func (o Output) OutputPath(inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := strings.ReplaceAll(o.FilenameTemplate, FilenamePlaceholder, stem)
	return filepath.Join(o.Path, name+"."+o.Container)
}
