// Package config loads the engine configuration from flags, environment and
// optional config files via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	Convert  ConvertConfig `mapstructure:"convert"`
}

// PathsConfig locates the voice model bundles and the shared ONNX graphs.
type PathsConfig struct {
	ModelsDir      string `mapstructure:"models_dir"`
	ContentEncoder string `mapstructure:"content_encoder"`
	RMVPE          string `mapstructure:"rmvpe"`
	FCPE           string `mapstructure:"fcpe"`
	Crepe          string `mapstructure:"crepe"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ConvWorkers    int    `mapstructure:"conv_workers"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
}

// ConvertConfig carries the default conversion knobs. Each maps to a request
// field and can be overridden per call.
type ConvertConfig struct {
	PitchMethod  string  `mapstructure:"pitch_method"`
	IndexRate    float64 `mapstructure:"index_rate"`
	FilterRadius int     `mapstructure:"filter_radius"`
	RMSMixRate   float64 `mapstructure:"rms_mix_rate"`
	Protect      float64 `mapstructure:"protect"`
	F0Min        float64 `mapstructure:"f0_min"`
	F0Max        float64 `mapstructure:"f0_max"`
	CrepeHop     int     `mapstructure:"crepe_hop"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			ModelsDir:      "models",
			ContentEncoder: "assets/hubert.onnx",
			RMVPE:          "assets/rmvpe.onnx",
			FCPE:           "assets/fcpe.onnx",
			Crepe:          "assets/crepe.onnx",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ConvWorkers:    1,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxConcurrent:  2,
			RequestTimeout: 300,
		},
		Convert: ConvertConfig{
			PitchMethod:  "rmvpe+",
			IndexRate:    0,
			FilterRadius: 3,
			RMSMixRate:   0.25,
			Protect:      0.33,
			F0Min:        50,
			F0Max:        1100,
			CrepeHop:     128,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-models-dir", defaults.Paths.ModelsDir, "Directory holding voice model bundles")
	fs.String("paths-content-encoder", defaults.Paths.ContentEncoder, "Path to the content encoder ONNX graph")
	fs.String("paths-rmvpe", defaults.Paths.RMVPE, "Path to the rmvpe pitch ONNX graph")
	fs.String("paths-fcpe", defaults.Paths.FCPE, "Path to the fcpe pitch ONNX graph")
	fs.String("paths-crepe", defaults.Paths.Crepe, "Path to the crepe pitch ONNX graph")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.Int("runtime-conv-workers", defaults.Runtime.ConvWorkers, "Goroutines for the native convolution kernels")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-concurrent", defaults.Server.MaxConcurrent, "Max concurrent conversion requests")
	fs.Int("server-request-timeout-seconds", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.String("convert-pitch-method", defaults.Convert.PitchMethod, "Default pitch method (rmvpe+|fcpe|rmvpe|mangio-crepe|crepe)")
	fs.Float64("convert-index-rate", defaults.Convert.IndexRate, "Default index blend rate [0, 1]")
	fs.Int("convert-filter-radius", defaults.Convert.FilterRadius, "Default pitch median filter radius [0, 7]")
	fs.Float64("convert-rms-mix-rate", defaults.Convert.RMSMixRate, "Default RMS envelope mix rate [0, 1]")
	fs.Float64("convert-protect", defaults.Convert.Protect, "Default unvoiced consonant protection [0, 0.5]")
	fs.Float64("convert-f0-min", defaults.Convert.F0Min, "Default pitch floor in Hz")
	fs.Float64("convert-f0-max", defaults.Convert.F0Max, "Default pitch ceiling in Hz")
	fs.Int("convert-crepe-hop", defaults.Convert.CrepeHop, "Default crepe hop length in samples [8, 512]")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	registerAliases(v)

	v.SetEnvPrefix("POLGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_", "__", "_"))

	if err := v.BindEnv("runtime.ort_library_path", "POLGEN_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("polgen")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.models_dir", c.Paths.ModelsDir)
	v.SetDefault("paths.content_encoder", c.Paths.ContentEncoder)
	v.SetDefault("paths.rmvpe", c.Paths.RMVPE)
	v.SetDefault("paths.fcpe", c.Paths.FCPE)
	v.SetDefault("paths.crepe", c.Paths.Crepe)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.conv_workers", c.Runtime.ConvWorkers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_concurrent", c.Server.MaxConcurrent)
	v.SetDefault("server.request_timeout_seconds", c.Server.RequestTimeout)
	v.SetDefault("convert.pitch_method", c.Convert.PitchMethod)
	v.SetDefault("convert.index_rate", c.Convert.IndexRate)
	v.SetDefault("convert.filter_radius", c.Convert.FilterRadius)
	v.SetDefault("convert.rms_mix_rate", c.Convert.RMSMixRate)
	v.SetDefault("convert.protect", c.Convert.Protect)
	v.SetDefault("convert.f0_min", c.Convert.F0Min)
	v.SetDefault("convert.f0_max", c.Convert.F0Max)
	v.SetDefault("convert.crepe_hop", c.Convert.CrepeHop)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.models_dir", "paths-models-dir")
	v.RegisterAlias("paths.content_encoder", "paths-content-encoder")
	v.RegisterAlias("paths.rmvpe", "paths-rmvpe")
	v.RegisterAlias("paths.fcpe", "paths-fcpe")
	v.RegisterAlias("paths.crepe", "paths-crepe")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.conv_workers", "runtime-conv-workers")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_concurrent", "server-max-concurrent")
	v.RegisterAlias("server.request_timeout_seconds", "server-request-timeout-seconds")
	v.RegisterAlias("convert.pitch_method", "convert-pitch-method")
	v.RegisterAlias("convert.index_rate", "convert-index-rate")
	v.RegisterAlias("convert.filter_radius", "convert-filter-radius")
	v.RegisterAlias("convert.rms_mix_rate", "convert-rms-mix-rate")
	v.RegisterAlias("convert.protect", "convert-protect")
	v.RegisterAlias("convert.f0_min", "convert-f0-min")
	v.RegisterAlias("convert.f0_max", "convert-f0-max")
	v.RegisterAlias("convert.crepe_hop", "convert-crepe-hop")
}
