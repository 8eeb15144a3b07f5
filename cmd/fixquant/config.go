package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the fixquant configuration file
// (~/.config/fixquant/config.yaml). Numeric fields are pointers so an unset
// value can be told apart from zero.
type Config struct {
	OutputDir string `yaml:"output_dir"`

	WeightBits *int64   `yaml:"weight_bits"`
	BiasBits   *int64   `yaml:"bias_bits"`
	ScaleBits  *int64   `yaml:"scale_bits"`
	MaxShift   *int64   `yaml:"max_shift"`
	OutScale   *float64 `yaml:"out_scale"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fixquant", "config.yaml")
}

// applyQuantizeConfig applies config file defaults to quantize command
// variables when the corresponding CLI flag was not explicitly set.
func applyQuantizeConfig(c *cli.Command, cfg Config,
	outDir *string, weightBits, biasBits, scaleBits, maxShift *int64, outScale *float64,
	logLevel, logFormat *string,
) {
	if cfg.OutputDir != "" && !c.IsSet("out") {
		*outDir = cfg.OutputDir
	}
	if cfg.WeightBits != nil && !c.IsSet("weight-bits") {
		*weightBits = *cfg.WeightBits
	}
	if cfg.BiasBits != nil && !c.IsSet("bias-bits") {
		*biasBits = *cfg.BiasBits
	}
	if cfg.ScaleBits != nil && !c.IsSet("scale-bits") {
		*scaleBits = *cfg.ScaleBits
	}
	if cfg.MaxShift != nil && !c.IsSet("max-shift") {
		*maxShift = *cfg.MaxShift
	}
	if cfg.OutScale != nil && !c.IsSet("out-scale") {
		*outScale = *cfg.OutScale
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		*logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		*logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or can't be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
