package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config は --config で読み込むYAML設定
type Config struct {
	Script      string     `yaml:"script"`
	Blank       string     `yaml:"blank"`
	MKV         string     `yaml:"mkv"`
	OutputIndex int        `yaml:"output_index"`
	Output      string     `yaml:"output"`
	Container   string     `yaml:"container"`
	Start       int        `yaml:"start"`
	End         int        `yaml:"end"`
	Requests    int        `yaml:"requests"`
	Sync        bool       `yaml:"sync"`
	Realtime    bool       `yaml:"realtime"`
	Progress    bool       `yaml:"progress"`
	Workers     int        `yaml:"workers"`
	Bitrate     uint       `yaml:"bitrate"`
	Log         LogOptions `yaml:"log"`
}

// DefaultConfig はフラグ未指定時の値
func DefaultConfig() Config {
	return Config{
		Output:    "-",
		Container: "y4m",
		End:       -1,
		Bitrate:   1000,
		Log:       LogOptions{Level: "info", Format: "console"},
	}
}

// LoadConfig はYAMLファイルを読み込みDefaultConfigに重ねる
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
