package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Model    ModelConfig    `json:"model" yaml:"model"`
	Gate     GateConfig     `json:"gate" yaml:"gate"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ModelConfig locates the model artifact and its labels
type ModelConfig struct {
	Path           string `json:"path" yaml:"path"`
	LabelsPath     string `json:"labels_path" yaml:"labels_path"`
	LibraryPath    string `json:"library_path" yaml:"library_path"`
	IntraOpThreads int    `json:"intra_op_threads" yaml:"intra_op_threads"`
}

// GateConfig holds the color gate settings. Threshold is a percentage (0-100).
type GateConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Threshold float64 `json:"threshold_pct" yaml:"threshold_pct"`
}

// PipelineConfig holds per-request pipeline settings
type PipelineConfig struct {
	TopK                    int `json:"top_k" yaml:"top_k"`
	MaxConcurrentInferences int `json:"max_concurrent_inferences" yaml:"max_concurrent_inferences"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string   `json:"port" yaml:"port"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins"`
	MaxUploadBytes int64    `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// LoggingConfig selects log level and encoding
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:       "./model/model.onnx",
			LabelsPath: "./model/labels.json",
		},
		Gate: GateConfig{
			Enabled:   true,
			Threshold: 20.0,
		},
		Pipeline: PipelineConfig{
			TopK:                    5,
			MaxConcurrentInferences: runtime.NumCPU(),
		},
		Server: ServerConfig{
			Port:           "8000",
			CORSOrigins:    []string{"http://localhost:5173"},
			MaxUploadBytes: 20 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides values from the environment
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("LABELS_PATH"); v != "" {
		c.Model.LabelsPath = v
	}
	if v := os.Getenv("ORT_LIBRARY_PATH"); v != "" {
		c.Model.LibraryPath = v
	}
	if v := os.Getenv("GATE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GATE_THRESHOLD: %w", err)
		}
		c.Gate.Threshold = f
	}
	if v := os.Getenv("GATE_ENABLED"); v != "" {
		c.Gate.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Gate.Threshold < 0 || c.Gate.Threshold > 100 {
		return fmt.Errorf("gate.threshold_pct must be between 0 and 100")
	}

	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.top_k must be positive")
	}

	if c.Pipeline.MaxConcurrentInferences < 1 {
		return fmt.Errorf("pipeline.max_concurrent_inferences must be positive")
	}

	if c.Model.IntraOpThreads < 0 {
		return fmt.Errorf("model.intra_op_threads cannot be negative")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server.port cannot be empty")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

// LoadLabels reads a JSON array of class labels
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}

	return labels, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "fruit-ripeness", "config.yaml")
}
