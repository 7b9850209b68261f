package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (optional), merges config.<APP_ENVIRONMENT>.yaml
// over it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return build(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Zero is a meaningful sampling value, so these cannot be defaulted
	// after unmarshalling.
	v.SetDefault("recommendation.temperature", 0.4)
	v.SetDefault("recommendation.top_p", 1.0)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills fields from the conventional environment variable
// names that do not follow the section_key pattern.
func overrideEmptyConfig(cfg *Config) {
	if val := os.Getenv("PORT"); val != "" {
		cfg.Server.Port = val
	}
	if cfg.Recommendation.APIKey == "" {
		cfg.Recommendation.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if val := os.Getenv("MODEL_PATH"); val != "" {
		cfg.Model.Path = val
	}
	if val := os.Getenv("LABELS_DIR"); val != "" {
		cfg.Model.LabelsDir = val
	}
	if cfg.Model.ONNXLibrary == "" {
		cfg.Model.ONNXLibrary = os.Getenv("ONNX_LIBRARY_PATH")
	}
	if cfg.Cache.Redis.Address == "" {
		cfg.Cache.Redis.Address = os.Getenv("REDIS_ADDRESS")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "leafcheck-api"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 90000
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}

	if cfg.Model.InputName == "" {
		cfg.Model.InputName = "input"
	}
	if cfg.Model.OutputName == "" {
		cfg.Model.OutputName = "output"
	}
	if cfg.Model.ImageSize == 0 {
		cfg.Model.ImageSize = 224
	}
	if cfg.Model.Layout == "" {
		cfg.Model.Layout = "nhwc"
	}
	if cfg.Model.Resample == "" {
		cfg.Model.Resample = "nearest"
	}

	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "uploads"
	}

	if cfg.Recommendation.BaseURL == "" {
		cfg.Recommendation.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Recommendation.Model == "" {
		cfg.Recommendation.Model = "gemini-2.0-flash-exp"
	}
	if cfg.Recommendation.TopK == 0 {
		cfg.Recommendation.TopK = 32
	}
	if cfg.Recommendation.MaxOutputTokens == 0 {
		cfg.Recommendation.MaxOutputTokens = 4096
	}
	if cfg.Recommendation.Timeout == 0 {
		cfg.Recommendation.Timeout = 60000
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 86400
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if cfg.Model.LabelsDir == "" {
		return fmt.Errorf("model.labels_dir is required")
	}
	if cfg.Model.ImageSize < 1 {
		return fmt.Errorf("model.image_size must be positive, got %d", cfg.Model.ImageSize)
	}
	switch cfg.Model.Layout {
	case "nhwc", "nchw":
	default:
		return fmt.Errorf("model.layout must be nhwc or nchw, got %q", cfg.Model.Layout)
	}
	switch cfg.Model.Resample {
	case "bilinear", "nearest", "lanczos3":
	default:
		return fmt.Errorf("model.resample must be bilinear, nearest or lanczos3, got %q", cfg.Model.Resample)
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	return nil
}
