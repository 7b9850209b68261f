package config

import "time"

// Config is the service configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Model          ModelConfig          `mapstructure:"model"`
	Uploads        UploadsConfig        `mapstructure:"uploads"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           string `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"` // milliseconds
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	CORSEnabled    bool   `mapstructure:"cors_enabled"`
}

// ModelConfig describes the classifier files read once at startup.
type ModelConfig struct {
	Path         string `mapstructure:"path"`
	MetadataPath string `mapstructure:"metadata_path"`
	LabelsDir    string `mapstructure:"labels_dir"`
	ONNXLibrary  string `mapstructure:"onnx_library"`
	InputName    string `mapstructure:"input_name"`
	OutputName   string `mapstructure:"output_name"`
	ImageSize    int    `mapstructure:"image_size"`
	Layout       string `mapstructure:"layout"`   // nhwc | nchw
	Resample     string `mapstructure:"resample"` // bilinear | nearest | lanczos3
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir"`
}

// RecommendationConfig holds the text-generation settings. An empty APIKey
// disables the recommendation endpoint only.
type RecommendationConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"top_p"`
	TopK            int     `mapstructure:"top_k"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Timeout         int     `mapstructure:"timeout"` // milliseconds
}

type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
	TTL   int         `mapstructure:"ttl"` // seconds
}

// RedisConfig enables the recommendation cache when Address is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
