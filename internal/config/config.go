package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	// SendRateLimit caps message sends per user per minute. Zero disables it.
	SendRateLimit int `mapstructure:"send_rate_limit" yaml:"send_rate_limit"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config holds attachment storage settings. Uploads are disabled when the
// endpoint is empty.
type S3Config struct {
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey     string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey     string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	UseSSL        bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chatsync.db",
		LogLevel:          "info",
		JWTSecret:         "change-me",
		JWTIssuer:         "chatsync",
		JWTAudience:       "chatsync",
		S3: S3Config{
			Bucket: "chatsync-attachments",
		},
	}
}
