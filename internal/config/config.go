package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	S3        S3Config
	Redis     RedisConfig
	Codec     CodecConfig
	Watermark WatermarkConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type S3Config struct {
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	BucketName       string
	ProvenanceBucket string
	Region           string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CodecConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type WatermarkConfig struct {
	// MaxBytes is the hard byte budget an artifact must fit before and after
	// embedding.
	MaxBytes int
	// MinConfidence is the decode confidence required for an embed to commit.
	MinConfidence float64
	// MaxPayloadLen guards the codec's encoding capacity.
	MaxPayloadLen int
	// ResultRetention is how long verification records stay readable.
	ResultRetention time.Duration
	// QueueSize bounds the verification worker's job queue.
	QueueSize int
	// DomainName builds public provenance URLs.
	DomainName string
}

func Load() (*Config, error) {
	viper.SetDefault("SERVER_HOST", "localhost")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_ACCESS_KEY_ID", "")
	viper.SetDefault("S3_SECRET_ACCESS_KEY", "")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("S3_BUCKET_NAME", "images")
	viper.SetDefault("PROVENANCE_PUBLIC_BUCKET", "")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("REDIS_ADDRESS", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CODEC_ENDPOINT", "http://localhost:9090")
	viper.SetDefault("CODEC_TIMEOUT", "60s")
	viper.SetDefault("WATERMARK_MAX_BYTES", 1000000)
	viper.SetDefault("WATERMARK_MIN_CONFIDENCE", 0.8)
	viper.SetDefault("WATERMARK_MAX_PAYLOAD_LEN", 16)
	viper.SetDefault("RESULT_RETENTION", "24h")
	viper.SetDefault("VERIFY_QUEUE_SIZE", 64)
	viper.SetDefault("DOMAIN_NAME", "localhost")

	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("SERVER_HOST"),
			Port: viper.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Endpoint:         viper.GetString("S3_ENDPOINT"),
			AccessKeyID:      viper.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey:  viper.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:           viper.GetBool("S3_USE_SSL"),
			BucketName:       viper.GetString("S3_BUCKET_NAME"),
			ProvenanceBucket: viper.GetString("PROVENANCE_PUBLIC_BUCKET"),
			Region:           viper.GetString("S3_REGION"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("REDIS_ADDRESS"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Codec: CodecConfig{
			Endpoint: viper.GetString("CODEC_ENDPOINT"),
			Timeout:  viper.GetDuration("CODEC_TIMEOUT"),
		},
		Watermark: WatermarkConfig{
			MaxBytes:        viper.GetInt("WATERMARK_MAX_BYTES"),
			MinConfidence:   viper.GetFloat64("WATERMARK_MIN_CONFIDENCE"),
			MaxPayloadLen:   viper.GetInt("WATERMARK_MAX_PAYLOAD_LEN"),
			ResultRetention: viper.GetDuration("RESULT_RETENTION"),
			QueueSize:       viper.GetInt("VERIFY_QUEUE_SIZE"),
			DomainName:      viper.GetString("DOMAIN_NAME"),
		},
	}

	return cfg, nil
}
