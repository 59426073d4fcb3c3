package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Postgres DBConfig
	Redis    RedisConfig
	S3       S3Config
	Logger   Logger
	Worker   WorkerConfig
	Pipeline PipelineConfig
	Media    MediaConfig
	Oracle   OracleConfig
	Storage  StorageConfig
	Tracker  TrackerConfig
}

type ServerConfig struct {
	AppVersion     string
	Port           string
	Mode           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

type WorkerConfig struct {
	WorkerCount   int
	MaxCPUUsage   float64
	QueueSize     int
	CheckInterval time.Duration
}

// PipelineConfig tunes the stream pipeline. BatchSize must be >= 1.
type PipelineConfig struct {
	BatchSize      int
	DefaultFPS     float64
	MinOutputBytes int64
	StrictShape    bool
}

// MediaConfig points at the ffmpeg toolchain. RemuxToolPath overrides
// discovery of the remuxing tool; when empty the RemuxCandidates are tried
// once at startup.
type MediaConfig struct {
	FFmpegPath      string
	FFprobePath     string
	RemuxToolPath   string
	RemuxCandidates []string
	Codecs          []string
	ProbeTimeout    time.Duration
	ExtractTimeout  time.Duration
	MuxTimeout      time.Duration
}

type OracleConfig struct {
	Command     string
	Args        []string
	ReadTimeout time.Duration
}

type StorageConfig struct {
	UploadDir  string
	ScratchDir string
	OutputDir  string
	Backend    string
}

type TrackerConfig struct {
	Backend  string
	TTLHours int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	PgDriver string
	SSLMode  string
}

type RedisConfig struct {
	RedisAddr     string
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	UseTLS        bool
}

type S3Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	OutputBucket string
	Prefix       string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.appVersion", "1.0.0")
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.maxUploadBytes", int64(500*1024*1024))

	v.SetDefault("logger.development", true)
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.level", "info")

	v.SetDefault("worker.workerCount", 2)
	v.SetDefault("worker.maxCPUUsage", 90.0)
	v.SetDefault("worker.queueSize", 32)
	v.SetDefault("worker.checkInterval", 10*time.Second)

	v.SetDefault("pipeline.batchSize", 4)
	v.SetDefault("pipeline.defaultFPS", 30.0)
	v.SetDefault("pipeline.minOutputBytes", int64(1024))
	v.SetDefault("pipeline.strictShape", false)

	v.SetDefault("media.ffmpegPath", "ffmpeg")
	v.SetDefault("media.ffprobePath", "ffprobe")
	v.SetDefault("media.remuxCandidates", []string{"ffmpeg", "/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg", "/opt/homebrew/bin/ffmpeg"})
	v.SetDefault("media.codecs", []string{"libx264", "libopenh264", "mpeg4", "mjpeg"})
	v.SetDefault("media.probeTimeout", 5*time.Second)
	v.SetDefault("media.extractTimeout", 30*time.Second)
	v.SetDefault("media.muxTimeout", 120*time.Second)

	v.SetDefault("oracle.command", "python3")
	v.SetDefault("oracle.args", []string{"-u", "python/matting_worker.py"})
	v.SetDefault("oracle.readTimeout", 60*time.Second)

	v.SetDefault("storage.uploadDir", "uploads")
	v.SetDefault("storage.scratchDir", "scratch")
	v.SetDefault("storage.outputDir", "outputs")
	v.SetDefault("storage.backend", "local")

	v.SetDefault("tracker.backend", "memory")
	v.SetDefault("tracker.ttlHours", 24)

	v.SetDefault("postgres.pgDriver", "pgx")
	v.SetDefault("postgres.sslMode", "disable")
	v.SetDefault("s3.prefix", "outputs")
}

// LoadConfig reads filename on top of the defaults. An empty filename
// yields defaults plus environment overrides only.
func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.Pipeline.BatchSize < 1 {
		log.Printf("pipeline.batchSize %d is invalid, using 1", c.Pipeline.BatchSize)
		c.Pipeline.BatchSize = 1
	}
	return &c, nil
}
