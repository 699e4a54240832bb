package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
	"gopkg.in/yaml.v3"
)

// StreamConfig declares a stream registered at startup. Unset limits inherit
// from DefaultRetention.
type StreamConfig struct {
	ID              string         `yaml:"id" json:"id"`
	Dir             string         `yaml:"dir" json:"dir"`
	MaxSegmentSize  *util.ByteSize `yaml:"max_segment_size" json:"max_segment_size"`
	MaxSegmentCount *int           `yaml:"max_segment_count" json:"max_segment_count"`
	Compress        *bool          `yaml:"compress" json:"compress"`
	CompressionType string         `yaml:"compression_type" json:"compression_type"`
	MaxSegmentAge   util.Duration  `yaml:"max_segment_age" json:"max_segment_age"`
	MaxRotatedAge   util.Duration  `yaml:"max_rotated_age" json:"max_rotated_age"`
}

// Config represents the daemon configuration.
type Config struct {
	// Server settings
	HealthCheckPort int           `yaml:"health_check_port" json:"health.check.port"`
	EnableExporter  bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort    int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel        util.LogLevel `yaml:"log_level" json:"log_level"`
	LogFile         string        `yaml:"log_file" json:"log.file"`

	// Segment storage
	LogDir     string `yaml:"log_dir" json:"log.dir"`
	SyncWrites bool   `yaml:"sync_writes" json:"sync.writes"`

	// Pipeline
	RetentionCheckIntervalMS int `yaml:"retention_check_interval_ms" json:"retention.check.interval.ms"`
	RotationTimeoutMS        int `yaml:"rotation_timeout_ms" json:"rotation.timeout.ms"`
	CompressionTimeoutMS     int `yaml:"compression_timeout_ms" json:"compression.timeout.ms"`
	EventBufferSize          int `yaml:"event_buffer_size" json:"event.buffer.size"`

	// Streams
	DefaultRetention types.RetentionConfig `yaml:"default_retention" json:"default_retention"`
	Streams          []StreamConfig        `yaml:"streams" json:"streams"`
}

type flagValues struct {
	configPath        *string
	logDir            *string
	logLevel          *string
	logFile           *string
	exporter          *string
	exporterPort      *string
	healthPort        *string
	syncWrites        *string
	retentionCheckMS  *string
	rotationTimeoutMS *string
	compressTimeoutMS *string
	eventBuffer       *string
	maxSegmentSize    *string
	maxSegmentCount   *string
	compress          *string
	compressionType   *string
	explicit          map[string]bool
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	return &flagValues{
		configPath:        fs.String("config", "", "Path to YAML/JSON config file"),
		logDir:            fs.String("log-dir", "rotor-logs", "Base directory for stream segments"),
		logLevel:          fs.String("log-level", "info", "Log Level (debug, info, warn, error)"),
		logFile:           fs.String("log-file", "", "Append daemon logs to this file instead of stderr"),
		exporter:          fs.String("exporter", "true", "Enable Prometheus exporter"),
		exporterPort:      fs.String("exporter-port", "9100", "Exporter port"),
		healthPort:        fs.String("health-port", "9080", "Health check server port"),
		syncWrites:        fs.String("sync-writes", "false", "fsync the active segment after every write"),
		retentionCheckMS:  fs.String("retention-check-ms", "30000", "Maintenance interval for retention, pending compression and age rotation (ms)"),
		rotationTimeoutMS: fs.String("rotation-timeout-ms", "5000", "Rotation timeout (ms)"),
		compressTimeoutMS: fs.String("compression-timeout-ms", "120000", "Compression timeout per segment (ms)"),
		eventBuffer:       fs.String("event-buffer", "64", "Rotation event buffer size per stream"),
		maxSegmentSize:    fs.String("max-segment-size", "10MiB", "Default max segment size (bytes, or with KB/MB/GB unit)"),
		maxSegmentCount:   fs.String("max-segment-count", "5", "Default number of rotated segments kept"),
		compress:          fs.String("compress", "false", "Compress rotated segments by default"),
		compressionType:   fs.String("compression-type", "gzip", "Default codec (gzip, zstd, lz4, snappy)"),
	}
}

// LoadConfig reads the process flags, then the config file and LOGROTOR_* env.
func LoadConfig() (*Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load builds a Config from args. Precedence, lowest first: flag defaults,
// config file, LOGROTOR_* environment, explicitly passed flags.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	fv := registerFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fv.explicit = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { fv.explicit[f.Name] = true })

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *fv.configPath == "" {
		*fv.configPath = envPath
	}

	if err := applyDefaults(cfg, fv); err != nil {
		return nil, err
	}

	if *fv.configPath != "" {
		data, err := os.ReadFile(*fv.configPath)
		if err != nil {
			return nil, err
		}

		if strings.HasSuffix(*fv.configPath, ".json") {
			err = json.Unmarshal(data, cfg)
		} else {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", types.ErrInvalidConfig, *fv.configPath, err)
		}
	}

	applyEnv(cfg)
	if err := applyExplicitFlags(cfg, fv); err != nil {
		return nil, err
	}

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, fv *flagValues) error {
	cfg.LogDir = *fv.logDir
	cfg.LogLevel = util.ParseLogLevel(*fv.logLevel)
	cfg.LogFile = *fv.logFile
	cfg.EnableExporter = util.ParseBool(*fv.exporter, true)
	cfg.ExporterPort = util.ParseInt(*fv.exporterPort, 9100)
	cfg.HealthCheckPort = util.ParseInt(*fv.healthPort, 9080)
	cfg.SyncWrites = util.ParseBool(*fv.syncWrites, false)
	cfg.RetentionCheckIntervalMS = util.ParseInt(*fv.retentionCheckMS, 30000)
	cfg.RotationTimeoutMS = util.ParseInt(*fv.rotationTimeoutMS, 5000)
	cfg.CompressionTimeoutMS = util.ParseInt(*fv.compressTimeoutMS, 120000)
	cfg.EventBufferSize = util.ParseInt(*fv.eventBuffer, 64)

	size, err := util.ParseBytes(*fv.maxSegmentSize)
	if err != nil {
		return fmt.Errorf("-max-segment-size: %w", err)
	}
	cfg.DefaultRetention = types.RetentionConfig{
		MaxSegmentSize:  size,
		MaxSegmentCount: util.ParseInt(*fv.maxSegmentCount, 5),
		Compress:        util.ParseBool(*fv.compress, false),
		CompressionType: *fv.compressionType,
	}
	return nil
}

func applyExplicitFlags(cfg *Config, fv *flagValues) error {
	set := fv.explicit

	if set["log-dir"] {
		cfg.LogDir = *fv.logDir
	}
	if set["log-level"] {
		cfg.LogLevel = util.ParseLogLevel(*fv.logLevel)
	}
	if set["log-file"] {
		cfg.LogFile = *fv.logFile
	}
	if set["exporter"] {
		cfg.EnableExporter = util.ParseBool(*fv.exporter, cfg.EnableExporter)
	}
	if set["exporter-port"] {
		cfg.ExporterPort = util.ParseInt(*fv.exporterPort, cfg.ExporterPort)
	}
	if set["health-port"] {
		cfg.HealthCheckPort = util.ParseInt(*fv.healthPort, cfg.HealthCheckPort)
	}
	if set["sync-writes"] {
		cfg.SyncWrites = util.ParseBool(*fv.syncWrites, cfg.SyncWrites)
	}
	if set["retention-check-ms"] {
		cfg.RetentionCheckIntervalMS = util.ParseInt(*fv.retentionCheckMS, cfg.RetentionCheckIntervalMS)
	}
	if set["rotation-timeout-ms"] {
		cfg.RotationTimeoutMS = util.ParseInt(*fv.rotationTimeoutMS, cfg.RotationTimeoutMS)
	}
	if set["compression-timeout-ms"] {
		cfg.CompressionTimeoutMS = util.ParseInt(*fv.compressTimeoutMS, cfg.CompressionTimeoutMS)
	}
	if set["event-buffer"] {
		cfg.EventBufferSize = util.ParseInt(*fv.eventBuffer, cfg.EventBufferSize)
	}
	if set["max-segment-size"] {
		size, err := util.ParseBytes(*fv.maxSegmentSize)
		if err != nil {
			return fmt.Errorf("-max-segment-size: %w", err)
		}
		cfg.DefaultRetention.MaxSegmentSize = size
	}
	if set["max-segment-count"] {
		cfg.DefaultRetention.MaxSegmentCount = util.ParseInt(*fv.maxSegmentCount, cfg.DefaultRetention.MaxSegmentCount)
	}
	if set["compress"] {
		cfg.DefaultRetention.Compress = util.ParseBool(*fv.compress, cfg.DefaultRetention.Compress)
	}
	if set["compression-type"] {
		cfg.DefaultRetention.CompressionType = *fv.compressionType
	}
	return nil
}

func applyEnv(cfg *Config) {
	overrideEnvString(&cfg.LogDir, "LOGROTOR_LOG_DIR")
	if v := os.Getenv("LOGROTOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
	overrideEnvString(&cfg.LogFile, "LOGROTOR_LOG_FILE")
	overrideEnvBool(&cfg.EnableExporter, "LOGROTOR_ENABLE_EXPORTER")
	overrideEnvInt(&cfg.ExporterPort, "LOGROTOR_EXPORTER_PORT")
	overrideEnvInt(&cfg.HealthCheckPort, "LOGROTOR_HEALTH_CHECK_PORT")
	overrideEnvBool(&cfg.SyncWrites, "LOGROTOR_SYNC_WRITES")
	overrideEnvInt(&cfg.RetentionCheckIntervalMS, "LOGROTOR_RETENTION_CHECK_INTERVAL_MS")
	overrideEnvInt(&cfg.RotationTimeoutMS, "LOGROTOR_ROTATION_TIMEOUT_MS")
	overrideEnvInt(&cfg.CompressionTimeoutMS, "LOGROTOR_COMPRESSION_TIMEOUT_MS")
	overrideEnvInt(&cfg.EventBufferSize, "LOGROTOR_EVENT_BUFFER_SIZE")
	overrideEnvBytes(&cfg.DefaultRetention.MaxSegmentSize, "LOGROTOR_MAX_SEGMENT_SIZE")
	overrideEnvInt(&cfg.DefaultRetention.MaxSegmentCount, "LOGROTOR_MAX_SEGMENT_COUNT")
	overrideEnvBool(&cfg.DefaultRetention.Compress, "LOGROTOR_COMPRESS")
	overrideEnvString(&cfg.DefaultRetention.CompressionType, "LOGROTOR_COMPRESSION_TYPE")
}

// Retention resolves the limits of s on top of defaults.
func (s StreamConfig) Retention(defaults types.RetentionConfig) (types.RetentionConfig, error) {
	rc := defaults
	if s.MaxSegmentSize != nil {
		rc.MaxSegmentSize = int64(*s.MaxSegmentSize)
	}
	if s.MaxSegmentCount != nil {
		rc.MaxSegmentCount = *s.MaxSegmentCount
	}
	if s.Compress != nil {
		rc.Compress = *s.Compress
	}
	if s.CompressionType != "" {
		rc.CompressionType = s.CompressionType
	}
	if s.MaxSegmentAge != 0 {
		rc.MaxSegmentAge = time.Duration(s.MaxSegmentAge)
	}
	if s.MaxRotatedAge != 0 {
		rc.MaxRotatedAge = time.Duration(s.MaxRotatedAge)
	}
	if err := rc.Validate(); err != nil {
		return rc, fmt.Errorf("stream %s: %w", s.ID, err)
	}
	return rc, nil
}

// Validate checks the static stream list.
func (cfg *Config) Validate() error {
	seen := make(map[string]bool, len(cfg.Streams))
	for _, s := range cfg.Streams {
		if s.ID == "" {
			return fmt.Errorf("%w: stream without id", types.ErrInvalidConfig)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: stream %s declared twice", types.ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
		if _, err := s.Retention(cfg.DefaultRetention); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) RetentionCheckInterval() time.Duration {
	return time.Duration(cfg.RetentionCheckIntervalMS) * time.Millisecond
}

func (cfg *Config) RotationTimeout() time.Duration {
	return time.Duration(cfg.RotationTimeoutMS) * time.Millisecond
}

func (cfg *Config) CompressionTimeout() time.Duration {
	return time.Duration(cfg.CompressionTimeoutMS) * time.Millisecond
}
