package config

import (
	"os"
	"strings"

	"github.com/downfa11-org/logrotor/util"
)

const defaultMaxSegmentSize = 10 << 20 // 10MB

func (cfg *Config) Normalize() {
	if cfg.HealthCheckPort <= 0 {
		cfg.HealthCheckPort = 9080
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}

	// segment storage
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "rotor-logs"
	}

	// pipeline
	if cfg.RetentionCheckIntervalMS <= 0 {
		cfg.RetentionCheckIntervalMS = 30000
	}
	if cfg.RotationTimeoutMS <= 0 {
		cfg.RotationTimeoutMS = 5000
	}
	if cfg.CompressionTimeoutMS <= 0 {
		cfg.CompressionTimeoutMS = 120000
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 64
	}

	// default retention
	r := &cfg.DefaultRetention
	if r.MaxSegmentSize <= 0 {
		r.MaxSegmentSize = defaultMaxSegmentSize
	}
	if r.MaxSegmentCount < 0 {
		util.Warn("Invalid max_segment_count (%d), defaulting to 5", r.MaxSegmentCount)
		r.MaxSegmentCount = 5
	}
	r.CompressionType = strings.ToLower(strings.TrimSpace(r.CompressionType))
	if r.CompressionType == "" || !util.ValidCodec(r.CompressionType) {
		if r.CompressionType != "" {
			util.Warn("Invalid compression_type '%s', defaulting to 'gzip'", r.CompressionType)
		}
		r.CompressionType = util.CodecGzip
	}
	if r.MaxSegmentAge < 0 {
		r.MaxSegmentAge = 0
	}
	if r.MaxRotatedAge < 0 {
		r.MaxRotatedAge = 0
	}

	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		s.ID = strings.TrimSpace(s.ID)
		s.CompressionType = strings.ToLower(strings.TrimSpace(s.CompressionType))
	}
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvBytes(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := util.ParseBytes(v); err == nil {
			*target = n
		} else {
			util.Warn("Ignoring %s=%q: %v", key, v, err)
		}
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
