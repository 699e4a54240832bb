package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/downfa11-org/logrotor/util"
	"gopkg.in/yaml.v3"
)

// RetentionConfig holds the per-stream rotation and retention limits.
type RetentionConfig struct {
	MaxSegmentSize  int64         `yaml:"max_segment_size" json:"max_segment_size"`
	MaxSegmentCount int           `yaml:"max_segment_count" json:"max_segment_count"`
	Compress        bool          `yaml:"compress" json:"compress"`
	CompressionType string        `yaml:"compression_type" json:"compression_type"`
	MaxSegmentAge   time.Duration `yaml:"max_segment_age" json:"max_segment_age"`
	MaxRotatedAge   time.Duration `yaml:"max_rotated_age" json:"max_rotated_age"`
}

// retentionFile is how RetentionConfig is written in config files: sizes take
// units and ages take duration strings, in YAML and JSON alike.
type retentionFile struct {
	MaxSegmentSize  util.ByteSize `yaml:"max_segment_size" json:"max_segment_size"`
	MaxSegmentCount int           `yaml:"max_segment_count" json:"max_segment_count"`
	Compress        bool          `yaml:"compress" json:"compress"`
	CompressionType string        `yaml:"compression_type" json:"compression_type"`
	MaxSegmentAge   util.Duration `yaml:"max_segment_age" json:"max_segment_age"`
	MaxRotatedAge   util.Duration `yaml:"max_rotated_age" json:"max_rotated_age"`
}

func (c RetentionConfig) file() retentionFile {
	return retentionFile{
		MaxSegmentSize:  util.ByteSize(c.MaxSegmentSize),
		MaxSegmentCount: c.MaxSegmentCount,
		Compress:        c.Compress,
		CompressionType: c.CompressionType,
		MaxSegmentAge:   util.Duration(c.MaxSegmentAge),
		MaxRotatedAge:   util.Duration(c.MaxRotatedAge),
	}
}

func (f retentionFile) config() RetentionConfig {
	return RetentionConfig{
		MaxSegmentSize:  int64(f.MaxSegmentSize),
		MaxSegmentCount: f.MaxSegmentCount,
		Compress:        f.Compress,
		CompressionType: f.CompressionType,
		MaxSegmentAge:   time.Duration(f.MaxSegmentAge),
		MaxRotatedAge:   time.Duration(f.MaxRotatedAge),
	}
}

// UnmarshalYAML overlays the decoded fields on c, so absent keys keep their value.
func (c *RetentionConfig) UnmarshalYAML(value *yaml.Node) error {
	f := c.file()
	if err := value.Decode(&f); err != nil {
		return err
	}
	*c = f.config()
	return nil
}

// UnmarshalJSON overlays the decoded fields on c, so absent keys keep their value.
func (c *RetentionConfig) UnmarshalJSON(data []byte) error {
	f := c.file()
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = f.config()
	return nil
}

// Validate returns ErrInvalidConfig when the limits cannot be applied.
func (c RetentionConfig) Validate() error {
	if c.MaxSegmentSize <= 0 {
		return fmt.Errorf("%w: max_segment_size must be > 0, got %d", ErrInvalidConfig, c.MaxSegmentSize)
	}
	if c.MaxSegmentCount < 0 {
		return fmt.Errorf("%w: max_segment_count must be >= 0, got %d", ErrInvalidConfig, c.MaxSegmentCount)
	}
	if c.MaxSegmentAge < 0 || c.MaxRotatedAge < 0 {
		return fmt.Errorf("%w: ages must not be negative", ErrInvalidConfig)
	}
	if !util.ValidCodec(c.CompressionType) {
		return fmt.Errorf("%w: unsupported compression_type %q", ErrInvalidConfig, c.CompressionType)
	}
	if c.Compress && c.CompressionType == util.CodecNone {
		return fmt.Errorf("%w: compress enabled with compression_type none", ErrInvalidConfig)
	}
	return nil
}

// Codec returns the effective compression codec, defaulting to gzip.
func (c RetentionConfig) Codec() string {
	if c.CompressionType == "" {
		return util.CodecGzip
	}
	return c.CompressionType
}
