package util

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that decodes from an integer or a unit string such as "10MB".
type ByteSize int64

// UnmarshalYAML implements custom YAML unmarshaling for ByteSize
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be an integer or a string such as \"10MB\"", value.Line)
	}
	n, err := ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for ByteSize
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := ParseBytes(s)
		if err != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("size must be an integer or a string such as \"10MB\"")
	}
	if n < 0 {
		return fmt.Errorf("negative size %d", n)
	}
	*b = ByteSize(n)
	return nil
}

// Duration decodes from a duration string such as "24h" or from an integer
// nanosecond count, which is how time.Duration encodes.
type Duration time.Duration

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n), nil
	}
	return time.ParseDuration(s)
}

// UnmarshalYAML implements custom YAML unmarshaling for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string such as \"24h\"", value.Line)
	}
	v, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string such as \"24h\" or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}
