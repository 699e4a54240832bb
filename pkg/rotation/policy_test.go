package rotation_test

import (
	"testing"
	"time"

	"github.com/downfa11-org/logrotor/pkg/rotation"
	"github.com/downfa11-org/logrotor/pkg/types"
)

func TestShouldRotate(t *testing.T) {
	sizeOnly := types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 2}
	withAge := types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 2, MaxSegmentAge: time.Hour}

	tests := []struct {
		name string
		size int64
		age  time.Duration
		cfg  types.RetentionConfig
		want bool
	}{
		{"below threshold", 99, 0, sizeOnly, false},
		{"exactly at threshold", 100, 0, sizeOnly, true},
		{"overshoot by one write", 150, 0, sizeOnly, true},
		{"empty segment", 0, 24 * time.Hour, sizeOnly, false},
		{"age ignored when disabled", 10, 48 * time.Hour, sizeOnly, false},
		{"age reached", 10, time.Hour, withAge, true},
		{"age not reached", 10, 59 * time.Minute, withAge, false},
		{"age on empty segment", 0, 2 * time.Hour, withAge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rotation.ShouldRotate(tt.size, tt.age, tt.cfg); got != tt.want {
				t.Errorf("ShouldRotate(%d, %s) = %v; want %v", tt.size, tt.age, got, tt.want)
			}
			if got := (rotation.Default{}).ShouldRotate(tt.size, tt.age, tt.cfg); got != tt.want {
				t.Errorf("Default.ShouldRotate(%d, %s) = %v; want %v", tt.size, tt.age, got, tt.want)
			}
		})
	}
}
