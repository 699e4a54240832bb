package disk

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/downfa11-org/logrotor/util"
)

const (
	logSuffix     = ".log"
	nextSuffix    = ".next"
	partialSuffix = ".partial"
	deletedSuffix = ".deleted"
)

// ActivePath is <dir>/<stream>.log
func ActivePath(dir, stream string) string {
	return filepath.Join(dir, stream+logSuffix)
}

// NextPath is where a replacement active segment is prepared during rotation.
func NextPath(dir, stream string) string {
	return ActivePath(dir, stream) + nextSuffix
}

// RotatedPath is <dir>/<stream>.log.<seq>[.<ext>]
func RotatedPath(dir, stream string, seq int, codec string) string {
	return fmt.Sprintf("%s.%d%s", ActivePath(dir, stream), seq, util.CodecExtension(codec))
}

// PartialPath names temporary compression output. It never parses as a rotated segment.
func PartialPath(dir, stream, id string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.%s%s", stream, id, partialSuffix))
}

// TombstonePath names a rotated segment that is being deleted. Like PartialPath it
// is hidden from listings and removed by reconciliation.
func TombstonePath(dir, stream, id string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.%s%s", stream, id, deletedSuffix))
}

// Entry is a directory entry that belongs to a stream.
type Entry struct {
	Name     string
	Seq      int
	Codec    string
	Active   bool
	Leftover bool
}

// ParseName classifies a file name relative to a stream. ok is false for foreign files.
func ParseName(stream, name string) (Entry, bool) {
	base := stream + logSuffix
	switch {
	case name == base:
		return Entry{Name: name, Active: true}, true
	case name == base+nextSuffix:
		return Entry{Name: name, Leftover: true}, true
	case strings.HasPrefix(name, "."+stream+".") &&
		(strings.HasSuffix(name, partialSuffix) || strings.HasSuffix(name, deletedSuffix)):
		return Entry{Name: name, Leftover: true}, true
	case !strings.HasPrefix(name, base+"."):
		return Entry{}, false
	}

	rest := strings.TrimPrefix(name, base+".")
	codec := util.CodecForPath(rest)
	rest = strings.TrimSuffix(rest, util.CodecExtension(codec))

	seq, err := strconv.Atoi(rest)
	if err != nil || seq <= 0 || strconv.Itoa(seq) != rest {
		return Entry{}, false
	}
	return Entry{Name: name, Seq: seq, Codec: codec}, true
}
