package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

// handleHelp processes HELP command
func (ch *CommandHandler) handleHelp() string {
	return `Available commands:
REGISTER stream=<id> [dir=<path>] [max_size=<bytes|10MB>] [max_count=<N>] [compress=<bool>] [codec=<gzip|zstd|lz4|snappy>] [max_age=<dur>] [max_rotated_age=<dur>] - register stream
DEREGISTER stream=<id> - stop managing stream (files are kept)
LIST - list registered streams
WRITE stream=<id> message=<text> - append a line to the active segment
ROTATE stream=<id> - force rotation of the active segment
SIZE stream=<id> - total bytes used by the stream
SEGMENTS stream=<id> - list rotated segments, newest first
SWEEP stream=<id> - run retention now
CONFIG stream=<id> [max_size=..] [max_count=..] [compress=..] [codec=..] [max_age=..] [max_rotated_age=..] - update limits
STATUS stream=<id> - stream status as JSON
HELP - show this help
EXIT - exit`
}

func errorResponse(err error) string {
	if errors.Is(err, types.ErrInvalidConfig) {
		return fmt.Sprintf("ERROR: invalid config: %v", err)
	}
	return fmt.Sprintf("ERROR: %v", err)
}

func requireStream(args map[string]string, usage string) (string, string) {
	id := args["stream"]
	if id == "" {
		return "", "ERROR: missing stream parameter. Expected: " + usage
	}
	return id, ""
}

// applyRetentionArgs overrides rc with the limits present in args.
func applyRetentionArgs(rc types.RetentionConfig, args map[string]string) (types.RetentionConfig, error) {
	if v, ok := args["max_size"]; ok {
		n, err := util.ParseBytes(v)
		if err != nil {
			return rc, fmt.Errorf("max_size: %w", err)
		}
		rc.MaxSegmentSize = n
	}
	if v, ok := args["max_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rc, fmt.Errorf("max_count must be an integer")
		}
		rc.MaxSegmentCount = n
	}
	if v, ok := args["compress"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rc, fmt.Errorf("compress must be true or false")
		}
		rc.Compress = b
	}
	if v, ok := args["codec"]; ok {
		rc.CompressionType = strings.ToLower(v)
	}
	for key, dst := range map[string]*time.Duration{"max_age": &rc.MaxSegmentAge, "max_rotated_age": &rc.MaxRotatedAge} {
		if v, ok := args[key]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return rc, fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return rc, nil
}

// handleList processes LIST command
func (ch *CommandHandler) handleList() string {
	ids := ch.Supervisor.Streams()
	if len(ids) == 0 {
		return "(no streams)"
	}
	return strings.Join(ids, ", ")
}

// handleRegister processes REGISTER command
func (ch *CommandHandler) handleRegister(rest string) string {
	args := parseKeyValueArgs(rest)
	id, bad := requireStream(args, "REGISTER stream=<id> [max_size=<bytes>] [max_count=<N>] ...")
	if bad != "" {
		return bad
	}

	rc, err := applyRetentionArgs(ch.Defaults, args)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	st, err := ch.Supervisor.RegisterPath(id, args["dir"], rc)
	if err != nil {
		return errorResponse(err)
	}
	return fmt.Sprintf("✅ Stream '%s' registered in %s", id, st.Dir())
}

// handleDeregister processes DEREGISTER command
func (ch *CommandHandler) handleDeregister(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "DEREGISTER stream=<id>")
	if bad != "" {
		return bad
	}
	if err := ch.Supervisor.Deregister(id); err != nil {
		return errorResponse(err)
	}
	return fmt.Sprintf("🗑️ Stream '%s' deregistered", id)
}

// handleWrite processes WRITE command
func (ch *CommandHandler) handleWrite(rest string) string {
	args := parseKeyValueArgs(rest)
	id, bad := requireStream(args, "WRITE stream=<id> message=<text>")
	if bad != "" {
		return bad
	}
	msg, ok := args["message"]
	if !ok {
		return "ERROR: missing message parameter. Expected: WRITE stream=<id> message=<text>"
	}

	n, err := ch.Supervisor.Write(id, []byte(msg+"\n"))
	if err != nil {
		return errorResponse(err)
	}
	return fmt.Sprintf("📤 %d bytes written to '%s'", n, id)
}

// handleRotate processes ROTATE command
func (ch *CommandHandler) handleRotate(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "ROTATE stream=<id>")
	if bad != "" {
		return bad
	}
	ev, err := ch.Supervisor.ForceRotate(id)
	if err != nil {
		return errorResponse(err)
	}
	return fmt.Sprintf("🔄 Stream '%s' rotated (%d bytes closed as seq %d)", id, ev.Old.Size, ev.Old.Seq)
}

// handleSize processes SIZE command
func (ch *CommandHandler) handleSize(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "SIZE stream=<id>")
	if bad != "" {
		return bad
	}
	n, err := ch.Supervisor.TotalSpaceUsed(id)
	if err != nil {
		return errorResponse(err)
	}
	return strconv.FormatInt(n, 10)
}

// handleSegments processes SEGMENTS command
func (ch *CommandHandler) handleSegments(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "SEGMENTS stream=<id>")
	if bad != "" {
		return bad
	}
	segs, err := ch.Supervisor.ListSegments(id)
	if err != nil {
		return errorResponse(err)
	}
	if len(segs) == 0 {
		return "(no rotated segments)"
	}
	lines := make([]string, 0, len(segs))
	for _, s := range segs {
		lines = append(lines, s.String())
	}
	return strings.Join(lines, "\n")
}

// handleSweep processes SWEEP command
func (ch *CommandHandler) handleSweep(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "SWEEP stream=<id>")
	if bad != "" {
		return bad
	}
	res, err := ch.Supervisor.Sweep(id)
	if err != nil {
		return errorResponse(err)
	}
	if len(res.Errors) > 0 {
		return fmt.Sprintf("⚠️ Sweep of '%s' deleted %d segments, %d failed: %v", id, len(res.Deleted), len(res.Errors), errors.Join(res.Errors...))
	}
	return fmt.Sprintf("🧹 Sweep of '%s' deleted %d segments", id, len(res.Deleted))
}

// handleConfig processes CONFIG command
func (ch *CommandHandler) handleConfig(rest string) string {
	args := parseKeyValueArgs(rest)
	id, bad := requireStream(args, "CONFIG stream=<id> [max_size=..] [max_count=..] ...")
	if bad != "" {
		return bad
	}
	st, err := ch.Supervisor.Stream(id)
	if err != nil {
		return errorResponse(err)
	}

	rc, err := applyRetentionArgs(st.Config(), args)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	if err := ch.Supervisor.UpdateConfig(id, rc); err != nil {
		return errorResponse(err)
	}
	return fmt.Sprintf("✅ Stream '%s' config updated", id)
}

type streamStatus struct {
	Stream   string                `json:"stream"`
	Dir      string                `json:"dir"`
	Config   types.RetentionConfig `json:"config"`
	Active   types.Segment         `json:"active"`
	Segments []types.Segment       `json:"segments"`
	Bytes    int64                 `json:"bytes"`
}

// handleStatus processes STATUS command
func (ch *CommandHandler) handleStatus(rest string) string {
	id, bad := requireStream(parseKeyValueArgs(rest), "STATUS stream=<id>")
	if bad != "" {
		return bad
	}
	st, err := ch.Supervisor.Stream(id)
	if err != nil {
		return errorResponse(err)
	}

	// every field comes from st, so a concurrent DEREGISTER cannot mix views
	data, err := json.Marshal(streamStatus{
		Stream:   st.ID(),
		Dir:      st.Dir(),
		Config:   st.Config(),
		Active:   st.Active(),
		Segments: st.Segments(),
		Bytes:    st.TotalSize(),
	})
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return string(data)
}
