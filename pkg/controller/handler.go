// Package controller turns text commands into supervisor calls. It backs the
// interactive console and the stdin pipe of the daemon.
package controller

import (
	"strings"

	"github.com/downfa11-org/logrotor/pkg/supervisor"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

// ExitSignal is returned by HandleCommand for EXIT; callers end their session.
const ExitSignal = "EXIT"

type CommandHandler struct {
	Supervisor *supervisor.Supervisor
	// Defaults seed REGISTER; explicit arguments override them.
	Defaults types.RetentionConfig
}

func NewCommandHandler(sup *supervisor.Supervisor, defaults types.RetentionConfig) *CommandHandler {
	return &CommandHandler{Supervisor: sup, Defaults: defaults}
}

func (ch *CommandHandler) logCommandResult(cmd, response string) {
	status := "SUCCESS"
	if strings.HasPrefix(response, "ERROR:") {
		status = "FAILURE"
	}
	cleanResponse := strings.ReplaceAll(response, "\n", " ")
	util.Debug("status: '%s', command: '%s' to Response '%s'", status, cmd, cleanResponse)
}

// HandleCommand executes one command line and returns the response text.
func (ch *CommandHandler) HandleCommand(rawCmd string) string {
	cmd := strings.TrimSpace(rawCmd)
	if cmd == "" {
		resp := "ERROR: empty command"
		ch.logCommandResult(rawCmd, resp)
		return resp
	}

	name, rest, _ := strings.Cut(cmd, " ")
	var resp string

	switch strings.ToUpper(name) {
	case "HELP":
		resp = ch.handleHelp()
	case "EXIT", "QUIT":
		resp = ExitSignal
	case "LIST":
		resp = ch.handleList()
	case "REGISTER":
		resp = ch.handleRegister(rest)
	case "DEREGISTER":
		resp = ch.handleDeregister(rest)
	case "WRITE":
		resp = ch.handleWrite(rest)
	case "ROTATE":
		resp = ch.handleRotate(rest)
	case "SIZE":
		resp = ch.handleSize(rest)
	case "SEGMENTS":
		resp = ch.handleSegments(rest)
	case "SWEEP":
		resp = ch.handleSweep(rest)
	case "CONFIG":
		resp = ch.handleConfig(rest)
	case "STATUS":
		resp = ch.handleStatus(rest)
	default:
		resp = "ERROR: unknown command: " + name
	}

	ch.logCommandResult(rawCmd, resp)
	return resp
}

// parseKeyValueArgs splits "k=v k2=v2 message=free text" into a map. Everything
// after message= is taken verbatim.
func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)

	head := argsStr
	if messageIdx := strings.Index(argsStr, "message="); messageIdx != -1 {
		head = argsStr[:messageIdx]
		result["message"] = strings.TrimSpace(argsStr[messageIdx+8:])
	}
	for _, part := range strings.Fields(head) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}
