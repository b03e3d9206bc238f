package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/robojar-core/internal/command"
	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/device"
)

// Command sources reported to metrics.
const sourceAPI = "api"

// routeActions lists the actions each device route accepts.
var routeActions = map[device.Kind][]command.Action{
	device.KindValve:  {command.ActionOpen, command.ActionClose},
	device.KindPump:   {command.ActionOn, command.ActionOff, command.ActionPrime},
	device.KindSensor: {command.ActionOn, command.ActionOff},
}

// commandResponse is the body of every single-device command.
type commandResponse struct {
	command.Result

	// Warning carries a ledger failure; the state change still happened.
	Warning string `json:"warning,omitempty"`
}

// commandRequest is the body of POST /commands.
type commandRequest struct {
	Command string `json:"command"`
}

// handleStatus returns a fresh snapshot of every device.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleValveAction drives valve {n}. A valve number that is not an
// integer in 1..N is 404; an action other than open/close is 400.
func (s *Server) handleValveAction(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeNotFound(w, "invalid valve number")
		return
	}
	s.runDeviceAction(w, r, device.KindValve, n)
}

func (s *Server) handlePumpAction(w http.ResponseWriter, r *http.Request) {
	s.runDeviceAction(w, r, device.KindPump, 0)
}

func (s *Server) handleSensorAction(w http.ResponseWriter, r *http.Request) {
	s.runDeviceAction(w, r, device.KindSensor, 0)
}

func (s *Server) runDeviceAction(w http.ResponseWriter, r *http.Request, kind device.Kind, index int) {
	action, ok := parseRouteAction(kind, chi.URLParam(r, "action"))
	if !ok {
		writeBadRequest(w, "invalid action for "+string(kind))
		return
	}
	s.execute(w, r, command.Command{Kind: kind, Index: index, Action: action})
}

// parseRouteAction matches raw case-insensitively against the actions
// kind accepts.
func parseRouteAction(kind device.Kind, raw string) (command.Action, bool) {
	a := command.Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, allowed := range routeActions[kind] {
		if a == allowed {
			return a, true
		}
	}
	return "", false
}

// handleCommand parses a free-text command. "reset" and "test" run the
// rig-wide choreographies; everything else addresses one device.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := command.Parse(req.Command)
	if err != nil {
		s.recordCommand("error")
		if errors.Is(err, controller.ErrInvalidDeviceIndex) {
			writeNotFound(w, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	switch cmd.Action {
	case command.ActionReset:
		s.handleReset(w, r)
	case command.ActionTest:
		s.handleTestSequence(w, r)
	default:
		s.execute(w, r, cmd)
	}
}

// execute runs cmd and maps the outcome to a status code.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd command.Command) {
	res, err := s.exec.Execute(r.Context(), cmd)

	resp := commandResponse{Result: res}
	switch {
	case err == nil:
	case errors.Is(err, device.ErrLedgerWrite):
		s.recordLedgerFailure(err)
		resp.Warning = err.Error()
	case errors.Is(err, controller.ErrInvalidDeviceIndex):
		s.recordCommand("error")
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, command.ErrUnknownAction), errors.Is(err, command.ErrUnknownDevice):
		s.recordCommand("error")
		writeBadRequest(w, err.Error())
		return
	default:
		s.recordCommand("error")
		s.logger.Error("command failed", "command", cmd.String(), "error", err)
		writeInternalError(w, "command failed")
		return
	}

	if res.Rejected {
		s.recordCommand(string(device.OutcomeRejected))
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if res.Changed {
		s.recordCommand(string(device.OutcomeApplied))
	} else {
		s.recordCommand(string(device.OutcomeUnchanged))
	}
	writeJSON(w, http.StatusOK, resp)
}

// resetResponse wraps the reset result with an optional ledger warning.
type resetResponse struct {
	controller.ResetResult
	Warning string `json:"warning,omitempty"`
}

// handleReset returns every device to its idle state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := s.exec.Reset(r.Context())
	resp := resetResponse{ResetResult: res}
	if err != nil {
		s.recordLedgerFailure(err)
		resp.Warning = err.Error()
	}
	s.recordCommand(string(device.OutcomeApplied))
	writeJSON(w, http.StatusOK, resp)
}

// testResponse wraps the test sequence result with an optional warning.
type testResponse struct {
	controller.TestResult
	Warning string `json:"warning,omitempty"`
}

// handleTestSequence runs the full choreography. The response carries
// the reset snapshot and the ordered step log.
func (s *Server) handleTestSequence(w http.ResponseWriter, r *http.Request) {
	res, err := s.exec.RunTest(r.Context())
	resp := testResponse{TestResult: res}
	if err != nil {
		s.recordLedgerFailure(err)
		resp.Warning = err.Error()
	}
	s.recordCommand(string(device.OutcomeApplied))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordCommand(result string) {
	if s.metrics != nil {
		s.metrics.RecordCommand(sourceAPI, result)
	}
}

func (s *Server) recordLedgerFailure(err error) {
	s.logger.Warn("ledger write failed", "error", err)
	if s.metrics != nil && errors.Is(err, device.ErrLedgerWrite) {
		s.metrics.RecordLedgerFailure()
	}
}
