package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type HandlerError struct {
	StatusCode int
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("HTTP %d : %s", e.StatusCode, e.Err.Error())
}

func (e *HandlerError) Unwrap() error { return e.Err }

func errorf(status int, format string, args ...interface{}) *HandlerError {
	return &HandlerError{StatusCode: status, Err: fmt.Errorf(format, args...)}
}

// Message is the popup the web client shows for a reply.
type Message struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

const (
	MessageSuccess = "success"
	MessageError   = "error"
)

// writeJSON encodes v before any header is sent, so an unencodable value becomes a 500 instead of
// a 200 with an empty body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Message{Type: MessageError, Message: "internal error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Warn().Err(err).Msg("failed to write response")
	}
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, Message{Type: MessageSuccess, Message: message})
}

// writeError replies with err's status when it is a *HandlerError and 500 otherwise. Only the
// message of a HandlerError reaches the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	var herr *HandlerError
	if errors.As(err, &herr) {
		status = herr.StatusCode
		msg = herr.Err.Error()
	}
	if status >= 500 {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, Message{Type: MessageError, Message: msg})
}
