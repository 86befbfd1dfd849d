package cerr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteHTTP renders err as a JSON error response. Foreign errors are
// reported as internal without leaking their message.
func WriteHTTP(w http.ResponseWriter, err error) {
	code := CodeOf(err)
	msg := "server error"
	var cerr *Error
	if errors.As(err, &cerr) {
		msg = cerr.Msg
		if cerr.Stack != "" {
			slog.Error("request failed", "error", cerr.Err, "stack", cerr.Stack)
		}
	} else {
		slog.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code.HTTPCode())
	_ = json.NewEncoder(w).Encode(httpError{Code: code.String(), Message: msg})
}
