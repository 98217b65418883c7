package serviceerr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Model is the JSON body of an error response.
type Model struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ToModel returns the error model of err and its HTTP status. Errors without
// a code are reported as unknown so that internal details never leak.
func ToModel(err error) (Model, int) {
	svcErr := ErrUnknown

	var e *Error
	if errors.As(err, &e) {
		svcErr = e
	}

	return Model{Error: string(svcErr.Err), ErrorDescription: svcErr.Description}, svcErr.HTTPStatus()
}

// WriteJSON writes the error model of err.
func WriteJSON(w http.ResponseWriter, err error) {
	model, status := ToModel(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model)
}
