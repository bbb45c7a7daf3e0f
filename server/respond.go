package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hubenschmidt/legalqa/core"
)

var (
	validate       = validator.New()
	errInvalidJSON = errors.New("invalid JSON body")
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// writeFailure maps an operation error onto a status code.
func writeFailure(w http.ResponseWriter, err error) {
	switch core.Kind(err) {
	case core.ErrInvalidQuery:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "validation_failed", "Validation failed", validationFields(verrs))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case core.ErrModelLoad, core.ErrQueryEmbedding:
		writeError(w, http.StatusServiceUnavailable, "embedding_unavailable", err.Error(), nil)
	case core.ErrGeneration:
		writeError(w, http.StatusBadGateway, "generation_failed", err.Error(), nil)
	case core.ErrArtifactNotFound, core.ErrPersistence:
		writeError(w, http.StatusServiceUnavailable, "index_unavailable", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}

// decodeAndValidate reads a JSON body into dst, applies normalize and runs
// struct validation. Failures are core.ErrInvalidQuery.
func decodeAndValidate(r *http.Request, dst any, normalize func()) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return core.NewOpError("decode request", core.ErrInvalidQuery, errInvalidJSON)
	}
	if normalize != nil {
		normalize()
	}
	if err := validate.Struct(dst); err != nil {
		return core.NewOpError("validate request", core.ErrInvalidQuery, err)
	}
	return nil
}

func validationFields(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[name] = name + " is required"
		case "min":
			fields[name] = name + " must be at least " + fe.Param()
		case "max":
			fields[name] = name + " must be at most " + fe.Param()
		default:
			fields[name] = name + " failed '" + fe.Tag() + "' validation"
		}
	}
	return fields
}
