// Package api provides the HTTP API handlers for meshstudio.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/selection"
	"github.com/ayusman/meshstudio/internal/store"
	"github.com/ayusman/meshstudio/internal/studio"
)

// Messages shown to the user for failures they cannot act on in detail.
const (
	msgProcessFailed  = "Failed to process image mesh"
	msgModelNotReady  = "Face landmark model failed to initialize. Please reload the page."
	msgInvalidRequest = "invalid request body"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// newValidator returns a validator that reports JSON field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func decodeAndValidate(v *validator.Validate, r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(msgInvalidRequest)
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on %s", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// statusFor maps domain errors to an HTTP status and a user-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, studio.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, detector.ErrInvalidImage),
		errors.Is(err, imaging.ErrUnsupportedFormat),
		errors.Is(err, imaging.ErrUndecodable):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, selection.ErrOutOfRange), errors.Is(err, studio.ErrNoHit):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, studio.ErrNoMesh):
		return http.StatusConflict, err.Error()
	case errors.Is(err, studio.ErrSuperseded), errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict, err.Error()
	case errors.Is(err, detector.ErrInitFailed):
		return http.StatusServiceUnavailable, msgModelNotReady
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, msgProcessFailed
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeError(w, status, msg)
}

// sessionFrom resolves the {id} URL parameter.
func sessionFrom(st *studio.Studio, w http.ResponseWriter, r *http.Request) *studio.Session {
	sess, err := st.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	return sess
}
