package api

import (
	"net/http"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/model"
	"github.com/goccy/go-json"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.HasCode(err, errors.ErrValidation):
		return http.StatusBadRequest
	case errors.HasCode(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.HasCode(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.HasCode(err, errors.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := errors.CodeOf(err)
	message := err.Error()

	switch status {
	case http.StatusBadRequest:
		code = errors.ErrValidation
	case http.StatusNotFound:
		code = errors.ErrNotFound
	case http.StatusConflict:
		code = errors.ErrConflict
	case http.StatusBadGateway:
		code = errors.ErrUpstreamUnavailable
	default:
		// Storage details stay in the log.
		message = errors.GetErrorMessage(code)

		var coded errors.Error
		if errors.As(err, &coded) {
			h.log.ErrorWithContext(coded, "api", r.Method+" "+r.URL.Path).Msg("Request failed")
		} else {
			h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		}
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New().Wrap(ErrBadRequest, err).WithMessage("malformed JSON body: " + err.Error())
	}
	return nil
}

// parseWindow reads the optional RFC 3339 start and end query parameters.
func parseWindow(r *http.Request) (model.Window, error) {
	errFactory := errors.New()

	var w model.Window
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"start", &w.Start},
		{"end", &w.End},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.Window{}, errFactory.WithMessage(ErrBadRequest, p.name+" must be an RFC 3339 timestamp")
		}
		*p.dst = t
	}

	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return model.Window{}, errFactory.WithMessage(ErrBadRequest, "end must not be before start")
	}
	return w, nil
}
