package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/hpungsan/feedvault/internal/errors"
)

// maxBodyBytes bounds JSON request bodies other than imports.
const maxBodyBytes = 8 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes err as {"error": {code, message, status}}. Internal and
// store errors are reported without their cause.
func renderError(w http.ResponseWriter, err error) {
	vErr, ok := errors.As(err)
	if !ok {
		vErr = errors.NewInternal(err)
	}

	message := vErr.Message
	if vErr.Code == errors.ErrInternal || vErr.Code == errors.ErrStoreIO {
		message = "an internal error occurred"
	}

	errorObj := map[string]any{
		"code":    string(vErr.Code),
		"message": message,
		"status":  vErr.Status,
	}
	if vErr.Code != errors.ErrInternal && vErr.Details != nil {
		errorObj["details"] = vErr.Details
	}
	renderJSON(w, vErr.Status, map[string]any{"error": errorObj})
}

// readBody reads at most limit bytes. A larger body is a 413.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, errors.NewInvalidRequest("read body: " + err.Error())
	}
	if int64(len(data)) > limit {
		return nil, errors.NewImportValidation(fmt.Sprintf("request body exceeds %d bytes", limit), true)
	}
	return data, nil
}

// decodeBody unmarshals a JSON body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := readBody(r, maxBodyBytes)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.NewInvalidRequest("request body is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
