package alertapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds request bodies. Notes are the largest field.
const maxBodyBytes = 64 << 10

var errBadBody = errors.New("invalid request body")

// decodeBody reads a JSON body, or a urlencoded form through fromForm.
func decodeBody(r *http.Request, w http.ResponseWriter, v any, fromForm func(get func(string) string) error) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err) //nolint:errorlint // only the sentinel matters to callers
		}
		return fromForm(r.PostForm.Get)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err) //nolint:errorlint // only the sentinel matters to callers
	}
	return nil
}

// formFloat parses an optional float form value.
func formFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err) //nolint:errorlint // only the sentinel matters to callers
	}
	return &f, nil
}
