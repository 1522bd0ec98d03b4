package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/logger"
)

// maxBodyBytes caps request bodies. Queries are text, so this is generous.
const maxBodyBytes = 4 << 20

var validate = newValidator()

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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError renders err as {"detail": ...} with the status of its kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.KindOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"path": r.URL.Path,
		})
	}
	writeDetail(w, status, err.Error())
}

// decodeJSON reads r's body into dst and runs its validate tags. dst should
// already hold any defaults. Failures are invalid_input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.New(errs.ErrKindInvalidInput, "request body is required")
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid JSON body", err)
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var messages []string
			for _, fieldErr := range validationErrors {
				messages = append(messages, fmt.Sprintf("Field: %s, Tag: %s", fieldErr.Field(), fieldErr.Tag()))
			}
			return errs.Newf(errs.ErrKindInvalidInput, "validation failed: %s", strings.Join(messages, "; "))
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "validation error", err)
	}
	return nil
}
