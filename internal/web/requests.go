package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError is a request body that failed struct validation. Fields maps
// the JSON path of each failing field to the rule it broke.
type requestError struct {
	Fields map[string]string
}

func (e *requestError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return errInvalidRequest.Error() + ": " + strings.Join(parts, ", ")
}

func (e *requestError) Unwrap() error { return errInvalidRequest }

// validateRequest runs struct validation on v.
func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		fields[path] = fe.Tag()
	}
	return &requestError{Fields: fields}
}

// decodeJSON reads a JSON body into the struct dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := readJSON(w, r, dst); err != nil {
		return err
	}
	return validateRequest(dst)
}

// readJSON reads a JSON body into dst without validating it. Non-struct
// bodies such as lists are validated by the caller through a wrapper.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errInvalidRequest)
		}
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

// uploadForm holds the non-file fields of an upload.
type uploadForm struct {
	Delimiter string `json:"delimiter" validate:"max=9"`
	HasHeader string `json:"hasHeader" validate:"omitempty,boolean"`
	Encoding  string `json:"encoding" validate:"max=32"`
}

type mappingRequest struct {
	// Columns maps field names to zero-based column indexes; -1 unmaps.
	Columns map[string]int `json:"columns" validate:"required,min=1,dive,min=-1"`
}

type recordUpdateRequest struct {
	Selected *bool             `json:"selected" validate:"required_without=Edits"`
	Edits    map[string]string `json:"edits" validate:"omitempty,dive,keys,required,endkeys,max=1000"`
}

type selectRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

type resolutionRequest struct {
	Code     string `json:"code" validate:"required"`
	Action   string `json:"action" validate:"required,oneof=map_existing create_new"`
	EntityID string `json:"entityId" validate:"required_if=Action map_existing"`
	Name     string `json:"name" validate:"max=200"`
}

// resolutionsRequest wraps the JSON list so it validates as one struct.
type resolutionsRequest struct {
	Resolutions []resolutionRequest `json:"resolutions" validate:"required,min=1,dive"`
}

type commitRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type referenceRequest struct {
	// ID is the dataset to mark as reference; empty clears it.
	ID string `json:"id" validate:"omitempty,uuid"`
}
