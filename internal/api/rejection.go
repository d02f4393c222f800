package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldError is one entry of a field-level validation rejection.
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func (e FieldError) String() string {
	loc := "field"
	if len(e.Loc) > 0 {
		loc = strings.Join(e.Loc, ".")
	}
	msg := e.Msg
	if msg == "" {
		msg = "validation error"
	}
	return loc + ": " + msg
}

// RejectionError is a structured failure from the backend: either a domain
// rejection (resolved outcome, insufficient balance) carried as a plain
// detail string, or a field-level validation failure carried as a list.
// The caller renders Detail and preserves user input for correction.
type RejectionError struct {
	StatusCode int
	Detail     string
	Fields     []FieldError
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("api: backend rejected request (%d): %s", e.StatusCode, e.Detail)
}

// parseRejection decodes an error body of the form {"detail": ...} where
// detail is a string or a field-error array. Unrecognized bodies fall back
// to the raw text.
func parseRejection(status int, body []byte) error {
	rej := &RejectionError{StatusCode: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		rej.Detail = strings.TrimSpace(string(body))
		if rej.Detail == "" {
			rej.Detail = "request failed"
		}
		return rej
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		rej.Detail = detail
		return rej
	}

	var fields []FieldError
	if err := json.Unmarshal(envelope.Detail, &fields); err == nil {
		rej.Fields = fields
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f.String())
		}
		rej.Detail = strings.Join(parts, ", ")
		return rej
	}

	rej.Detail = strings.TrimSpace(string(envelope.Detail))
	return rej
}
