package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ValidationErrors aggregates per-field error messages the way the
// API surfaces them: each field maps to its message list, non-field
// errors collect under "non_field_errors", and a synthetic
// "errors_display" list holds every message as a "Label - message"
// line for direct display, non-field errors first.
type ValidationErrors struct {
	fieldOrder []string
	fields     map[string][]string
	labels     map[string]string
	nonField   []string
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		fields: map[string][]string{},
		labels: map[string]string{},
	}
}

// AddField records a message against a named field. label is the
// human-readable field name used in errors_display; when empty it is
// derived from the field name.
func (v *ValidationErrors) AddField(field, label, message string) {
	if _, seen := v.fields[field]; !seen {
		v.fieldOrder = append(v.fieldOrder, field)
	}
	v.fields[field] = append(v.fields[field], message)
	if label != "" {
		v.labels[field] = label
	}
}

// Add records an error not tied to any single field.
func (v *ValidationErrors) Add(message string) {
	v.nonField = append(v.nonField, message)
}

// Empty reports whether no errors were recorded.
func (v *ValidationErrors) Empty() bool {
	return len(v.fields) == 0 && len(v.nonField) == 0
}

// Display builds the aggregated display list: non-field errors first,
// then per-field messages prefixed with the field label.
func (v *ValidationErrors) Display() []string {
	display := make([]string, 0, len(v.nonField)+len(v.fieldOrder))
	display = append(display, v.nonField...)

	for _, field := range v.fieldOrder {
		label := v.labels[field]
		if label == "" {
			label = strings.ReplaceAll(field, "_", " ")
		}
		label = capitalize(label)
		for _, message := range v.fields[field] {
			display = append(display, fmt.Sprintf("%s - %s", label, message))
		}
	}
	return display
}

// MarshalJSON renders the payload shape consumed by clients.
func (v *ValidationErrors) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(v.fields)+2)
	for field, messages := range v.fields {
		payload[field] = messages
	}
	if len(v.nonField) > 0 {
		payload["non_field_errors"] = v.nonField
	}
	payload["errors_display"] = v.Display()
	return json.Marshal(payload)
}

func writeValidationErrors(w http.ResponseWriter, v *ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
