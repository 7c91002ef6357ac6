// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"stockledger/internal/core/id"
)

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- List Response ---

// ListResponse wraps list results.
type ListResponse struct {
	Items      any `json:"items"`
	TotalCount int `json:"totalCount,omitempty"`
}

// --- Helpers ---

// IDString formats an optional ID for responses.
func IDString(v *id.ID) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// ParseOptionalID parses an optional ID string from a request.
func ParseOptionalID(s string) (*id.ID, error) {
	if s == "" {
		return nil, nil
	}
	parsed, err := id.Parse(s)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
