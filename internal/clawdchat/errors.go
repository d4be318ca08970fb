package clawdchat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is an error response from the ClawdChat backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clawdchat api error (%d): %s", e.StatusCode, e.Detail)
}

// extractError builds an APIError from a non-2xx response. The backend uses
// both "detail" and "error" fields depending on the endpoint.
func extractError(resp *http.Response) *APIError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return &APIError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var payload struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return &APIError{StatusCode: resp.StatusCode, Detail: payload.Detail}
		}
		if payload.Err != "" {
			return &APIError{StatusCode: resp.StatusCode, Detail: payload.Err}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: string(body)}
}
