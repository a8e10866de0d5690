package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/codeloop/pkg/api"
)

// MapHTTPError turns a non-2xx chat completion response into an APIError.
// The backend's own message is kept when the body carries one. Statuses
// other than 400, 401, 403 and 429 are reported as server errors.
func MapHTTPError(resp *http.Response) *api.APIError {
	msg := ExtractErrorMessage(resp.Body)
	or := func(fallback string) string {
		if msg != "" {
			return msg
		}
		return fallback
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return api.NewInvalidRequestError("", or("backend rejected the request"))
	case http.StatusUnauthorized, http.StatusForbidden:
		return api.NewAuthenticationError(or("backend rejected the API key"))
	case http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(or("backend rate limit exceeded"))
	}
	return api.NewServerError(or(fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)))
}

// MapNetworkError reports a request that never got an HTTP response.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError(fmt.Sprintf("backend connection error: %s", err.Error()))
}

// ExtractErrorMessage returns error.message from a ChatErrorResponse body,
// or "" when the body is empty or not in that shape.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
