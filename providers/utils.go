package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/agentflow/types"
)

// mapHTTPError maps an HTTP status code to a structured *types.Error with
// an appropriate retryable flag, grounded on the teacher's
// llm/providers.MapHTTPError, common across every HTTP-based adapter.
func mapHTTPError(status int, msg string, provider types.Provider) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return &types.Error{Code: types.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: string(provider)}
	case http.StatusForbidden:
		return &types.Error{Code: types.ErrForbidden, Message: msg, HTTPStatus: status, Provider: string(provider)}
	case http.StatusTooManyRequests:
		return &types.Error{Code: types.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: string(provider)}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			return &types.Error{Code: types.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: string(provider)}
		}
		return &types.Error{Code: types.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: string(provider)}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &types.Error{Code: types.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: string(provider)}
	case 529: // model overloaded, used by some providers
		return &types.Error{Code: types.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: string(provider)}
	default:
		return &types.Error{Code: types.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: string(provider)}
	}
}

// readErrorMessage attempts to parse a JSON error envelope from body,
// falling back to the raw response text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Type != "" {
			return envelope.Error.Message + " (type: " + envelope.Error.Type + ")"
		}
		return envelope.Error.Message
	}
	return string(data)
}
