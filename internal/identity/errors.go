package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the provider. Message may be empty.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider returned %d", e.Status)
	}
	return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Message)
}

// ProviderMessage returns the human readable message sent by the provider, if any
func (e *APIError) ProviderMessage() string {
	return e.Message
}

// IsUnauthorized reports whether the provider rejected the caller's
// credentials. Tokens are refused with 401 or 403; a failed password or
// refresh grant comes back as a 400 carrying an invalid grant code.
func (e *APIError) IsUnauthorized() bool {
	switch {
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return true
	case e.Status == http.StatusBadRequest:
		return e.Code == "invalid_grant" || e.Code == "invalid_credentials"
	default:
		return false
	}
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// errorBody covers the shapes GoTrue has used over time
type errorBody struct {
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	ErrorDescription string          `json:"error_description"`
	Error            json.RawMessage `json:"error"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}

	// "error" is a string on OAuth-style endpoints
	var errString string
	_ = json.Unmarshal(body.Error, &errString)

	switch {
	case body.Msg != "":
		apiErr.Message = body.Msg
	case body.Message != "":
		apiErr.Message = body.Message
	case body.ErrorDescription != "":
		apiErr.Message = body.ErrorDescription
	case errString != "":
		apiErr.Message = errString
	}

	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" {
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			apiErr.Code = code
		} else if errString != "" && body.ErrorDescription != "" {
			apiErr.Code = errString
		}
	}

	return apiErr
}
