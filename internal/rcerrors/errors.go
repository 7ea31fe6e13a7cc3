// Package rcerrors classifies and formats errors from the platform REST
// and websocket surfaces (spec.md §4.1, §7). It mirrors the shape of the
// teacher's internal/errors package (typed structs + constructors) but
// drops the Gin HTTP-response helpers: this process makes outbound calls,
// it never answers an inbound request.
package rcerrors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an error for the propagation policy in spec.md §7.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindTransient      Kind = "transient"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindInternal       Kind = "internal"
)

// PlatformError is the normalized shape produced from a REST error
// response (§4.1): HTTP status, platform error code, request id, account
// id, human message, and any nested sub-errors.
type PlatformError struct {
	Kind       Kind
	HTTPStatus int
	ErrorCode  string
	RequestID  string
	AccountID  string
	Message    string
	SubErrors  []string
	RetryAfter int // seconds; set for RateLimit errors with a Retry-After header
}

func (e *PlatformError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d ErrorCode=%s RequestId=%s AccountId=%s Message=%q",
		e.HTTPStatus, e.ErrorCode, e.RequestID, e.AccountID, e.Message)
	if len(e.SubErrors) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.SubErrors, "; "))
	}
	return b.String()
}

// nestedError mirrors the platform's `errors[]` sub-error shape.
type nestedError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// errorBody is the permissive shape of a platform JSON error body. All
// fields are optional; unknown fields are ignored.
type errorBody struct {
	ErrorCode   string        `json:"errorCode"`
	Message     string        `json:"message"`
	Description string        `json:"description"`
	Errors      []nestedError `json:"errors"`
}

// Normalize builds a *PlatformError from an HTTP response's status,
// headers, and (already-read, bounded) body bytes. The body may be JSON or
// a stringified JSON message; either is accepted.
func Normalize(httpStatus int, headers map[string]string, accountID string, body []byte) error {
	var parsed errorBody

	raw := body
	// Some platform errors arrive as a JSON string containing JSON; unwrap
	// once if the first unmarshal yields a string instead of an object.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		raw = []byte(asString)
	}
	_ = json.Unmarshal(raw, &parsed)

	message := parsed.Message
	if message == "" {
		message = parsed.Description
	}
	if message == "" {
		message = string(body)
	}

	sub := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		sub = append(sub, fmt.Sprintf("%s: %s", e.ErrorCode, e.Message))
	}

	retryAfter := 0
	if v := headers["retry-after"]; v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = secs
		}
	}

	pe := &PlatformError{
		Kind:       classify(httpStatus, parsed.ErrorCode),
		HTTPStatus: httpStatus,
		ErrorCode:  parsed.ErrorCode,
		RequestID:  headers["x-request-id"],
		AccountID:  accountID,
		Message:    message,
		SubErrors:  sub,
		RetryAfter: retryAfter,
	}
	return pe
}

func classify(httpStatus int, errorCode string) Kind {
	switch {
	case httpStatus == 401 || errorCode == "invalid_grant" || errorCode == "OAU-250":
		return KindAuthentication
	case httpStatus == 429:
		return KindRateLimit
	case httpStatus == 404:
		return KindNotFound
	case httpStatus == 400 || httpStatus == 422:
		return KindValidation
	case httpStatus >= 500 || httpStatus == 0:
		return KindTransient
	default:
		return KindInternal
	}
}

// PayloadTooLarge is returned by the streaming download path (§4.1) when
// either the advertised Content-Length or the accumulated byte count
// exceeds the configured maxBytes.
type PayloadTooLarge struct {
	MaxBytes int64
	Observed int64
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("payload too large: observed %d bytes, max %d bytes", e.Observed, e.MaxBytes)
}

// ValidationError is raised synchronously at the API boundary for bad
// config or an unresolvable target (§7).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// AsKind extracts the Kind of an error produced by this package, defaulting
// to KindTransient for anything else (e.g. a plain network error).
func AsKind(err error) Kind {
	if err == nil {
		return ""
	}
	switch e := err.(type) {
	case *PlatformError:
		return e.Kind
	case *PayloadTooLarge:
		return KindPayloadTooLarge
	case *ValidationError:
		return KindValidation
	default:
		return KindTransient
	}
}
