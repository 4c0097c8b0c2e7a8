package errors

import "net/http"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeInvalidConfig      ErrorCode = "COMMON_017"
)

// Aliases used across layers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Commute overlay error codes
const (
	ErrCodeUpstream          ErrorCode = "MAP_001"
	ErrCodeNoCommuteArea     ErrorCode = "MAP_002"
	ErrCodeNoOrigins         ErrorCode = "MAP_003"
	ErrCodeOriginIndex       ErrorCode = "MAP_004"
	ErrCodeNotAwaitingPick   ErrorCode = "MAP_005"
	ErrCodeReverseGeocode    ErrorCode = "MAP_006"
	ErrCodeSessionNotFound   ErrorCode = "MAP_007"
	ErrCodeListingNotFound   ErrorCode = "MAP_008"
	ErrCodeInvalidTravelMode ErrorCode = "MAP_009"
)

// ErrInvalidConfig is returned by constructors that receive unusable settings.
var ErrInvalidConfig = New(ErrCodeInvalidConfig, "invalid configuration")

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeInvalidConfig:      http.StatusInternalServerError,

	ErrCodeUpstream:          http.StatusBadGateway,
	ErrCodeNoCommuteArea:     http.StatusUnprocessableEntity,
	ErrCodeNoOrigins:         http.StatusBadRequest,
	ErrCodeOriginIndex:       http.StatusBadRequest,
	ErrCodeNotAwaitingPick:   http.StatusConflict,
	ErrCodeReverseGeocode:    http.StatusBadGateway,
	ErrCodeSessionNotFound:   http.StatusNotFound,
	ErrCodeListingNotFound:   http.StatusNotFound,
	ErrCodeInvalidTravelMode: http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeInvalidConfig:      "invalid configuration",

	ErrCodeUpstream:          "upstream service error",
	ErrCodeNoCommuteArea:     "could not build commute area",
	ErrCodeNoOrigins:         "add at least one work address",
	ErrCodeOriginIndex:       "origin index out of range",
	ErrCodeNotAwaitingPick:   "no origin is awaiting a map pick",
	ErrCodeReverseGeocode:    "could not reverse-geocode that point",
	ErrCodeSessionNotFound:   "session not found",
	ErrCodeListingNotFound:   "listing not found",
	ErrCodeInvalidTravelMode: "unsupported travel mode",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

