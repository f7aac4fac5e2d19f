package dhkalign

import "errors"

// Sentinel errors for the translation gateway domain. Each maps to exactly
// one canonical error code (see ErrorCode) and HTTP status.
var (
	ErrMissingQuery     = errors.New("missing_query")
	ErrInvalidJSON      = errors.New("invalid_json")
	ErrBadRequest       = errors.New("bad_request")
	ErrPayloadTooLarge  = errors.New("payload_too_large")
	ErrUnsupportedMedia = errors.New("unsupported_media_type")
	ErrInvalidAPIKey    = errors.New("invalid_api_key")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not_found")
	ErrRateLimited      = errors.New("rate_limited")
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrQuotaUnavailable = errors.New("quota_unavailable")
	ErrUpstreamDown     = errors.New("upstream_unavailable")
	ErrUpstreamTimeout  = errors.New("upstream_timeout")
	ErrBadSignature     = errors.New("bad_signature")
)

// ErrorCode returns the canonical wire error code for a known sentinel error,
// or "bad_request" as a safe default for unrecognized errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingQuery):
		return "missing_query"
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrUnsupportedMedia):
		return "unsupported_media_type"
	case errors.Is(err, ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrQuotaUnavailable):
		return "quota_unavailable"
	case errors.Is(err, ErrUpstreamDown):
		return "upstream_unavailable"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	default:
		return "bad_request"
	}
}

// ErrorStatus maps a known sentinel error to its HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingQuery), errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrBadRequest), errors.Is(err, ErrBadSignature):
		return 400
	case errors.Is(err, ErrInvalidAPIKey), errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrPayloadTooLarge):
		return 413
	case errors.Is(err, ErrUnsupportedMedia):
		return 415
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrQuotaUnavailable):
		return 503
	case errors.Is(err, ErrUpstreamDown):
		return 502
	case errors.Is(err, ErrUpstreamTimeout):
		return 504
	default:
		return 500
	}
}
