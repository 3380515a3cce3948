package errors

import (
	"errors"
	"net/http"
)

// Error taxonomy for the controller. Every error that crosses a package
// boundary wraps one of these sentinels so the HTTP layer can map it to a
// machine-readable code and status without string matching.
var (
	// Input errors
	ErrMissingGuildID = errors.New("missing guild_id")
	ErrMissingUserID  = errors.New("missing user_id")
	ErrMissingIndex   = errors.New("missing index")
	ErrBadArgument    = errors.New("bad argument")

	// Authorization errors
	ErrPriorityForbidden = errors.New("requester priority too low")
	ErrQuotaExceeded     = errors.New("per-user queue quota exceeded")

	// Voice errors
	ErrUserNotInVoice     = errors.New("user is not in a voice channel")
	ErrGuildNotFound      = errors.New("guild not found")
	ErrVoiceConnectFailed = errors.New("failed to connect to voice channel")
	ErrNoVoice            = errors.New("no voice connection")
	ErrNotPlaying         = errors.New("nothing is playing")

	// Extraction errors
	ErrProviderUnsupported = errors.New("no extractor supports this source")
	ErrExtractionFailed    = errors.New("failed to extract a playable source")
	ErrNetworkError        = errors.New("network error during extraction")

	// Engine errors
	ErrPlayerUnavailable = errors.New("playback engine unavailable")
	ErrBotNotReady       = errors.New("bot session is not ready")
	ErrEnqueueFailed     = errors.New("enqueue failed")
	ErrMoveFailed        = errors.New("move failed")
	ErrEngineTimeout     = errors.New("engine command timed out")
)

// codes maps sentinels to the wire-level error codes of the HTTP API.
var codes = []struct {
	err  error
	code string
}{
	{ErrMissingGuildID, "MISSING_GUILD_ID"},
	{ErrMissingUserID, "MISSING_USER_ID"},
	{ErrMissingIndex, "MISSING_INDEX"},
	{ErrBadArgument, "BAD_ARGUMENT"},
	{ErrPriorityForbidden, "PRIORITY_FORBIDDEN"},
	{ErrQuotaExceeded, "QUOTA_EXCEEDED"},
	{ErrUserNotInVoice, "USER_NOT_IN_VOICE"},
	{ErrGuildNotFound, "GUILD_NOT_FOUND"},
	{ErrVoiceConnectFailed, "VOICE_CONNECT_FAILED"},
	{ErrNoVoice, "NO_VOICE"},
	{ErrNotPlaying, "NOT_PLAYING"},
	{ErrProviderUnsupported, "PROVIDER_UNSUPPORTED"},
	{ErrExtractionFailed, "EXTRACTION_FAILED"},
	{ErrNetworkError, "NETWORK_ERROR"},
	{ErrPlayerUnavailable, "PLAYER_UNAVAILABLE"},
	{ErrBotNotReady, "BOT_NOT_READY"},
	{ErrEnqueueFailed, "ENQUEUE_FAILED"},
	{ErrMoveFailed, "MOVE_FAILED"},
	{ErrEngineTimeout, "ENGINE_TIMEOUT"},
}

// Code returns the machine-readable code for err, or "INTERNAL" when the
// error does not wrap a known sentinel.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// HTTPStatus maps err to the response status used by the control API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingGuildID),
		errors.Is(err, ErrMissingUserID),
		errors.Is(err, ErrMissingIndex),
		errors.Is(err, ErrBadArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrPriorityForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrUserNotInVoice),
		errors.Is(err, ErrGuildNotFound),
		errors.Is(err, ErrVoiceConnectFailed),
		errors.Is(err, ErrNoVoice),
		errors.Is(err, ErrNotPlaying),
		errors.Is(err, ErrProviderUnsupported),
		errors.Is(err, ErrExtractionFailed),
		errors.Is(err, ErrNetworkError),
		errors.Is(err, ErrEnqueueFailed),
		errors.Is(err, ErrMoveFailed):
		return http.StatusConflict
	case errors.Is(err, ErrPlayerUnavailable), errors.Is(err, ErrBotNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrEngineTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Is re-exports errors.Is so callers don't need two imports.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
