package statestore

import (
	"regexp"
	"strings"
)

var unsafeSessionIDChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var repeatedUnderscores = regexp.MustCompile(`_+`)

// SanitizeSessionID maps a session id to a filesystem-safe form: characters
// illegal in Windows/POSIX path components are replaced with "_", repeated
// underscores collapse to one, and leading/trailing "_"/"." are stripped.
// An all-illegal id sanitizes to "_" rather than the empty string, since an
// empty filename is not addressable. Idempotent: sanitizing an already-safe
// id is a no-op.
//
// Grounded on original_source/claude_session_player/watcher/state.py's
// _sanitize_session_id.
func SanitizeSessionID(sessionID string) string {
	safe := unsafeSessionIDChars.ReplaceAllString(sessionID, "_")
	safe = repeatedUnderscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_.")
	if safe == "" {
		return "_"
	}
	return safe
}
