// Package translation resolves user-facing bot messages through gotext,
// falling back to the message id itself when no locale is configured.
package translation

import (
	"github.com/leonelquinteros/gotext"
)

// Translate looks up the message for the configured language.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
