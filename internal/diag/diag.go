// Package diag provides the non-fatal diagnostic logging used by the
// consistency checker and the FAT loader: warnings about recoverable
// corruption that gofat12 repairs or works around rather than rejecting
// outright. It never panics; dsoprea/go-logging's log.PanicIf family is
// deliberately not used here.
package diag

import (
	"context"

	log "github.com/dsoprea/go-logging"
)

var logger = log.NewLogger("gofat12")

// Warnf records a recoverable-corruption or best-effort-repair event.
func Warnf(format string, args ...interface{}) {
	logger.Warningf(context.Background(), format, args...)
}

// Infof records a routine, non-warning diagnostic event.
func Infof(format string, args ...interface{}) {
	logger.Infof(context.Background(), format, args...)
}
