// Package timeparse resolves human time strings to absolute instants for
// the CLI. The store itself only ever consumes resolved instants.
package timeparse

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	naturaldate "github.com/tj/go-naturaldate"

	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// Parse maps s to an instant relative to now. Absolute forms ("2019-01-20",
// RFC 3339, unix seconds) are tried first, then relative phrases ("now",
// "1 week ago", "midnight yesterday"), preferring dates in the past the way
// people mean them when querying a store of existing blobs. The result is
// in UTC.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, xerrors.E(xerrors.KindInvalid, "timeparse.Parse", s)
	}

	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return t.UTC(), nil
	}

	t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, xerrors.Wrap(xerrors.KindInvalid, "timeparse.Parse", s, err)
	}
	return t.UTC(), nil
}
