// Package index answers time-range queries over a directory listing. The
// listing is an explicit input rather than process state: callers pass the
// filenames they want queried, which keeps the engine a pure function and
// lets tests inject synthetic listings.
package index

import (
	"sort"

	"github.com/jacktea/gitblobts/pkg/blobname"
)

// Entry is one recognized filename from a listing.
type Entry struct {
	Name    string
	TimeUTC int64
}

// Select filters names down to the entries whose timestamp lies within the
// inclusive range bounded by min(start, end) and max(start, end), sorted by
// timestamp. The argument order doubles as the sort-order selector:
// start <= end sorts ascending, start > end descending. Filenames that do
// not decode are skipped, never an error, so a directory may contain
// unrelated files or names from unknown format versions. Ties on equal
// timestamps are broken by filename string so repeated queries over an
// unchanged listing return a stable order.
func Select(names []string, start, end int64) []Entry {
	lo, hi := start, end
	descending := start > end
	if descending {
		lo, hi = hi, lo
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		timeUTC, _, ok := blobname.Decode(name)
		if !ok {
			continue
		}
		if timeUTC < lo || timeUTC > hi {
			continue
		}
		entries = append(entries, Entry{Name: name, TimeUTC: timeUTC})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TimeUTC != b.TimeUTC {
			if descending {
				return a.TimeUTC > b.TimeUTC
			}
			return a.TimeUTC < b.TimeUTC
		}
		return a.Name < b.Name
	})
	return entries
}
