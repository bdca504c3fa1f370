package index

// Blob is one stored record: its instant, the filename holding it, and the
// decoded payload.
type Blob struct {
	TimeUTC int64
	Name    string
	Payload []byte
}

// OpenFunc loads and decodes the payload for one selected entry. It runs
// only when the iterator reaches that entry, never for entries the caller
// abandons, so partially consuming a large range stays cheap.
type OpenFunc func(Entry) ([]byte, error)

// Policy selects what a decode failure on one blob does to the rest of the
// iteration.
type Policy int

const (
	// FailFast stops the iteration at the first failing blob; Err
	// reports it.
	FailFast Policy = iota

	// SkipFailed records the failure and continues with the next blob;
	// Skipped reports everything that was passed over.
	SkipFailed
)

// SkipError records one blob that failed to load under SkipFailed.
type SkipError struct {
	Entry Entry
	Err   error
}

// Iterator walks selected entries in order, loading each payload on demand.
// The entry list is captured eagerly (it is only strings); payloads are
// expensive and stay untouched until Next reaches them. An Iterator is
// single-pass and finite; re-run the query for a fresh view.
type Iterator struct {
	entries []Entry
	open    OpenFunc
	policy  Policy

	pos     int
	current Blob
	skipped []SkipError
	err     error
}

// NewIterator returns an iterator over entries in the order given.
func NewIterator(entries []Entry, open OpenFunc, policy Policy) *Iterator {
	return &Iterator{entries: entries, open: open, policy: policy}
}

// Next advances to the next blob, returning false when the iteration is
// complete or, under FailFast, a payload failed to load.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos < len(it.entries) {
		entry := it.entries[it.pos]
		it.pos++

		payload, err := it.open(entry)
		if err != nil {
			if it.policy == SkipFailed {
				it.skipped = append(it.skipped, SkipError{Entry: entry, Err: err})
				continue
			}
			it.err = err
			return false
		}
		it.current = Blob{TimeUTC: entry.TimeUTC, Name: entry.Name, Payload: payload}
		return true
	}
	return false
}

// Blob returns the current blob. Only valid after Next returned true.
func (it *Iterator) Blob() Blob { return it.current }

// Err returns the error that stopped a FailFast iteration, if any. Check it
// after Next returns false.
func (it *Iterator) Err() error { return it.err }

// Skipped returns the blobs passed over so far under SkipFailed.
func (it *Iterator) Skipped() []SkipError { return it.skipped }

// Remaining reports how many entries Next has not yet visited.
func (it *Iterator) Remaining() int { return len(it.entries) - it.pos }
