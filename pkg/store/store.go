// Package store is the blob store: write-once payloads persisted as
// time-named files in a cloned git repository, retrieved by time range.
// Filenames (pkg/blobname) are the only index; payloads pass through the
// codec pipeline (pkg/codec); durability and multi-writer merge come from
// the synchronization primitive (pkg/gitsync).
//
// A Store issues filesystem and synchronization operations sequentially
// from the calling goroutine. There is no in-process locking: writers on
// different machines stay collision-free through the random filename
// disambiguator, and the synchronization primitive's merge handles the
// rest.
package store

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jacktea/gitblobts/pkg/blobname"
	"github.com/jacktea/gitblobts/pkg/cache"
	"github.com/jacktea/gitblobts/pkg/codec"
	"github.com/jacktea/gitblobts/pkg/gitsync"
	"github.com/jacktea/gitblobts/pkg/index"
	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// Syncer is the synchronization primitive the store calls around writes
// and reads. gitsync.Repo is the production implementation; tests inject
// fakes.
type Syncer interface {
	Pull(ctx context.Context) error
	CommitAndPush(ctx context.Context, paths []string) error
}

// Config configures a Store. Path is required; everything else has a
// usable zero value.
type Config struct {
	// Path is the local directory holding the blobs. It must be the
	// worktree root of a cloned repository unless Syncer is supplied.
	Path string

	// Compression selects the codec's first stage. Empty means none.
	Compression codec.Compression

	// Key enables authenticated encryption when non-nil. Must be
	// codec.KeySize bytes. The store holds no key management duties
	// beyond using it.
	Key []byte

	// FormatVersion tags new filenames. Zero means the current version.
	FormatVersion blobname.Version

	// DecodeErrors selects what a failed payload decode does to an
	// in-progress range iteration: stop it (index.FailFast, default) or
	// record and continue (index.SkipFailed).
	DecodeErrors index.Policy

	// CacheEntries enables an in-process LRU of decoded payloads when
	// positive. Safe because blobs are immutable.
	CacheEntries int
	CacheTTL     time.Duration

	// Random supplies disambiguator bytes. Nil means crypto/rand.
	Random io.Reader

	// Syncer overrides the synchronization primitive. Nil opens the
	// repository at Path.
	Syncer Syncer

	// Remote, AuthorName and AuthorEmail configure the default Syncer.
	Remote      string
	AuthorName  string
	AuthorEmail string

	// Logger receives structured records. Nil discards them.
	Logger *slog.Logger
}

// Store reads and writes time-indexed blobs in one local directory.
type Store struct {
	path    string
	codec   *codec.Codec
	version blobname.Version
	policy  index.Policy
	random  io.Reader
	sync    Syncer
	cache   *cache.Cache
	log     *slog.Logger
}

// Open initializes the store over a pre-existing cloned repository.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, xerrors.E(xerrors.KindInvalid, "store.Open", "path")
	}
	c, err := codec.New(codec.Options{Compression: cfg.Compression, Key: cfg.Key})
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	version := cfg.FormatVersion
	if version == 0 {
		version = blobname.CurrentVersion
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}

	syncer := cfg.Syncer
	if syncer == nil {
		repo, err := gitsync.Open(cfg.Path, gitsync.Options{
			Remote:      cfg.Remote,
			AuthorName:  cfg.AuthorName,
			AuthorEmail: cfg.AuthorEmail,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		syncer = repo
	}

	s := &Store{
		path:    cfg.Path,
		codec:   c,
		version: version,
		policy:  cfg.DecodeErrors,
		random:  random,
		sync:    syncer,
		log:     logger,
	}
	if cfg.CacheEntries > 0 {
		s.cache = cache.New(cfg.CacheEntries, cfg.CacheTTL)
	}
	s.log.Info("store opened",
		"path", cfg.Path,
		"compression", string(cfg.Compression),
		"encrypted", len(cfg.Key) != 0,
		"version", string(rune(version)))
	return s, nil
}

// PutOptions controls a single write.
type PutOptions struct {
	// Time is the blob's instant. The zero value means now.
	Time time.Time
}

// Item is one element of a batch write.
type Item struct {
	Payload []byte
	Time    time.Time
}

// Put persists one blob and synchronizes, returning the blob's nanosecond
// UTC timestamp. A literal filename collision (same instant and same
// random disambiguator, astronomically unlikely) fails with a
// write-conflict error and is not retried.
func (s *Store) Put(ctx context.Context, payload []byte, opts PutOptions) (int64, error) {
	timeUTC, name, err := s.write(payload, opts.Time)
	if err != nil {
		return 0, err
	}
	if err := s.sync.CommitAndPush(ctx, []string{name}); err != nil {
		return 0, err
	}
	s.log.Info("blob added", "name", name, "time_utc_ns", timeUTC, "bytes", len(payload))
	return timeUTC, nil
}

// PutBatch persists every item, then synchronizes once. Returned
// timestamps correspond to items by position. If the synchronization step
// fails, all items are already written locally; the caller may retry with
// Sync alone rather than re-putting.
func (s *Store) PutBatch(ctx context.Context, items []Item) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}
	times := make([]int64, len(items))
	names := make([]string, len(items))
	for i, item := range items {
		timeUTC, name, err := s.write(item.Payload, item.Time)
		if err != nil {
			return nil, err
		}
		times[i] = timeUTC
		names[i] = name
	}
	if err := s.sync.CommitAndPush(ctx, names); err != nil {
		return nil, err
	}
	s.log.Info("blobs added", "count", len(items))
	return times, nil
}

// Sync re-runs the synchronization step alone, for recovering from a Put
// or PutBatch whose files were written locally but not pushed.
func (s *Store) Sync(ctx context.Context) error {
	return s.sync.CommitAndPush(ctx, nil)
}

func (s *Store) write(payload []byte, at time.Time) (int64, string, error) {
	var timeUTC int64
	if at.IsZero() {
		timeUTC = time.Now().UTC().UnixNano()
	} else {
		timeUTC = at.UTC().UnixNano()
	}

	name, err := blobname.Encode(timeUTC, s.version, s.random)
	if err != nil {
		return 0, "", err
	}
	encoded, err := s.codec.Encode(payload)
	if err != nil {
		return 0, "", err
	}

	path := filepath.Join(s.path, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return 0, "", xerrors.Wrap(xerrors.KindWriteConflict, "store.Put", name, err)
		}
		return 0, "", xerrors.Wrap(xerrors.KindInternal, "store.Put", name, err)
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return 0, "", xerrors.Wrap(xerrors.KindInternal, "store.Put", name, err)
	}
	if err := f.Close(); err != nil {
		return 0, "", xerrors.Wrap(xerrors.KindInternal, "store.Put", name, err)
	}
	s.log.Debug("blob written", "name", name, "encoded_bytes", len(encoded))
	return timeUTC, name, nil
}

// Range selects blobs by nanosecond UTC timestamp, both bounds inclusive.
// Start greater than End requests descending order; otherwise ascending.
type Range struct {
	Start int64
	End   int64
}

// AllTime spans every blob, ascending.
func AllTime() Range {
	return Range{Start: math.MinInt64, End: math.MaxInt64}
}

// Between converts two instants to a Range, preserving their order.
func Between(start, end time.Time) Range {
	return Range{Start: start.UTC().UnixNano(), End: end.UTC().UnixNano()}
}

// Since spans start to the end of time, ascending.
func Since(start time.Time) Range {
	return Range{Start: start.UTC().UnixNano(), End: math.MaxInt64}
}

// GetOptions controls a read.
type GetOptions struct {
	// Pull synchronizes from the remote before listing, bringing in
	// other writers' blobs. Without it the read sees only what is
	// already local.
	Pull bool
}

// Get returns a lazy iterator over the blobs in r. The directory is
// re-listed on every call, so results reflect the on-disk state at call
// time; filenames this store did not produce are skipped without error.
// Payloads are read and decoded only as the iterator reaches them.
func (s *Store) Get(ctx context.Context, r Range, opts GetOptions) (*index.Iterator, error) {
	if opts.Pull {
		if err := s.sync.Pull(ctx); err != nil {
			return nil, err
		}
	}

	listing, err := os.ReadDir(s.path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "store.Get", s.path, err)
	}
	names := make([]string, 0, len(listing))
	for _, entry := range listing {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	entries := index.Select(names, r.Start, r.End)
	s.log.Debug("range query", "start", r.Start, "end", r.End, "matched", len(entries))
	return index.NewIterator(entries, s.open, s.policy), nil
}

func (s *Store) open(entry index.Entry) ([]byte, error) {
	if s.cache != nil {
		if payload, ok := s.cache.Get(entry.Name); ok {
			return payload, nil
		}
	}
	encoded, err := os.ReadFile(filepath.Join(s.path, entry.Name))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "store.Get", entry.Name, err)
	}
	payload, err := s.codec.Decode(encoded)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindOf(err), "store.Get", entry.Name, err)
	}
	if s.cache != nil {
		s.cache.Put(entry.Name, payload)
	}
	return payload, nil
}
