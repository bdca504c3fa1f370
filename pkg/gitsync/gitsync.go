// Package gitsync wraps a pre-existing cloned git repository as the
// synchronization primitive behind the blob store: pull to see remote
// writers' blobs, commit+push to make local blobs durable. The store above
// treats both as opaque operations; everything git-specific lives here.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/jacktea/gitblobts/pkg/xerrors"
)

// Repository state conditions reported by New and Open. All are wrapped in
// a KindRepoState error.
var (
	ErrBare      = errors.New("repository is bare")
	ErrDirty     = errors.New("repository has uncommitted changes")
	ErrUntracked = errors.New("repository has untracked files")
	ErrNoRemote  = errors.New("repository has no remote")
)

// Options configures a Repo.
type Options struct {
	// Remote names the remote to pull from and push to.
	// Defaults to "origin".
	Remote string

	// AuthorName and AuthorEmail sign the commits created by
	// CommitAndPush. Defaults are "gitblobts" and
	// "gitblobts@localhost".
	AuthorName  string
	AuthorEmail string

	// Logger receives debug/info records. Nil discards them.
	Logger *slog.Logger
}

// Repo is the synchronization primitive over one local clone.
type Repo struct {
	repo   *git.Repository
	wt     *git.Worktree
	root   string
	remote string
	author object.Signature
	log    *slog.Logger
}

// Open opens the repository at path and verifies it is usable: not bare,
// clean, no untracked files, and connected to a remote.
func Open(path string, opts Options) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, xerrors.Wrap(xerrors.KindNotFound, "gitsync.Open", path, err)
		}
		return nil, xerrors.Wrap(xerrors.KindRepoState, "gitsync.Open", path, err)
	}
	return New(repo, opts)
}

// New wraps an already-open repository. Used directly by tests that build
// repositories on in-memory filesystems.
func New(repo *git.Repository, opts Options) (*Repo, error) {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	authorName := opts.AuthorName
	if authorName == "" {
		authorName = "gitblobts"
	}
	authorEmail := opts.AuthorEmail
	if authorEmail == "" {
		authorEmail = "gitblobts@localhost"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil, xerrors.Wrap(xerrors.KindRepoState, "gitsync.New", "", ErrBare)
		}
		return nil, xerrors.Wrap(xerrors.KindRepoState, "gitsync.New", "", err)
	}

	r := &Repo{
		repo:   repo,
		wt:     wt,
		root:   wt.Filesystem.Root(),
		remote: remote,
		author: object.Signature{Name: authorName, Email: authorEmail},
		log:    logger,
	}
	if err := r.Check(); err != nil {
		return nil, err
	}
	r.log.Debug("opened repository", "root", r.root, "remote", r.remote)
	return r, nil
}

// Root returns the worktree root directory.
func (r *Repo) Root() string { return r.root }

// Check verifies the repository state the store depends on: a clean
// worktree with no untracked files and at least one remote. Blobs written
// outside this store's discipline would otherwise get swept into its
// commits.
func (r *Repo) Check() error {
	status, err := r.wt.Status()
	if err != nil {
		return xerrors.Wrap(xerrors.KindRepoState, "gitsync.Check", r.root, err)
	}
	for path, fs := range status {
		if fs.Worktree == git.Untracked {
			return xerrors.Wrap(xerrors.KindRepoState, "gitsync.Check", path, ErrUntracked)
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			return xerrors.Wrap(xerrors.KindRepoState, "gitsync.Check", path, ErrDirty)
		}
	}
	remotes, err := r.repo.Remotes()
	if err != nil {
		return xerrors.Wrap(xerrors.KindRepoState, "gitsync.Check", r.root, err)
	}
	if len(remotes) == 0 {
		return xerrors.Wrap(xerrors.KindRepoState, "gitsync.Check", r.root, ErrNoRemote)
	}
	return nil
}

// Pull brings in remote writers' blobs. An up-to-date branch, an empty
// remote, or a remote with no matching upstream branch yet are all success.
// A non-fast-forward result is a conflict, surfaced untouched; this layer
// performs no conflict resolution.
func (r *Repo) Pull(ctx context.Context) error {
	r.log.Debug("pulling", "remote", r.remote)
	err := r.wt.PullContext(ctx, &git.PullOptions{RemoteName: r.remote})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		r.log.Info("pulled", "remote", r.remote)
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		// Nothing pushed yet; the first push establishes the branch.
		r.log.Debug("pull skipped, remote has no matching branch", "remote", r.remote)
		return nil
	case isNonFastForward(err):
		return xerrors.Wrap(xerrors.KindSyncConflict, "gitsync.Pull", r.remote, err)
	default:
		return xerrors.Wrap(xerrors.KindSyncFailure, "gitsync.Pull", r.remote, err)
	}
}

// CommitAndPush stages the given paths (absolute, or relative to the
// worktree root), commits them, and pushes. A push rejected because the
// remote moved ahead triggers one pull followed by one retry, mirroring a
// human's pull-then-push; a second rejection or a conflicting pull is
// surfaced to the caller.
func (r *Repo) CommitAndPush(ctx context.Context, paths []string) error {
	for _, path := range paths {
		rel, err := r.relPath(path)
		if err != nil {
			return err
		}
		if _, err := r.wt.Add(rel); err != nil {
			return xerrors.Wrap(xerrors.KindSyncFailure, "gitsync.CommitAndPush", rel, err)
		}
	}

	author := r.author
	author.When = time.Now()
	msg := commitMessage(len(paths))
	if _, err := r.wt.Commit(msg, &git.CommitOptions{Author: &author}); err != nil {
		// Everything staged may already be committed, e.g. when a
		// caller retries after a failed push. Push what is there.
		if !errors.Is(err, git.ErrEmptyCommit) {
			return xerrors.Wrap(xerrors.KindSyncFailure, "gitsync.CommitAndPush", r.root, err)
		}
		r.log.Debug("nothing new to commit")
	} else {
		r.log.Debug("committed", "paths", len(paths))
	}

	err := r.push(ctx)
	if err == nil {
		return nil
	}
	if !isNonFastForward(err) {
		return xerrors.Wrap(xerrors.KindSyncFailure, "gitsync.CommitAndPush", r.remote, err)
	}

	r.log.Info("push rejected, pulling and retrying", "remote", r.remote)
	if err := r.Pull(ctx); err != nil {
		return err
	}
	if err := r.push(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindSyncFailure, "gitsync.CommitAndPush", r.remote, err)
	}
	return nil
}

func (r *Repo) push(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &git.PushOptions{RemoteName: r.remote})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		r.log.Info("pushed", "remote", r.remote)
		return nil
	}
	return err
}

func (r *Repo) relPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), nil
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", xerrors.E(xerrors.KindInvalid, "gitsync.CommitAndPush", path)
	}
	return filepath.ToSlash(rel), nil
}

func commitMessage(n int) string {
	if n == 1 {
		return "add 1 blob"
	}
	return fmt.Sprintf("add %d blobs", n)
}

// isNonFastForward matches go-git's rejected-update errors. The pull path
// returns the exported sentinel; the push path formats the ref name into
// the message, so a substring match is needed as well.
func isNonFastForward(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, git.ErrNonFastForwardUpdate) {
		return true
	}
	return strings.Contains(err.Error(), "non-fast-forward update")
}
