package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

var (
	// ErrNotCheckout is returned when no git working checkout contains the
	// given directory.
	ErrNotCheckout = errors.New("not inside a git checkout")

	// ErrNotShared is returned when a path holds a repository that cannot
	// serve as a shared object store.
	ErrNotShared = errors.New("not a shared repository")
)

// alternatesPath is the file, relative to the git directory, that lists
// the object stores a repository borrows objects from.
const alternatesPath = "objects/info/alternates"

// Checkout is a working checkout opened by Manager.Open.
type Checkout struct {
	// Root is the top-level directory of the working tree.
	Root string

	// GitDir is the repository directory (usually Root/.git).
	GitDir string

	// Shared reports whether the checkout borrows objects from another
	// repository through git alternates.
	Shared bool

	repo *git.Repository
}

// SharedRepo is a bare repository whose object store is shared by several
// checkouts.
type SharedRepo struct {
	// Path is the directory of the bare repository.
	Path string
}

// Manager opens checkouts and moves them onto shared object stores.
//
// Inspection and initialization go through go-git. Fetching objects into
// the shared store and repacking the checkout shell out to the git binary,
// since go-git has no local-only repack.
type Manager struct {
	gitBinary string
}

// NewManager creates a Manager that runs the git binary found in PATH.
func NewManager() *Manager {
	return &Manager{gitBinary: "git"}
}

// Open finds the git checkout containing dir, walking up parent
// directories the way git itself does.
//
// A bare repository is not a checkout: opening one, or a directory that
// is not inside any repository, fails with ErrNotCheckout.
func (m *Manager) Open(dir string) (*Checkout, error) {
	repo, err := openRepository(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotCheckout, dir)
		}
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil, fmt.Errorf("%w: %s is a bare repository", ErrNotCheckout, dir)
		}
		return nil, fmt.Errorf("failed to open worktree at %s: %w", dir, err)
	}

	storage, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil, fmt.Errorf("repository at %s is not stored on disk", dir)
	}

	shared, err := hasAlternates(storage)
	if err != nil {
		return nil, err
	}

	return &Checkout{
		Root:   wt.Filesystem.Root(),
		GitDir: storage.Filesystem().Root(),
		Shared: shared,
		repo:   repo,
	}, nil
}

// openRepository opens the repository at dir, or the one whose .git entry
// sits in dir or one of its parents.
//
// dir is tried on its own first. Parent detection only looks for a .git
// entry, so it would walk straight past a bare repository.
func openRepository(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	}
	return repo, err
}

// hasAlternates reports whether the repository lists at least one
// alternate object store.
func hasAlternates(storage *filesystem.Storage) (bool, error) {
	content, err := util.ReadFile(storage.Filesystem(), alternatesPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read alternates of %s: %w", storage.Filesystem().Root(), err)
	}
	return strings.TrimSpace(string(content)) != "", nil
}

// Name is the directory name of the checkout. It namespaces the
// checkout's branches inside a shared repository.
func (c *Checkout) Name() string {
	return filepath.Base(c.Root)
}

// InitShared makes sure a bare repository exists at path and returns it.
//
// An existing bare repository is reused as is. An existing directory that
// is not a repository is initialized in place. The parent of path must
// already exist.
func (m *Manager) InitShared(path string) (*SharedRepo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("parent of shared repository %s: %w", abs, err)
	}

	repo, err := git.PlainOpen(abs)
	switch {
	case err == nil:
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read config of %s: %w", abs, err)
		}
		if !cfg.Core.IsBare {
			return nil, fmt.Errorf("%w: %s has a working tree", ErrNotShared, abs)
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		if _, err := git.PlainInit(abs, true); err != nil {
			return nil, fmt.Errorf("failed to initialize shared repository at %s: %w", abs, err)
		}
	default:
		return nil, fmt.Errorf("failed to open shared repository at %s: %w", abs, err)
	}

	return &SharedRepo{Path: abs}, nil
}

// UseShared moves the checkout onto the shared object store.
//
// The checkout's branches are fetched into the shared repository under
// refs/checkouts/<name>/, the shared store is registered as an alternate
// of the checkout, and the checkout is repacked so objects already present
// in the shared store are dropped locally.
func (m *Manager) UseShared(ctx context.Context, c *Checkout, shared *SharedRepo) error {
	refspec := fmt.Sprintf("+refs/heads/*:refs/checkouts/%s/*", c.Name())
	if _, err := m.runGit(ctx, shared.Path, "fetch", "--quiet", c.Root, refspec); err != nil {
		return err
	}

	if err := c.repo.Storer.AddAlternate(shared.Path); err != nil {
		return fmt.Errorf("failed to add %s as alternate of %s: %w", shared.Path, c.Root, err)
	}

	c.Shared = true

	if _, err := m.runGit(ctx, c.Root, "repack", "-a", "-d", "-l", "-q"); err != nil {
		return err
	}
	return nil
}

// runGit executes a git command with the given arguments in the specified
// directory and returns its stdout.
//
// The directory is passed with -C so the goose-ci process never changes
// its own working directory. On failure the error includes git's stderr.
func (m *Manager) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 -- args are constructed internally, not from user input
	cmd := exec.CommandContext(ctx, m.gitBinary, fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", fmt.Errorf("%s: %w", message, err)
	}

	return stdout.String(), nil
}
