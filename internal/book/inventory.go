// Package book maintains the inventory of built books on disk and answers
// the probe queries the build path needs: artifact presence, execution-error
// markers, and error report collection.
package book

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
)

// Book is one built book located in the artifact tree.
type Book struct {
	Owner       string    `json:"owner"`
	Provider    string    `json:"provider"`
	Repo        string    `json:"repo"`
	Commit      string    `json:"commit"`
	BookURL     string    `json:"book_url"`
	BuildLogURL string    `json:"build_log_url"`
	TimeAdded   time.Time `json:"time_added"`
}

// Inventory scans the artifact tree lazily and caches the result until the
// filesystem watcher reports a change.
//
// Layout: <root>/{owner}/{provider}/{repo}/{commit}/_build/html is a built
// book; {commit}/book-build.log is its build log; _build/html/reports holds
// per-notebook execution error reports when execution failed.
type Inventory struct {
	root    string
	baseURL string
	logger  *slog.Logger

	mu      sync.Mutex
	cache   []Book
	dirty   bool
	watcher *fsnotify.Watcher
}

// NewInventory opens the artifact tree under dataDir and starts the change
// watcher. baseURL is where the artifact tree is served.
func NewInventory(dataDir, baseURL string, logger *slog.Logger) (*Inventory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := filepath.Join(dataDir, "book-artifacts")
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}

	inv := &Inventory{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		dirty:   true,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create inventory watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch artifact root: %w", err)
	}
	inv.watcher = watcher
	go inv.watch()
	return inv, nil
}

// Close stops the filesystem watcher.
func (inv *Inventory) Close() error {
	if inv.watcher == nil {
		return nil
	}
	return inv.watcher.Close()
}

// watch marks the cache dirty on any change under the artifact root. The
// watcher is not recursive, so new owner directories are added as they
// appear; deeper changes are picked up by the rescan the dirty flag forces.
func (inv *Inventory) watch() {
	for {
		select {
		case ev, ok := <-inv.watcher.Events:
			if !ok {
				return
			}
			inv.mu.Lock()
			inv.dirty = true
			inv.mu.Unlock()
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := inv.watcher.Add(ev.Name); err != nil {
						inv.logger.Debug("watch new artifact directory failed", "path", ev.Name, "error", err)
					}
				}
			}
		case err, ok := <-inv.watcher.Errors:
			if !ok {
				return
			}
			inv.logger.Warn("inventory watcher error", "error", err)
		}
	}
}

// List returns every built book, rescanning only when the tree changed.
func (inv *Inventory) List() ([]Book, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.dirty {
		return inv.cache, nil
	}
	books, err := inv.scan()
	if err != nil {
		return nil, err
	}
	inv.cache = books
	inv.dirty = false
	return books, nil
}

// Invalidate forces a rescan on the next List. Used by the build worker
// right after it lands a new artifact.
func (inv *Inventory) Invalidate() {
	inv.mu.Lock()
	inv.dirty = true
	inv.mu.Unlock()
}

// scan walks the fixed owner/provider/repo/commit depth of the tree.
func (inv *Inventory) scan() ([]Book, error) {
	var books []Book
	owners, err := os.ReadDir(inv.root)
	if err != nil {
		return nil, fmt.Errorf("read artifact root: %w", err)
	}
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		providers, err := os.ReadDir(filepath.Join(inv.root, owner.Name()))
		if err != nil {
			continue
		}
		for _, provider := range providers {
			if !provider.IsDir() {
				continue
			}
			repos, err := os.ReadDir(filepath.Join(inv.root, owner.Name(), provider.Name()))
			if err != nil {
				continue
			}
			for _, repo := range repos {
				if !repo.IsDir() {
					continue
				}
				commits, err := os.ReadDir(filepath.Join(inv.root, owner.Name(), provider.Name(), repo.Name()))
				if err != nil {
					continue
				}
				for _, commit := range commits {
					if !commit.IsDir() {
						continue
					}
					book, ok := inv.load(owner.Name(), provider.Name(), repo.Name(), commit.Name())
					if ok {
						books = append(books, book)
					}
				}
			}
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].TimeAdded.After(books[j].TimeAdded) })
	return books, nil
}

// load validates one commit directory as a built book.
func (inv *Inventory) load(owner, provider, repo, commit string) (Book, bool) {
	htmlDir := filepath.Join(inv.root, owner, provider, repo, commit, "_build", "html")
	info, err := os.Stat(htmlDir)
	if err != nil || !info.IsDir() {
		return Book{}, false
	}
	rel := strings.Join([]string{owner, provider, repo, commit}, "/")
	return Book{
		Owner:       owner,
		Provider:    provider,
		Repo:        repo,
		Commit:      commit,
		BookURL:     fmt.Sprintf("%s/%s/_build/html/index.html", inv.baseURL, rel),
		BuildLogURL: fmt.Sprintf("%s/%s/book-build.log", inv.baseURL, rel),
		TimeAdded:   info.ModTime(),
	}, true
}

// FindByCommit returns the books built from the given commit.
func (inv *Inventory) FindByCommit(commit string) ([]Book, error) {
	return inv.filter(func(b Book) bool { return b.Commit == commit })
}

// FindByOwner returns the books belonging to an owner.
func (inv *Inventory) FindByOwner(owner string) ([]Book, error) {
	return inv.filter(func(b Book) bool { return strings.EqualFold(b.Owner, owner) })
}

// FindByRepo returns the books built from a repository.
func (inv *Inventory) FindByRepo(repo string) ([]Book, error) {
	return inv.filter(func(b Book) bool { return strings.EqualFold(b.Repo, repo) })
}

func (inv *Inventory) filter(keep func(Book) bool) ([]Book, error) {
	all, err := inv.List()
	if err != nil {
		return nil, err
	}
	var out []Book
	for _, b := range all {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

// commitDir returns the artifact directory for a specific build.
func (inv *Inventory) commitDir(project forge.Project, commit string) string {
	return filepath.Join(inv.root, project.Owner, project.Provider, project.Repo, commit)
}
