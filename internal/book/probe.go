package book

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/bookbuilder/internal/binder"
	"git.home.luguber.info/inful/bookbuilder/internal/forge"
)

// buildLogName is the per-build log file the builder leaves next to _build.
const buildLogName = "book-build.log"

// FindBuilt reports the built book for a specific project and commit, or nil
// when no artifact exists.
func (inv *Inventory) FindBuilt(project forge.Project, commit string) (*binder.BuiltArtifact, error) {
	book, ok := inv.load(project.Owner, project.Provider, project.Repo, commit)
	if !ok {
		return nil, nil
	}
	return &binder.BuiltArtifact{
		BookURL:     book.BookURL,
		DownloadURL: fmt.Sprintf("%s/%s/%s/%s/%s/%s.tar.gz", inv.baseURL, project.Owner, project.Provider, project.Repo, commit, commit),
	}, nil
}

// ExecutionErrored reports whether the build left execution error reports
// behind. A book can render while notebook execution still failed, so this
// marker is checked on its own.
func (inv *Inventory) ExecutionErrored(project forge.Project, commit string) (bool, error) {
	reports, err := inv.reportFiles(project, commit)
	if err != nil {
		return false, err
	}
	return len(reports) > 0, nil
}

// CollectErrorReports gathers the book build log and every execution error
// report into named sections for the failure payload.
func (inv *Inventory) CollectErrorReports(project forge.Project, commit string) ([]binder.LogSection, error) {
	dir := inv.commitDir(project, commit)
	var sections []binder.LogSection

	if data, err := os.ReadFile(filepath.Join(dir, buildLogName)); err == nil {
		sections = append(sections, binder.LogSection{Title: "Jupyter Book build log", Body: string(data)})
	}

	reports, err := inv.reportFiles(project, commit)
	if err != nil {
		return sections, err
	}
	for _, report := range reports {
		data, err := os.ReadFile(report)
		if err != nil {
			inv.logger.Warn("read execution report failed", "path", report, "error", err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(report), filepath.Ext(report))
		sections = append(sections, binder.LogSection{
			Title: fmt.Sprintf("Execution report: %s", name),
			Body:  string(data),
		})
	}
	return sections, nil
}

// reportFiles lists the execution error reports for a build, sorted by name.
func (inv *Inventory) reportFiles(project forge.Project, commit string) ([]string, error) {
	dir := filepath.Join(inv.commitDir(project, commit), "_build", "html", "reports")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reports directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
