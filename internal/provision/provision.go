// Package provision prepares a submission repository for archival: forks it
// into the archive organization and points its launch configuration at the
// production build service.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/retry"
)

// forgeClient is the forge surface provisioning needs.
type forgeClient interface {
	ForkRepository(ctx context.Context, fullName, organization string) error
	RepositoryExists(ctx context.Context, fullName string) (bool, error)
	GetFile(ctx context.Context, fullName, filePath string) (*forge.RepoFile, error)
	UpdateFile(ctx context.Context, fullName, filePath, sha, message string, content []byte) error
}

// Provisioner forks and configures submission repositories.
type Provisioner struct {
	forge         forgeClient
	organization  string
	productionURL string // production build service URL for launch buttons
	papersURL     string // base URL of citable preprint pages
	waitPolicy    retry.Policy
	logger        *slog.Logger
}

// New assembles a provisioner. Fork availability is polled with a fixed
// 15-second delay, five attempts.
func New(client forgeClient, organization, productionURL, papersURL string, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		forge:         client,
		organization:  organization,
		productionURL: productionURL,
		papersURL:     papersURL,
		waitPolicy:    retry.NewPolicy(retry.BackoffFixed, 15*time.Second, 15*time.Second, 4),
		logger:        logger,
	}
}

// ForkAndConfigure forks the project into the archive organization, waits
// for the fork to become available, and rewrites its launch configuration.
func (p *Provisioner) ForkAndConfigure(ctx context.Context, project forge.Project, submissionID int) error {
	forkName := p.organization + "/" + project.Repo

	exists, err := p.forge.RepositoryExists(ctx, forkName)
	if err != nil {
		return fmt.Errorf("check fork %s: %w", forkName, err)
	}
	if !exists {
		if err := p.forge.ForkRepository(ctx, project.FullName(), p.organization); err != nil {
			return fmt.Errorf("fork %s into %s: %w", project.FullName(), p.organization, err)
		}
		// Forking is asynchronous on the provider side.
		err = p.waitPolicy.Do(ctx, func(ctx context.Context) error {
			ok, err := p.forge.RepositoryExists(ctx, forkName)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("fork %s not yet available", forkName)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("wait for fork %s: %w", forkName, err)
		}
	}

	if err := p.configureLaunchButtons(ctx, forkName); err != nil {
		return err
	}
	if err := p.addCitableChapter(ctx, forkName, submissionID); err != nil {
		return err
	}
	p.logger.Info("fork provisioned", "fork", forkName, "submission", submissionID)
	return nil
}

// configureLaunchButtons points _config.yml's binderhub_url at the
// production build service.
func (p *Provisioner) configureLaunchButtons(ctx context.Context, forkName string) error {
	file, err := p.forge.GetFile(ctx, forkName, "_config.yml")
	if err != nil {
		return fmt.Errorf("read _config.yml in %s: %w", forkName, err)
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(file.Content, &cfg); err != nil {
		return fmt.Errorf("decode _config.yml: %w", err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	buttons, _ := cfg["launch_buttons"].(map[string]any)
	if buttons == nil {
		buttons = map[string]any{}
	}
	buttons["binderhub_url"] = p.productionURL
	cfg["launch_buttons"] = buttons

	updated, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode _config.yml: %w", err)
	}
	if err := p.forge.UpdateFile(ctx, forkName, "_config.yml", file.SHA, "Point launch buttons at the production build service", updated); err != nil {
		return fmt.Errorf("update _config.yml in %s: %w", forkName, err)
	}
	return nil
}

// addCitableChapter appends a link to the citable preprint page to _toc.yml
// unless one is already present.
func (p *Provisioner) addCitableChapter(ctx context.Context, forkName string, submissionID int) error {
	file, err := p.forge.GetFile(ctx, forkName, "_toc.yml")
	if err != nil {
		return fmt.Errorf("read _toc.yml in %s: %w", forkName, err)
	}

	var toc map[string]any
	if err := yaml.Unmarshal(file.Content, &toc); err != nil {
		return fmt.Errorf("decode _toc.yml: %w", err)
	}
	if toc == nil {
		toc = map[string]any{}
	}

	citableURL := fmt.Sprintf("%s/%05d", p.papersURL, submissionID)
	chapters, _ := toc["chapters"].([]any)
	for _, raw := range chapters {
		chapter, _ := raw.(map[string]any)
		if chapter != nil && chapter["url"] == citableURL {
			return nil
		}
	}
	chapters = append(chapters, map[string]any{
		"url":   citableURL,
		"title": "Citable PDF and archives",
	})
	toc["chapters"] = chapters

	updated, err := yaml.Marshal(toc)
	if err != nil {
		return fmt.Errorf("encode _toc.yml: %w", err)
	}
	if err := p.forge.UpdateFile(ctx, forkName, "_toc.yml", file.SHA, "Link the citable preprint page", updated); err != nil {
		return fmt.Errorf("update _toc.yml in %s: %w", forkName, err)
	}
	return nil
}
