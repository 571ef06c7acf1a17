package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bookbuilder/internal/archive"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/forge"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the build and archive service"`

	Build struct {
		RepoURL string `short:"r" required:"" help:"Repository to build"`
		Commit  string `short:"k" help:"Commit to build (defaults to HEAD)"`
		IssueID int    `short:"i" help:"Review issue to report progress on"`
	} `cmd:"" help:"Run a single book build and wait for the outcome"`

	Unlock struct {
		RepoURL string `short:"r" required:"" help:"Repository whose build lock to release"`
	} `cmd:"" help:"Force-release the build lock for a repository"`

	Provision struct {
		RepoURL string `short:"r" required:"" help:"Source repository to fork"`
		IssueID int    `short:"i" required:"" help:"Submission identifier"`
	} `cmd:"" help:"Fork a submission into the production organization and configure it"`

	Archive struct {
		Create struct {
			IssueID       int      `short:"i" required:"" help:"Submission identifier"`
			Title         string   `short:"t" required:"" help:"Submission title"`
			RepoURL       string   `short:"r" help:"Source repository URL"`
			Commit        string   `short:"k" help:"Commit the archive captures"`
			ResourceTypes []string `short:"T" default:"book,data,repository,docker" help:"Resource types to deposit"`
			Authors       []string `short:"a" help:"Author names"`
			Keywords      []string `help:"Deposit keywords"`
		} `cmd:"" help:"Create archival deposit buckets for a submission"`

		Upload struct {
			IssueID      int    `short:"i" required:"" help:"Submission identifier"`
			ResourceType string `short:"T" required:"" help:"Resource type to upload"`
			Commit       string `short:"k" help:"Commit the artifact was built from"`
			Artifact     string `short:"f" required:"" help:"Path to the artifact file"`
			Overwrite    bool   `help:"Replace an existing upload for this resource"`
		} `cmd:"" help:"Upload one resource artifact into its deposit bucket"`

		Publish struct {
			IssueID int `short:"i" required:"" help:"Submission identifier"`
		} `cmd:"" help:"Publish every uploaded resource of a submission"`

		Status struct {
			IssueID int `short:"i" required:"" help:"Submission identifier"`
		} `cmd:"" help:"Show the archival status report for a submission"`
	} `cmd:"" help:"Archival deposit operations"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var runErr error
	switch ctx.Command() {
	case "serve":
		runErr = runServe(cfg, logger)
	case "build":
		runErr = runBuild(cfg, logger)
	case "unlock":
		runErr = runUnlock(cfg, logger)
	case "provision":
		runErr = runProvision(cfg, logger)
	case "archive create":
		runErr = runArchiveCreate(cfg, logger)
	case "archive upload":
		runErr = runArchiveUpload(cfg, logger)
	case "archive publish":
		runErr = runArchivePublish(cfg, logger)
	case "archive status":
		runErr = runArchiveStatus(cfg, logger)
	}
	if runErr != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", runErr)
		os.Exit(1)
	}
}

func runServe(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	slog.Info("Service started, waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return a.stop(stopCtx)
}

func runBuild(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	a.pool.Start(ctx)

	jobID, err := a.orchestrator.SubmitBuild(CLI.Build.RepoURL, CLI.Build.Commit, CLI.Build.IssueID)
	if err != nil {
		return err
	}
	slog.Info("Build admitted, waiting for completion", "job_id", jobID)

	// close drains the pool, so the command returns once the build resolves.
	return nil
}

func runUnlock(cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orchestrator.Unlock(CLI.Unlock.RepoURL); err != nil {
		return err
	}
	slog.Info("Build lock released", "repo", CLI.Unlock.RepoURL)
	return nil
}

func runProvision(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	project, err := forge.ParseRepoURL(CLI.Provision.RepoURL)
	if err != nil {
		return err
	}
	if err := a.provisioner.ForkAndConfigure(ctx, project, CLI.Provision.IssueID); err != nil {
		return err
	}
	slog.Info("Submission provisioned", "repo", project.FullName(), "issue_id", CLI.Provision.IssueID)
	return nil
}

func runArchiveCreate(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	types, err := archive.ParseResourceTypes(CLI.Archive.Create.ResourceTypes)
	if err != nil {
		return err
	}
	sub := archive.Submission{
		ID:       CLI.Archive.Create.IssueID,
		Title:    CLI.Archive.Create.Title,
		RepoURL:  CLI.Archive.Create.RepoURL,
		Commit:   CLI.Archive.Create.Commit,
		Keywords: CLI.Archive.Create.Keywords,
	}
	for _, name := range CLI.Archive.Create.Authors {
		sub.Authors = append(sub.Authors, archive.Author{Name: name})
	}

	record, err := a.archive.CreateDeposit(ctx, sub, types)
	if err != nil {
		return err
	}
	for resource, bucket := range record.Buckets {
		slog.Info("Deposit bucket created", "resource", resource, "deposition_id", bucket.ID)
	}
	return nil
}

func runArchiveUpload(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	resource := archive.ResourceType(strings.ToLower(CLI.Archive.Upload.ResourceType))
	if !resource.Valid() {
		return fmt.Errorf("unknown resource type %q", CLI.Archive.Upload.ResourceType)
	}
	receipt, err := a.archive.Upload(ctx,
		CLI.Archive.Upload.IssueID, resource,
		CLI.Archive.Upload.Commit, CLI.Archive.Upload.Artifact,
		CLI.Archive.Upload.Overwrite)
	if err != nil {
		return err
	}
	slog.Info("Artifact uploaded",
		"resource", receipt.ResourceType,
		"filename", receipt.Filename,
		"size_bytes", receipt.SizeBytes)
	return nil
}

func runArchivePublish(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	outcome, err := a.archive.PublishAll(ctx, CLI.Archive.Publish.IssueID)
	if err != nil {
		return err
	}
	for _, result := range outcome.Results {
		fmt.Println(result.Message())
	}
	slog.Info("Publish run finished", "completeness", outcome.Published.Completeness.String())
	return nil
}

func runArchiveStatus(cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.archive.StatusReport(CLI.Archive.Status.IssueID)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}
