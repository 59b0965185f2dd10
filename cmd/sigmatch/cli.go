package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/decay"
	"github.com/fwojciec/sigmatch/discover"
	"github.com/fwojciec/sigmatch/embed"
	"github.com/fwojciec/sigmatch/match"
	"github.com/fwojciec/sigmatch/scrape"
	"github.com/fwojciec/sigmatch/selector"
	"github.com/fwojciec/sigmatch/yaml"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Config *yaml.Config

	Sources  sigmatch.SourceService
	Articles sigmatch.ArticleService
	Targets  sigmatch.TargetService
	Matches  sigmatch.MatchService
	Content  sigmatch.ContentService
	Quota    sigmatch.QuotaService
	Jobs     sigmatch.JobService

	Discoverer *discover.Engine
	Scraper    *scrape.Scraper
	Embedder   *embed.Worker
	Matcher    *match.Matcher
	Selector   *selector.Selector
	Decayer    *decay.Engine
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config   string `help:"Path to the YAML configuration file" default:"sigmatch.yaml" env:"SIGMATCH_CONFIG"`
	DB       string `name:"db" help:"Database path (overrides config)"`
	LogLevel string `name:"log-level" help:"Log level: debug, info, warn or error (overrides config)"`

	Sources  SourcesCmd  `cmd:"" help:"Manage the source registry"`
	Targets  TargetsCmd  `cmd:"" help:"Manage intelligence targets"`
	Discover DiscoverCmd `cmd:"" help:"Discover new articles from active sources"`
	Scrape   ScrapeCmd   `cmd:"" help:"Fetch full text for pending articles"`
	Embed    EmbedCmd    `cmd:"" help:"Embed recent articles"`
	Match    MatchCmd    `cmd:"" help:"Match embedded articles against targets"`
	Matches  MatchesCmd  `cmd:"" help:"List stored matches for an organization"`
	Select   SelectCmd   `cmd:"" help:"Select articles for an organization"`
	Decay    DecayCmd    `cmd:"" help:"Decay the salience of stored content"`
	Run      RunCmd      `cmd:"" help:"Run discover, scrape, embed and match once"`
	Schedule ScheduleCmd `cmd:"" help:"Run the pipeline and decay on a fixed interval"`
	Jobs     JobsCmd     `cmd:"" help:"List recent job runs"`
}

// SourcesCmd groups the source registry subcommands.
type SourcesCmd struct {
	Import SourcesImportCmd `cmd:"" help:"Import sources from a catalog file"`
	List   SourcesListCmd   `cmd:"" help:"List sources and their health"`
	Enable SourcesEnableCmd `cmd:"" help:"Re-activate a disabled source"`
}

// SourcesImportCmd is the "sources import" subcommand.
type SourcesImportCmd struct {
	Path string `arg:"" help:"Source catalog YAML file" type:"existingfile"`
}

// SourcesListCmd is the "sources list" subcommand.
type SourcesListCmd struct {
	Inactive bool `help:"Only show disabled sources"`
}

// SourcesEnableCmd is the "sources enable" subcommand.
type SourcesEnableCmd struct {
	Name string `arg:"" help:"Source name"`
}

// TargetsCmd groups the target subcommands.
type TargetsCmd struct {
	Import TargetsImportCmd `cmd:"" help:"Import targets from a catalog file"`
	List   TargetsListCmd   `cmd:"" help:"List targets"`
	Embed  TargetsEmbedCmd  `cmd:"" help:"Embed targets that lack an embedding"`
}

// TargetsImportCmd is the "targets import" subcommand.
type TargetsImportCmd struct {
	Path string `arg:"" help:"Target catalog YAML file" type:"existingfile"`
}

// TargetsListCmd is the "targets list" subcommand.
type TargetsListCmd struct {
	Org string `help:"Only show targets for this organization"`
}

// TargetsEmbedCmd is the "targets embed" subcommand.
type TargetsEmbedCmd struct {
	Org string `help:"Only embed targets for this organization"`
}

// DiscoverCmd is the "discover" subcommand.
type DiscoverCmd struct{}

// ScrapeCmd is the "scrape" subcommand.
type ScrapeCmd struct{}

// EmbedCmd is the "embed" subcommand.
type EmbedCmd struct{}

// MatchCmd is the "match" subcommand.
type MatchCmd struct {
	Org string `help:"Only match targets for this organization"`
}

// MatchesCmd is the "matches" subcommand.
type MatchesCmd struct {
	Org    string `arg:"" help:"Organization ID"`
	Target string `help:"Only show matches for this target name"`
	Limit  int    `default:"50" help:"Maximum number of matches to show"`
}

// SelectCmd is the "select" subcommand.
type SelectCmd struct {
	Org   string        `arg:"" help:"Organization ID"`
	Since time.Duration `help:"Recency window (default from config)"`
	JSON  bool          `name:"json" help:"Print the selection as JSON"`
}

// DecayCmd is the "decay" subcommand.
type DecayCmd struct {
	DryRun bool   `name:"dry-run" help:"Report the effect without writing"`
	Org    string `help:"Only decay content for this organization"`
	Type   string `help:"Only decay this content type"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct{}

// ScheduleCmd is the "schedule" subcommand.
type ScheduleCmd struct {
	Every time.Duration `help:"Pipeline interval (default from config)"`
}

// JobsCmd is the "jobs" subcommand.
type JobsCmd struct {
	Type  string `help:"Only show jobs of this type"`
	Limit int    `default:"20" help:"Maximum number of jobs to show"`
}
