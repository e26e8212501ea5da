package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"flambient/internal/blend"
	"flambient/internal/compositor"
	"flambient/internal/config"
	"flambient/internal/exif"
	"flambient/internal/exposure"
	"flambient/internal/logging"
	"flambient/internal/services"
)

// Extractor reads EXIF fields for the images in a directory.
type Extractor interface {
	Extract(ctx context.Context, dir string, fields []string) ([]exif.Record, error)
}

// Compositor renders written blend scripts.
type Compositor interface {
	Run(ctx context.Context, scriptDir string, recipes []blend.Recipe) []compositor.Result
}

// Settings controls classification and blending.
type Settings struct {
	Strategy     exposure.Strategy
	AmbientValue string
	Params       blend.Params
	Engine       string
	Render       bool
}

// SettingsFromConfig resolves the classification strategy and blend
// parameters in cfg.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	strategy, err := exposure.ParseStrategy(cfg.Exposure.Strategy, cfg.Exposure.CustomField)
	if err != nil {
		return Settings{}, services.Wrap(services.ErrConfiguration, "pipeline", "strategy", "", err)
	}
	ambient, err := exposure.ResolveAmbientValue(strategy, cfg.Exposure.AmbientValue)
	if err != nil {
		return Settings{}, services.Wrap(services.ErrConfiguration, "pipeline", "ambient value", "", err)
	}
	return Settings{
		Strategy:     strategy,
		AmbientValue: ambient,
		Params: blend.Params{
			LevelLow:     cfg.Blend.LevelLow,
			LevelHigh:    cfg.Blend.LevelHigh,
			Gamma:        cfg.Blend.Gamma,
			OutputPrefix: cfg.Blend.OutputPrefix,
			Quality:      cfg.Blend.Quality,
		},
		Engine: cfg.Tools.Magick,
		Render: cfg.Blend.Render,
	}, nil
}

// Plan is the in-memory result of classifying and grouping a shoot.
type Plan struct {
	InputDir          string
	Manifest          []string
	Records           []exif.Record
	Exposures         []exposure.Exposure
	Groups            []exposure.Group
	Recipes           []blend.Recipe
	Stats             exposure.Stats
	MissingTimestamps int
}

// Output describes what Materialize wrote and rendered.
type Output struct {
	Dir     string
	Scripts blend.ScriptSet
	Results []compositor.Result
	Summary compositor.Summary
	Render  bool
}

// Planner turns a directory of bracketed frames into blend recipes.
type Planner struct {
	settings   Settings
	extractor  Extractor
	compositor Compositor
	logger     *slog.Logger
}

// Option customizes the planner.
type Option func(*Planner)

// WithCompositor overrides the engine runner used when rendering.
func WithCompositor(c Compositor) Option {
	return func(p *Planner) {
		if c != nil {
			p.compositor = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner constructs a planner.
func NewPlanner(settings Settings, extractor Extractor, opts ...Option) *Planner {
	if settings.Strategy == nil {
		settings.Strategy = exposure.FlashStrategy{}
	}
	p := &Planner{settings: settings, extractor: extractor}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	if p.compositor == nil {
		p.compositor = compositor.New(settings.Engine, compositor.WithLogger(p.logger))
	}
	return p
}

// Plan scans inputDir, extracts EXIF, classifies and groups the frames and
// synthesizes a recipe per group. Nothing is written.
func (p *Planner) Plan(ctx context.Context, inputDir string) (*Plan, error) {
	dir, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan", "resolve input dir", err)
	}
	manifest, err := ScanManifest(dir)
	if err != nil {
		return nil, err
	}

	field := p.settings.Strategy.Field()
	records, err := p.extractor.Extract(ctx, dir, []string{field})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan",
			fmt.Sprintf("exiftool reported no images in %s", dir), nil)
	}

	exposureRecords, missing := exif.ToExposureRecords(records)
	if missing > 0 {
		logging.WarnWithContext(p.logger, "frames without capture time", "missing_timestamp",
			logging.Int("count", missing),
			logging.String(logging.FieldImpact, "frames without DateTimeOriginal sort first and may group incorrectly"),
		)
	}

	exposures := exposure.Classify(exposureRecords, p.settings.Strategy, p.settings.AmbientValue)
	groups := exposure.GroupExposures(exposures)
	stats := exposure.Summarize(exposures, groups)
	recipes := blend.SynthesizeAll(groups, p.settings.Params)

	p.logger.Info("shoot classified",
		logging.String("strategy", p.settings.Strategy.Name()),
		logging.String("field", field),
		logging.String("ambient_value", p.settings.AmbientValue),
		logging.Int("frames", stats.Total),
		logging.Int("ambient", stats.Ambient),
		logging.Int("flash", stats.Flash),
		logging.Int("groups", stats.Groups),
		logging.Int("unblendable", stats.Unblendable),
	)
	if stats.Ambient == 0 || stats.Flash == 0 {
		logging.WarnWithContext(p.logger, "classification found a single exposure type", "one_sided_classification",
			logging.String(logging.FieldErrorHint, "check the strategy field and ambient value with --dry-run"),
			logging.String(logging.FieldImpact, "no group can be blended"),
		)
	}

	return &Plan{
		InputDir:          dir,
		Manifest:          manifest,
		Records:           records,
		Exposures:         exposures,
		Groups:            groups,
		Recipes:           recipes,
		Stats:             stats,
		MissingTimestamps: missing,
	}, nil
}

// Materialize writes the plan's scripts into outputDir, with every output
// image targeted there, and renders them when rendering is enabled.
func (p *Planner) Materialize(ctx context.Context, plan *Plan, outputDir string) (*Output, error) {
	if plan == nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "materialize", "plan is nil", nil)
	}
	dir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "materialize", "resolve output dir", err)
	}

	params := p.settings.Params
	params.OutputDir = dir
	plan.Recipes = blend.SynthesizeAll(plan.Groups, params)

	scripts, err := blend.WriteScripts(dir, plan.Recipes, p.settings.Engine)
	if err != nil {
		return nil, err
	}
	out := &Output{Dir: dir, Scripts: scripts, Render: p.settings.Render}
	p.logger.Info("blend scripts written",
		logging.String("dir", dir),
		logging.Int("scripts", len(scripts.Scripts)),
		logging.String("runner", scripts.Runner),
	)
	if !p.settings.Render {
		return out, nil
	}

	out.Results = p.compositor.Run(ctx, dir, plan.Recipes)
	out.Summary = compositor.Summarize(out.Results)
	p.logger.Info("render finished",
		logging.Int("succeeded", out.Summary.Succeeded),
		logging.Int("failed", out.Summary.Failed),
		logging.Int("skipped", out.Summary.Skipped),
	)
	return out, nil
}
