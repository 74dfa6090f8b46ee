// Package pipeline runs every (input image, mockup definition) pair through
// segmentation, compositing, encoding and metadata tagging on a bounded
// worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/mockup-forge/internal/utils"
	"github.com/menta2k/mockup-forge/pkg/compositor"
	"github.com/menta2k/mockup-forge/pkg/exifmeta"
	"github.com/menta2k/mockup-forge/pkg/ledger"
	"github.com/menta2k/mockup-forge/pkg/processing"
	"github.com/menta2k/mockup-forge/pkg/templates"
	"github.com/menta2k/mockup-forge/pkg/types"
	"github.com/menta2k/mockup-forge/pkg/vision"
)

// InputLoader decodes a source design
type InputLoader interface {
	LoadImage(path string) (image.Image, error)
}

// Classifier checks a source design and picks its template variant
type Classifier interface {
	ValidateImage(img image.Image) error
	ClassifyBackground(img image.Image) (types.Variant, error)
}

// Config wires a Pipeline
type Config struct {
	Definitions  []types.MockupDefinition
	OutputFormat string
	EXIF         types.MetadataDefaults
	Workers      int

	Templates  *templates.Store
	Loader     InputLoader
	Classifier Classifier
	Segmenter  *vision.Segmenter
	Compositor *compositor.Compositor
	Processor  *processing.Processor
	Metadata   *exifmeta.Encoder
	Logger     *slog.Logger
}

// Pipeline turns source designs into encoded mockups
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline. Templates, Loader and Classifier are required;
// the remaining collaborators default to fresh instances.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Templates == nil || cfg.Loader == nil || cfg.Classifier == nil {
		return nil, errors.New("pipeline: templates, loader and classifier are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "webp"
	}
	if cfg.Segmenter == nil {
		cfg.Segmenter = vision.New()
	}
	if cfg.Processor == nil {
		cfg.Processor = processing.NewProcessor()
	}
	if cfg.Compositor == nil {
		cfg.Compositor = compositor.New(
			compositor.WithWatermarkSource(processing.NewWatermarkCache(cfg.Processor)),
			compositor.WithLogger(cfg.Logger),
		)
	}
	if cfg.Metadata == nil {
		cfg.Metadata = exifmeta.NewEncoder(exifmeta.WithLogger(cfg.Logger))
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger}, nil
}

// Report summarises one run
type Report struct {
	// Assets holds generated images grouped by mockup name, in input order
	Assets map[string][]types.GeneratedAsset

	Inputs    int
	Processed int
	Generated int
	Skipped   int
	Failed    int
}

// Counts returns the number of generated images per mockup
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int, len(r.Assets))
	for name, assets := range r.Assets {
		counts[name] = len(assets)
	}
	return counts
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeGenerated
	outcomeSkipped
)

type unitResult struct {
	outcome outcome
	asset   types.GeneratedAsset
}

// prepared is a decoded, classified and segmented source design
type prepared struct {
	name    string
	variant types.Variant
	fg      *image.NRGBA
}

// Rendered is a single finished mockup
type Rendered struct {
	Asset    types.GeneratedAsset
	Image    *image.NRGBA
	Placed   image.Rectangle
	Encoding processing.Encoding
}

// Run processes every input against every enabled definition and returns
// the ledger with this run's counts added. The input ledger is not modified.
// Unit failures are logged and dropped; only cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context, inputs []string, l ledger.Ledger) (ledger.Ledger, *Report, error) {
	var defs []types.MockupDefinition
	for _, def := range p.cfg.Definitions {
		if !def.Enabled() {
			p.logger.Info("skipping mockup set", "mockup", def.Name, "action", def.Action)
			continue
		}
		defs = append(defs, def)
	}

	stages := make([]func() (*prepared, error), len(inputs))
	for i, path := range inputs {
		stages[i] = sync.OnceValues(func() (*prepared, error) {
			return p.prepare(path)
		})
	}

	results := make([]unitResult, len(inputs)*len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, path := range inputs {
		for j, def := range defs {
			slot := &results[i*len(defs)+j]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				*slot = p.unit(gctx, path, stages[i], def)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return l, nil, err
	}
	if err := ctx.Err(); err != nil {
		return l, nil, err
	}

	report := &Report{Assets: make(map[string][]types.GeneratedAsset), Inputs: len(inputs)}
	if len(defs) > 0 {
		for _, stage := range stages {
			if _, err := stage(); err == nil {
				report.Processed++
			}
		}
	}
	for _, res := range results {
		switch res.outcome {
		case outcomeGenerated:
			report.Generated++
			report.Assets[res.asset.Mockup] = append(report.Assets[res.asset.Mockup], res.asset)
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	merged := l.Merge(report.Counts())
	p.logger.Info("run complete",
		"inputs", report.Inputs,
		"processed", report.Processed,
		"generated", report.Generated,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return merged, report, nil
}

// prepare decodes, classifies and segments one input. A nil prepared value
// with a nil error means segmentation left nothing to composite.
func (p *Pipeline) prepare(path string) (*prepared, error) {
	img, err := p.cfg.Loader.LoadImage(path)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Classifier.ValidateImage(img); err != nil {
		return nil, err
	}
	variant, err := p.cfg.Classifier.ClassifyBackground(img)
	if err != nil {
		return nil, err
	}
	fg, err := p.cfg.Segmenter.Segment(img)
	if errors.Is(err, vision.ErrEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prepared{name: filepath.Base(path), variant: variant, fg: fg}, nil
}

func (p *Pipeline) unit(ctx context.Context, path string, stage func() (*prepared, error), def types.MockupDefinition) unitResult {
	log := p.logger.With("input", filepath.Base(path), "mockup", def.Name)

	prep, err := stage()
	if err != nil {
		log.Warn("failed to prepare input", "error", err)
		return unitResult{outcome: outcomeFailed}
	}
	if prep == nil {
		log.Debug("nothing left after background removal")
		return unitResult{outcome: outcomeSkipped}
	}

	background, _, err := p.cfg.Templates.Load(def.Name, prep.variant)
	if errors.Is(err, templates.ErrNotFound) {
		log.Info("no template for variant", "variant", prep.variant)
		return unitResult{outcome: outcomeSkipped}
	}
	if err != nil {
		log.Warn("failed to load template", "error", err)
		return unitResult{outcome: outcomeFailed}
	}

	r, err := p.render(ctx, prep.fg, background, prep.name, def)
	if err != nil {
		log.Warn("failed to render mockup", "error", err)
		return unitResult{outcome: outcomeFailed}
	}
	log.Debug("generated", "file", r.Asset.Filename, "size", utils.FormatFileSize(int64(len(r.Asset.Data))))
	return unitResult{outcome: outcomeGenerated, asset: r.Asset}
}

// Render builds one mockup from an already decoded design. The background
// variant is chosen from the design itself.
func (p *Pipeline) Render(ctx context.Context, design image.Image, inputName string, def types.MockupDefinition) (*Rendered, error) {
	if err := p.cfg.Classifier.ValidateImage(design); err != nil {
		return nil, err
	}
	variant, err := p.cfg.Classifier.ClassifyBackground(design)
	if err != nil {
		return nil, err
	}
	fg, err := p.cfg.Segmenter.Segment(design)
	if err != nil {
		return nil, err
	}
	background, _, err := p.cfg.Templates.Load(def.Name, variant)
	if err != nil {
		return nil, err
	}
	return p.render(ctx, fg, background, inputName, def)
}

func (p *Pipeline) render(ctx context.Context, fg *image.NRGBA, background image.Image, inputName string, def types.MockupDefinition) (*Rendered, error) {
	res, err := p.cfg.Compositor.Compose(ctx, fg, background, def.Frame, def.Watermark)
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}

	filename := utils.BuildFilename(def.TitlePrefix, inputName, def.TitleSuffix, p.cfg.OutputFormat)
	enc := processing.EncodingFor(p.cfg.OutputFormat)

	data, err := p.cfg.Processor.Encode(res.Image, enc, processing.DefaultQuality)
	if err != nil {
		return nil, err
	}

	block := p.cfg.Metadata.BuildOrEmpty(def.Name, filename, p.cfg.EXIF)
	if tagged, err := exifmeta.Attach(data, enc, block); err != nil {
		p.logger.Warn("failed to attach metadata, writing image without EXIF",
			"mockup", def.Name, "file", filename, "error", err)
	} else {
		data = tagged
	}

	return &Rendered{
		Asset: types.GeneratedAsset{
			Mockup:   def.Name,
			Filename: filename,
			Data:     data,
		},
		Image:    res.Image,
		Placed:   res.Placed,
		Encoding: enc,
	}, nil
}

// Definitions returns the configured definitions
func (p *Pipeline) Definitions() []types.MockupDefinition {
	return p.cfg.Definitions
}

// Processor returns the image processor used for encoding
func (p *Pipeline) Processor() *processing.Processor {
	return p.cfg.Processor
}
