// Package mockupforge turns raw product designs into composited mockup
// photos tagged with EXIF metadata.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		mockupforge "github.com/menta2k/mockup-forge"
//	)
//
//	func main() {
//		forge, err := mockupforge.Open(mockupforge.Options{
//			ConfigPath: "config.json",
//			MockupDir:  "Mockup",
//			InputDir:   "Input",
//			OutputDir:  "Output",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		summary, err := forge.Run(context.Background())
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("generated %d mockups", summary.Report.Generated)
//	}
//
// The package ties together:
//
// 1. Vision (pkg/vision): background removal by multi-seed flood fill
// 2. Compositor (pkg/compositor): fitting, placement and watermarking
// 3. Exifmeta (pkg/exifmeta): synthetic EXIF blocks for JPEG and WebP
// 4. Pipeline (pkg/pipeline): the concurrent batch over inputs and mockups
//
// Each source design is classified by the brightness of a single probe
// pixel and matched to the "white" or "black" template of every enabled
// mockup set.
package mockupforge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/menta2k/mockup-forge/internal/config"
	"github.com/menta2k/mockup-forge/internal/utils"
	"github.com/menta2k/mockup-forge/pkg/analyzer"
	"github.com/menta2k/mockup-forge/pkg/compositor"
	"github.com/menta2k/mockup-forge/pkg/exifmeta"
	"github.com/menta2k/mockup-forge/pkg/ledger"
	"github.com/menta2k/mockup-forge/pkg/pipeline"
	"github.com/menta2k/mockup-forge/pkg/processing"
	"github.com/menta2k/mockup-forge/pkg/templates"
	"github.com/menta2k/mockup-forge/pkg/types"
)

// Version of the mockup forge
const Version = "1.0.0"

// ErrUnknownMockup is returned for a mockup name missing from the configuration
var ErrUnknownMockup = errors.New("unknown mockup")

// Options locates the inputs and outputs of a Forge
type Options struct {
	ConfigPath string
	MockupDir  string
	InputDir   string
	OutputDir  string
	// LedgerPath defaults to TotalImage.txt inside the working directory
	LedgerPath string

	Workers      int
	FetchTimeout time.Duration
	// KeepInputs disables deleting processed inputs after a run
	KeepInputs bool

	Logger *slog.Logger
	// Now overrides the clock used for run timestamps and metadata
	Now func() time.Time
}

// Forge provides a high-level interface for generating mockups
type Forge struct {
	opts      Options
	config    *config.Config
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	pipeline  *pipeline.Pipeline
	store     *pipeline.Store
	logger    *slog.Logger
}

// Open loads and validates the configuration file and builds a Forge
func Open(opts Options) (*Forge, error) {
	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts)
}

// New builds a Forge from an already loaded configuration
func New(cfg *config.Config, opts Options) (*Forge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LedgerPath == "" {
		opts.LedgerPath = ledger.DefaultFile
	}

	procOpts := []processing.Option{}
	if opts.FetchTimeout > 0 {
		procOpts = append(procOpts, processing.WithTimeout(opts.FetchTimeout))
	}
	processor := processing.NewProcessor(procOpts...)
	imgAnalyzer := analyzer.New()

	p, err := pipeline.New(pipeline.Config{
		Definitions:  cfg.Definitions(),
		OutputFormat: cfg.Defaults.OutputFormat,
		EXIF:         cfg.Defaults.EXIF,
		Workers:      opts.Workers,
		Templates:    templates.NewStore(opts.MockupDir, processor),
		Loader:       imgAnalyzer,
		Classifier:   imgAnalyzer,
		Processor:    processor,
		Compositor: compositor.New(
			compositor.WithWatermarkSource(processing.NewWatermarkCache(processor)),
			compositor.WithLogger(opts.Logger),
		),
		Metadata: exifmeta.NewEncoder(
			exifmeta.WithClock(opts.Now),
			exifmeta.WithLogger(opts.Logger),
		),
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Forge{
		opts:      opts,
		config:    cfg,
		analyzer:  imgAnalyzer,
		processor: processor,
		pipeline:  p,
		store:     pipeline.NewStore(opts.OutputDir),
		logger:    opts.Logger,
	}, nil
}

// RunSummary describes a finished batch run
type RunSummary struct {
	Report *pipeline.Report
	// Dirs are the output directories written, one per mockup
	Dirs   []string
	Ledger ledger.Ledger
	// Removed is the number of input files deleted after the run
	Removed int
}

// Run processes every file in the input directory, stores the results,
// persists the ledger and removes the processed inputs. A ledger that
// cannot be read aborts the run before any processing starts.
func (f *Forge) Run(ctx context.Context) (*RunSummary, error) {
	start, err := ledger.Load(f.opts.LedgerPath)
	if err != nil {
		return nil, err
	}

	inputs, err := utils.ListInputFiles(f.opts.InputDir)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		f.logger.Info("no input images found", "dir", f.opts.InputDir)
		return &RunSummary{Report: &pipeline.Report{}, Ledger: start}, nil
	}
	f.logger.Info("starting run", "inputs", len(inputs), "mockups", len(f.config.MockupSets))

	runTime := f.opts.Now()
	updated, report, err := f.pipeline.Run(ctx, inputs, start)
	if err != nil {
		return nil, err
	}

	dirs, err := f.store.Write(report, runTime)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		f.logger.Info("saved mockups", "dir", dir)
	}

	if err := updated.Save(f.opts.LedgerPath); err != nil {
		return nil, err
	}

	summary := &RunSummary{Report: report, Dirs: dirs, Ledger: updated}
	if !f.opts.KeepInputs {
		removed, err := utils.RemoveFiles(inputs)
		if err != nil {
			f.logger.Warn("failed to remove some inputs", "error", err)
		}
		summary.Removed = removed
	}

	f.logger.Info("done",
		"processed", report.Processed,
		"generated", report.Generated,
		"total", updated.Total(),
		"output", f.opts.OutputDir)
	return summary, nil
}

// Mockups returns the configured mockup definitions sorted by name
func (f *Forge) Mockups() []types.MockupDefinition {
	return f.config.Definitions()
}

// OutputFormat returns the configured output format
func (f *Forge) OutputFormat() string {
	return f.config.Defaults.OutputFormat
}

// LoadImage loads a design from file
func (f *Forge) LoadImage(path string) (image.Image, error) {
	return f.analyzer.LoadImage(path)
}

// LoadImageFromReader loads a design from an io.Reader
func (f *Forge) LoadImageFromReader(r io.Reader) (image.Image, error) {
	return f.analyzer.LoadImageFromReader(r)
}

// Render composes a single mockup from a design without touching the
// ledger or the output directory.
func (f *Forge) Render(ctx context.Context, design image.Image, inputName, mockup string) (*pipeline.Rendered, error) {
	def, ok := f.config.Definition(mockup)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMockup, mockup)
	}
	return f.pipeline.Render(ctx, design, inputName, def)
}

// RenderFile is Render for a design on disk
func (f *Forge) RenderFile(ctx context.Context, path, mockup string) (*pipeline.Rendered, error) {
	design, err := f.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return f.Render(ctx, design, filepath.Base(path), mockup)
}

// DebugOverlay encodes a PNG of the rendered mockup with the frame and the
// placed design outlined.
func (f *Forge) DebugOverlay(r *pipeline.Rendered) ([]byte, error) {
	def, ok := f.config.Definition(r.Asset.Mockup)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMockup, r.Asset.Mockup)
	}
	fr := def.Frame
	frame := image.Rect(fr.X, fr.Y, fr.X+fr.W, fr.Y+fr.H)
	return f.processor.EncodePNG(f.processor.CreateDebugOverlay(r.Image, frame, r.Placed))
}
