package mockupforge

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mockup-forge/internal/config"
	"github.com/menta2k/mockup-forge/pkg/ledger"
	"github.com/menta2k/mockup-forge/pkg/vision"
)

// createTestImage creates a white canvas with a dark square in the middle
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.SetNRGBA(x, y, color.NRGBA{20, 40, 160, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func template(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 200, 200, 255
	}
	return img
}

const testConfig = `{
  "defaults": {"global_output_format": "jpg"},
  "mockup_sets": {
    "Tee": {"coords": {"x": 40, "y": 40, "w": 220, "h": 220}, "title_prefix_to_add": "Tee", "watermark_text": "Shop"},
    "Mug": {"coords": {"x": 0, "y": 0, "w": 100, "h": 100}, "action": "skip"}
  }
}`

type workspace struct {
	root, mockups, inputs, outputs, ledger string
	opts                                   Options
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		root:    root,
		mockups: filepath.Join(root, "Mockup"),
		inputs:  filepath.Join(root, "Input"),
		outputs: filepath.Join(root, "Output"),
		ledger:  filepath.Join(root, ledger.DefaultFile),
	}
	for _, dir := range []string{ws.mockups, ws.inputs} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	writePNG(t, filepath.Join(ws.mockups, "Tee_white.png"), template(300, 300))

	cfgPath := filepath.Join(root, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))

	ws.opts = Options{
		ConfigPath: cfgPath,
		MockupDir:  ws.mockups,
		InputDir:   ws.inputs,
		OutputDir:  ws.outputs,
		LedgerPath: ws.ledger,
		Workers:    2,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC) },
	}
	return ws
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.opts.ConfigPath, []byte(`{"mockup_sets": {}}`), 0o644))

	_, err := Open(ws.opts)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRun(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.ledger, []byte("Tee: 5\n"), 0o644))
	writePNG(t, filepath.Join(ws.inputs, "cool-cat.png"), createTestImage(90, 90))
	writePNG(t, filepath.Join(ws.inputs, "dog_face.png"), createTestImage(60, 60))
	require.NoError(t, os.WriteFile(filepath.Join(ws.inputs, ".hidden"), []byte("x"), 0o644))

	forge, err := Open(ws.opts)
	require.NoError(t, err)

	summary, err := forge.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Report.Generated)
	assert.Equal(t, 2, summary.Removed)
	assert.Equal(t, 7, summary.Ledger["Tee"])

	dir := filepath.Join(ws.outputs, "Tee.20240601_093000.2")
	assert.Equal(t, []string{dir}, summary.Dirs)
	for _, name := range []string{"Tee cool cat.jpg", "Tee dog face.jpg"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(ws.ledger)
	require.NoError(t, err)
	assert.Equal(t, "Tee: 7\n", string(data))

	left, err := os.ReadDir(ws.inputs)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, ".hidden", left[0].Name())
}

func TestRunKeepInputs(t *testing.T) {
	ws := newWorkspace(t)
	writePNG(t, filepath.Join(ws.inputs, "a.png"), createTestImage(60, 60))
	ws.opts.KeepInputs = true

	forge, err := Open(ws.opts)
	require.NoError(t, err)

	summary, err := forge.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Removed)
	_, err = os.Stat(filepath.Join(ws.inputs, "a.png"))
	assert.NoError(t, err)
}

func TestRunMalformedLedgerAborts(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.ledger, []byte("garbage\n"), 0o644))
	writePNG(t, filepath.Join(ws.inputs, "a.png"), createTestImage(60, 60))

	forge, err := Open(ws.opts)
	require.NoError(t, err)

	_, err = forge.Run(context.Background())
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(ws.inputs, "a.png"))
	assert.NoError(t, err, "inputs must survive an aborted run")
	_, err = os.Stat(ws.outputs)
	assert.True(t, os.IsNotExist(err))
}

func TestRunEmptyInput(t *testing.T) {
	ws := newWorkspace(t)
	forge, err := Open(ws.opts)
	require.NoError(t, err)

	summary, err := forge.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Report.Generated)
	_, err = os.Stat(ws.ledger)
	assert.True(t, os.IsNotExist(err))
}

func TestMockups(t *testing.T) {
	ws := newWorkspace(t)
	forge, err := Open(ws.opts)
	require.NoError(t, err)

	defs := forge.Mockups()
	require.Len(t, defs, 2)
	assert.Equal(t, "Mug", defs[0].Name)
	assert.Equal(t, "Tee", defs[1].Name)
	assert.Equal(t, "jpg", forge.OutputFormat())
}

func TestRenderAndDebugOverlay(t *testing.T) {
	ws := newWorkspace(t)
	forge, err := Open(ws.opts)
	require.NoError(t, err)

	path := filepath.Join(ws.root, "preview.png")
	writePNG(t, path, createTestImage(90, 90))

	r, err := forge.RenderFile(context.Background(), path, "Tee")
	require.NoError(t, err)
	assert.Equal(t, "Tee preview.jpg", r.Asset.Filename)
	assert.Equal(t, 300, r.Image.Bounds().Dx())

	overlay, err := forge.DebugOverlay(r)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(overlay))
	require.NoError(t, err)
	assert.Equal(t, r.Image.Bounds(), img.Bounds())

	_, err = forge.Render(context.Background(), createTestImage(60, 60), "x.png", "Cap")
	assert.ErrorIs(t, err, ErrUnknownMockup)

	blank := template(50, 50)
	_, err = forge.Render(context.Background(), blank, "blank.png", "Tee")
	assert.ErrorIs(t, err, vision.ErrEmpty)
}

func TestLoadImageFromReader(t *testing.T) {
	ws := newWorkspace(t)
	forge, err := Open(ws.opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(30, 20)))
	img, err := forge.LoadImageFromReader(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
}
