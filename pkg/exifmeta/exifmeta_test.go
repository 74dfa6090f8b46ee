package exifmeta

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mockup-forge/pkg/processing"
	"github.com/menta2k/mockup-forge/pkg/types"
)

var fixedNow = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestEncoder(seed uint64) *Encoder {
	return NewEncoder(
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewPCG(seed, seed))),
	)
}

// field is a decoded IFD entry
type field struct {
	typ   uint16
	count uint32
	raw   []byte
}

// parseIFD reads the IFD at offset and returns its fields keyed by tag
func parseIFD(t *testing.T, tiff []byte, offset uint32) map[uint16]field {
	t.Helper()
	be := binary.BigEndian
	require.LessOrEqual(t, int(offset)+2, len(tiff))
	n := int(be.Uint16(tiff[offset:]))
	fields := make(map[uint16]field, n)
	var prev uint16
	for i := 0; i < n; i++ {
		p := int(offset) + 2 + 12*i
		tag := be.Uint16(tiff[p:])
		require.Greater(t, tag, prev, "tags must be ascending")
		prev = tag
		typ := be.Uint16(tiff[p+2:])
		count := be.Uint32(tiff[p+4:])
		size := int(count)
		switch typ {
		case typeShort:
			size *= 2
		case typeLong:
			size *= 4
		case typeRational:
			size *= 8
		}
		var raw []byte
		if size <= 4 {
			raw = tiff[p+8 : p+8+size]
		} else {
			at := int(be.Uint32(tiff[p+8:]))
			require.LessOrEqual(t, at+size, len(tiff))
			raw = tiff[at : at+size]
		}
		fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return fields
}

func parseTIFF(t *testing.T, tiff []byte) (ifd0, exif, gps map[uint16]field) {
	t.Helper()
	require.GreaterOrEqual(t, len(tiff), 8)
	require.Equal(t, []byte("MM\x00\x2a"), tiff[:4])
	ifd0 = parseIFD(t, tiff, binary.BigEndian.Uint32(tiff[4:]))

	ptr, ok := ifd0[tagExifIFD]
	require.True(t, ok, "missing Exif pointer")
	exif = parseIFD(t, tiff, binary.BigEndian.Uint32(ptr.raw))

	if ptr, ok := ifd0[tagGPSIFD]; ok {
		gps = parseIFD(t, tiff, binary.BigEndian.Uint32(ptr.raw))
	}
	return ifd0, exif, gps
}

func asciiValue(t *testing.T, f field) string {
	t.Helper()
	require.Equal(t, typeASCII, f.typ)
	require.NotEmpty(t, f.raw)
	require.Equal(t, byte(0), f.raw[len(f.raw)-1])
	return string(f.raw[:len(f.raw)-1])
}

func rationals(t *testing.T, f field) []Rational {
	t.Helper()
	require.Equal(t, typeRational, f.typ)
	out := make([]Rational, f.count)
	for i := range out {
		out[i] = Rational{
			Num: binary.BigEndian.Uint32(f.raw[8*i:]),
			Den: binary.BigEndian.Uint32(f.raw[8*i+4:]),
		}
	}
	return out
}

func TestBuildPrimaryFields(t *testing.T) {
	enc := newTestEncoder(1)
	block, err := enc.Build("Tee", "Tee my design v2.webp", types.MetadataDefaults{})
	require.NoError(t, err)
	require.False(t, block.Empty())

	ifd0, exif, gps := parseTIFF(t, block.TIFF())
	assert.Nil(t, gps)

	assert.Equal(t, "Tee.com", asciiValue(t, ifd0[tagArtist]))
	assert.Equal(t, "Tee.com", asciiValue(t, ifd0[tagCopyright]))
	assert.Equal(t, "Tee my design v2.webp", asciiValue(t, ifd0[tagImageDescription]))
	assert.Equal(t, DefaultSoftware, asciiValue(t, ifd0[tagSoftware]))
	assert.Equal(t, "", asciiValue(t, ifd0[tagMake]))
	assert.Equal(t, "", asciiValue(t, ifd0[tagModel]))
	assert.Equal(t, "2024:03:10 12:30:00", asciiValue(t, ifd0[tagDateTime]))

	assert.Equal(t, "2024:03:10 12:30:00", asciiValue(t, exif[tagDateTimeDigitized]))
	assert.Equal(t, []Rational{{0, 1}}, rationals(t, exif[tagFNumber]))
	assert.Equal(t, []Rational{{0, 1}}, rationals(t, exif[tagExposureTime]))
	assert.Equal(t, []Rational{{0, 1}}, rationals(t, exif[tagFocalLength]))
	assert.Equal(t, typeShort, exif[tagISOSpeedRatings].typ)
	assert.Equal(t, []byte{0, 0}, exif[tagISOSpeedRatings].raw)
}

func TestXPFieldsAreUTF16LE(t *testing.T) {
	enc := newTestEncoder(1)
	block, err := enc.Build("Tee", "a.jpg", types.MetadataDefaults{})
	require.NoError(t, err)

	ifd0, _, _ := parseTIFF(t, block.TIFF())

	utf16 := func(s string) []byte {
		var b []byte
		for _, r := range s {
			b = append(b, byte(r), 0)
		}
		return b
	}
	assert.Equal(t, typeByte, ifd0[tagXPKeywords].typ)
	assert.Equal(t, utf16("Tee;shirt;"), ifd0[tagXPKeywords].raw)
	assert.Equal(t, utf16("Tee.com"), ifd0[tagXPAuthor].raw)
	assert.Equal(t, utf16("a.jpg"), ifd0[tagXPComment].raw)
	assert.Equal(t, utf16("a.jpg"), ifd0[tagXPSubject].raw)
}

func TestCaptureLagWithinBounds(t *testing.T) {
	enc := newTestEncoder(7)
	modified := fixedNow.Add(-ModifiedAge)
	for i := 0; i < 200; i++ {
		m, err := enc.Metadata("Tee", "a.jpg", types.MetadataDefaults{})
		require.NoError(t, err)
		assert.Equal(t, modified, m.Modified)
		lag := m.Modified.Sub(m.Original)
		assert.GreaterOrEqual(t, lag, MinCaptureLag*time.Second)
		assert.LessOrEqual(t, lag, MaxCaptureLag*time.Second)
	}
}

func TestCaptureLagReproducible(t *testing.T) {
	a, err := newTestEncoder(42).Metadata("Tee", "a.jpg", types.MetadataDefaults{})
	require.NoError(t, err)
	b, err := newTestEncoder(42).Metadata("Tee", "a.jpg", types.MetadataDefaults{})
	require.NoError(t, err)
	assert.Equal(t, a.Original, b.Original)
}

func TestConfiguredDefaults(t *testing.T) {
	software := "GIMP"
	iso := 400
	d := types.MetadataDefaults{
		Software:     &software,
		Make:         "Canon",
		Model:        "EOS R5",
		FNumber:      []int64{28, 10},
		ExposureTime: []int64{1, 250},
		ISO:          &iso,
		FocalLength:  []int64{50, 1},
		Keywords:     []string{"tee", "gift"},
	}

	block, err := newTestEncoder(1).Build("Tee", "a.jpg", d)
	require.NoError(t, err)
	ifd0, exif, _ := parseTIFF(t, block.TIFF())

	assert.Equal(t, "GIMP", asciiValue(t, ifd0[tagSoftware]))
	assert.Equal(t, "Canon", asciiValue(t, ifd0[tagMake]))
	assert.Equal(t, "EOS R5", asciiValue(t, ifd0[tagModel]))
	assert.Equal(t, []Rational{{28, 10}}, rationals(t, exif[tagFNumber]))
	assert.Equal(t, []Rational{{1, 250}}, rationals(t, exif[tagExposureTime]))
	assert.Equal(t, []Rational{{50, 1}}, rationals(t, exif[tagFocalLength]))
	assert.Equal(t, uint16(400), binary.BigEndian.Uint16(exif[tagISOSpeedRatings].raw))

	m, err := newTestEncoder(1).Metadata("Tee", "a.jpg", d)
	require.NoError(t, err)
	assert.Equal(t, "Tee;tee;gift;", m.XPKeywords)
}

func TestEmptySoftwareIsKept(t *testing.T) {
	empty := ""
	m, err := newTestEncoder(1).Metadata("Tee", "a.jpg", types.MetadataDefaults{Software: &empty})
	require.NoError(t, err)
	assert.Equal(t, "", m.Software)
}

func TestGPS(t *testing.T) {
	lat, lon := 40.446195, -79.948862
	block, err := newTestEncoder(1).Build("Tee", "a.jpg", types.MetadataDefaults{
		Latitude:  &lat,
		Longitude: &lon,
	})
	require.NoError(t, err)

	_, _, gps := parseTIFF(t, block.TIFF())
	require.NotNil(t, gps)
	assert.Equal(t, "N", asciiValue(t, gps[tagGPSLatitudeRef]))
	assert.Equal(t, "W", asciiValue(t, gps[tagGPSLongitudeRef]))

	latR := rationals(t, gps[tagGPSLatitude])
	require.Len(t, latR, 3)
	assert.Equal(t, Rational{40, 1}, latR[0])
	assert.Equal(t, Rational{26, 1}, latR[1])
	assert.Equal(t, uint32(100), latR[2].Den)
	assert.InDelta(t, 4630, int(latR[2].Num), 2)

	lonR := rationals(t, gps[tagGPSLongitude])
	require.Len(t, lonR, 3)
	assert.Equal(t, Rational{79, 1}, lonR[0])
	assert.Equal(t, Rational{56, 1}, lonR[1])
}

func TestGPSRequiresBothCoordinates(t *testing.T) {
	lat := 10.0
	block, err := newTestEncoder(1).Build("Tee", "a.jpg", types.MetadataDefaults{Latitude: &lat})
	require.NoError(t, err)

	ifd0, _, gps := parseTIFF(t, block.TIFF())
	assert.Nil(t, gps)
	_, ok := ifd0[tagGPSIFD]
	assert.False(t, ok)
}

func TestInvalidDefaults(t *testing.T) {
	badLat := 91.0
	lon := 0.0
	negISO := -1
	bigISO := 70000

	tests := []struct {
		name string
		d    types.MetadataDefaults
	}{
		{"short rational", types.MetadataDefaults{FNumber: []int64{28}}},
		{"long rational", types.MetadataDefaults{FocalLength: []int64{1, 2, 3}}},
		{"zero denominator", types.MetadataDefaults{ExposureTime: []int64{1, 0}}},
		{"negative numerator", types.MetadataDefaults{FNumber: []int64{-1, 10}}},
		{"negative iso", types.MetadataDefaults{ISO: &negISO}},
		{"large iso", types.MetadataDefaults{ISO: &bigISO}},
		{"latitude range", types.MetadataDefaults{Latitude: &badLat, Longitude: &lon}},
		{"nul in make", types.MetadataDefaults{Make: "Can\x00on"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := newTestEncoder(1)
			_, err := enc.Build("Tee", "a.jpg", tt.d)
			assert.Error(t, err)
			assert.True(t, enc.BuildOrEmpty("Tee", "a.jpg", tt.d).Empty())
		})
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 8), uint8(y * 10), 128, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, testImage(), imaging.JPEG, imaging.JPEGQuality(90)))
	return buf.Bytes()
}

func TestAttachJPEG(t *testing.T) {
	data := encodeJPEG(t)
	block, err := newTestEncoder(1).Build("Tee", "a.jpg", types.MetadataDefaults{})
	require.NoError(t, err)

	out, err := AttachJPEG(data, block)
	require.NoError(t, err)

	tiff, ok := ExtractJPEG(out)
	require.True(t, ok)
	assert.Equal(t, block.TIFF(), tiff)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestAttachEmptyBlockLeavesBytes(t *testing.T) {
	data := encodeJPEG(t)
	out, err := Attach(data, processing.EncodingJPEG, Block{})
	require.NoError(t, err)
	assert.Equal(t, data, out)

	out, err = Attach([]byte("not a webp"), processing.EncodingWebP, Block{})
	require.NoError(t, err)
	assert.Equal(t, []byte("not a webp"), out)
}

func TestAttachJPEGRejectsGarbage(t *testing.T) {
	block, err := newTestEncoder(1).Build("Tee", "a.jpg", types.MetadataDefaults{})
	require.NoError(t, err)
	_, err = AttachJPEG([]byte("garbage"), block)
	assert.ErrorIs(t, err, ErrNotJPEG)
}

func TestAttachWebP(t *testing.T) {
	p := processing.NewProcessor()
	data, err := p.Encode(testImage(), processing.EncodingWebP, 90)
	require.NoError(t, err)

	block, err := newTestEncoder(1).Build("Tee", "a.webp", types.MetadataDefaults{})
	require.NoError(t, err)

	out, err := Attach(data, processing.EncodingWebP, block)
	require.NoError(t, err)

	tiff, ok := ExtractWebP(out)
	require.True(t, ok)
	assert.Equal(t, block.TIFF(), tiff)

	img, err := p.DecodeBytes(out)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}
