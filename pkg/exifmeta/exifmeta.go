// Package exifmeta builds the synthetic EXIF block attached to every
// generated mockup and embeds it into JPEG and WebP containers.
//
// The block carries three groups: the primary IFD (authorship, description,
// software and camera make/model, last-modified time), the Exif sub-IFD
// (capture time and exposure fields) and, when coordinates are configured,
// the GPS sub-IFD.
package exifmeta

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/menta2k/mockup-forge/pkg/geometry"
	"github.com/menta2k/mockup-forge/pkg/types"
)

const (
	// DefaultSoftware is used when the defaults do not name a software
	DefaultSoftware = "Adobe Photoshop 25.0"
	// DefaultKeyword is appended to the mockup name in XPKeywords
	DefaultKeyword = "shirt"
	// DateTimeLayout is the EXIF timestamp format
	DateTimeLayout = "2006:01:02 15:04:05"

	// ModifiedAge is how far the last-modified time lies in the past
	ModifiedAge = 2 * time.Hour
	// MinCaptureLag and MaxCaptureLag bound the random gap, in seconds,
	// between capture and last modification. Both ends are inclusive.
	MinCaptureLag = 3600
	MaxCaptureLag = 7500
)

// Tag IDs
const (
	tagImageDescription  uint16 = 0x010E
	tagMake              uint16 = 0x010F
	tagModel             uint16 = 0x0110
	tagSoftware          uint16 = 0x0131
	tagDateTime          uint16 = 0x0132
	tagArtist            uint16 = 0x013B
	tagCopyright         uint16 = 0x8298
	tagExifIFD           uint16 = 0x8769
	tagGPSIFD            uint16 = 0x8825
	tagXPComment         uint16 = 0x9C9C
	tagXPAuthor          uint16 = 0x9C9D
	tagXPKeywords        uint16 = 0x9C9E
	tagXPSubject         uint16 = 0x9C9F
	tagExposureTime      uint16 = 0x829A
	tagFNumber           uint16 = 0x829D
	tagISOSpeedRatings   uint16 = 0x8827
	tagDateTimeOriginal  uint16 = 0x9003
	tagDateTimeDigitized uint16 = 0x9004
	tagFocalLength       uint16 = 0x920A
	tagGPSLatitudeRef    uint16 = 0x0001
	tagGPSLatitude       uint16 = 0x0002
	tagGPSLongitudeRef   uint16 = 0x0003
	tagGPSLongitude      uint16 = 0x0004
)

// Rational is an unsigned EXIF rational
type Rational struct {
	Num uint32
	Den uint32
}

// ZeroRational is the fallback for missing exposure fields
var ZeroRational = Rational{0, 1}

// GPS holds both coordinates in EXIF form
type GPS struct {
	Latitude  geometry.Sexagesimal
	Longitude geometry.Sexagesimal
}

// Metadata is the typed content of a metadata block
type Metadata struct {
	Artist      string
	Copyright   string
	Description string
	Software    string
	Make        string
	Model       string
	Modified    time.Time
	Original    time.Time

	XPAuthor   string
	XPComment  string
	XPSubject  string
	XPKeywords string

	FNumber      Rational
	ExposureTime Rational
	FocalLength  Rational
	ISO          uint16

	GPS *GPS
}

// Block is an encoded TIFF/EXIF structure. The zero value is the empty
// block, which leaves encoded images untouched.
type Block struct {
	tiff []byte
}

// Empty reports whether the block carries no metadata
func (b Block) Empty() bool {
	return len(b.tiff) == 0
}

// TIFF returns the raw TIFF stream
func (b Block) TIFF() []byte {
	return b.tiff
}

// Encoder builds metadata blocks
type Encoder struct {
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Encoder
type Option func(*Encoder)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Encoder) {
		e.now = now
	}
}

// WithRand makes the capture lag reproducible
func WithRand(rng *rand.Rand) Option {
	return func(e *Encoder) {
		e.rng = rng
	}
}

// WithLogger sets the logger used to report degraded blocks
func WithLogger(logger *slog.Logger) Option {
	return func(e *Encoder) {
		e.logger = logger
	}
}

// NewEncoder creates an Encoder using the wall clock and the global source
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// captureLag draws uniformly from [MinCaptureLag, MaxCaptureLag]
func (e *Encoder) captureLag() time.Duration {
	n := MaxCaptureLag - MinCaptureLag + 1
	var v int
	if e.rng == nil {
		v = rand.IntN(n)
	} else {
		e.mu.Lock()
		v = e.rng.IntN(n)
		e.mu.Unlock()
	}
	return time.Duration(MinCaptureLag+v) * time.Second
}

// Metadata assembles the typed metadata for one generated image
func (e *Encoder) Metadata(mockupName, filename string, d types.MetadataDefaults) (Metadata, error) {
	domain := mockupName + ".com"
	modified := e.now().Add(-ModifiedAge)

	software := DefaultSoftware
	if d.Software != nil {
		software = *d.Software
	}

	keywords := d.Keywords
	if len(keywords) == 0 {
		keywords = []string{DefaultKeyword}
	}

	m := Metadata{
		Artist:      domain,
		Copyright:   domain,
		Description: filename,
		Software:    software,
		Make:        d.Make,
		Model:       d.Model,
		Modified:    modified,
		Original:    modified.Add(-e.captureLag()),
		XPAuthor:    domain,
		XPComment:   filename,
		XPSubject:   filename,
		XPKeywords:  mockupName + ";" + strings.Join(keywords, ";") + ";",
	}

	var err error
	if m.FNumber, err = toRational("FNumber", d.FNumber); err != nil {
		return Metadata{}, err
	}
	if m.ExposureTime, err = toRational("ExposureTime", d.ExposureTime); err != nil {
		return Metadata{}, err
	}
	if m.FocalLength, err = toRational("FocalLength", d.FocalLength); err != nil {
		return Metadata{}, err
	}

	if d.ISO != nil {
		if *d.ISO < 0 || *d.ISO > math.MaxUint16 {
			return Metadata{}, fmt.Errorf("ISOSpeedRatings %d out of range", *d.ISO)
		}
		m.ISO = uint16(*d.ISO)
	}

	if d.HasLocation() {
		lat, lon := *d.Latitude, *d.Longitude
		if math.IsNaN(lat) || lat < -90 || lat > 90 {
			return Metadata{}, fmt.Errorf("GPSLatitude %v out of range", lat)
		}
		if math.IsNaN(lon) || lon < -180 || lon > 180 {
			return Metadata{}, fmt.Errorf("GPSLongitude %v out of range", lon)
		}
		m.GPS = &GPS{
			Latitude:  geometry.DecimalToSexagesimal(lat, false),
			Longitude: geometry.DecimalToSexagesimal(lon, true),
		}
	}

	return m, nil
}

// Build assembles and encodes the metadata block for one generated image
func (e *Encoder) Build(mockupName, filename string, d types.MetadataDefaults) (Block, error) {
	m, err := e.Metadata(mockupName, filename, d)
	if err != nil {
		return Block{}, err
	}
	return m.Encode()
}

// BuildOrEmpty is Build with failures degraded to an empty block
func (e *Encoder) BuildOrEmpty(mockupName, filename string, d types.MetadataDefaults) Block {
	block, err := e.Build(mockupName, filename, d)
	if err != nil {
		e.logger.Warn("metadata construction failed, writing image without EXIF",
			"mockup", mockupName, "file", filename, "error", err)
		return Block{}
	}
	return block
}

func toRational(name string, v []int64) (Rational, error) {
	if len(v) == 0 {
		return ZeroRational, nil
	}
	if len(v) != 2 {
		return Rational{}, fmt.Errorf("%s must be [numerator, denominator], got %d values", name, len(v))
	}
	if v[0] < 0 || v[0] > math.MaxUint32 || v[1] <= 0 || v[1] > math.MaxUint32 {
		return Rational{}, fmt.Errorf("%s %v is not a valid unsigned rational", name, v)
	}
	return Rational{uint32(v[0]), uint32(v[1])}, nil
}

func utf16le(s string) ([]byte, error) {
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
}

// Encode serialises the metadata as a big-endian TIFF stream
func (m Metadata) Encode() (Block, error) {
	ifd0, err := m.primaryEntries()
	if err != nil {
		return Block{}, err
	}
	exif, err := m.exifEntries()
	if err != nil {
		return Block{}, err
	}
	gps, err := m.gpsEntries()
	if err != nil {
		return Block{}, err
	}

	// Pointer values are inline, so the IFD0 size is known before the
	// sub-IFD offsets are.
	ifd0 = append(ifd0, longEntry(tagExifIFD, 0))
	if gps != nil {
		ifd0 = append(ifd0, longEntry(tagGPSIFD, 0))
	}

	const headerSize = 8
	exifOffset := headerSize + ifdSize(ifd0)
	gpsOffset := exifOffset + ifdSize(exif)
	for i := range ifd0 {
		switch ifd0[i].tag {
		case tagExifIFD:
			ifd0[i] = longEntry(tagExifIFD, uint32(exifOffset))
		case tagGPSIFD:
			ifd0[i] = longEntry(tagGPSIFD, uint32(gpsOffset))
		}
	}

	out := make([]byte, 0, gpsOffset+ifdSize(gps))
	out = append(out, 'M', 'M')
	out = byteOrder.AppendUint16(out, 42)
	out = byteOrder.AppendUint32(out, headerSize)
	out = append(out, encodeIFD(ifd0, headerSize)...)
	out = append(out, encodeIFD(exif, exifOffset)...)
	if gps != nil {
		out = append(out, encodeIFD(gps, gpsOffset)...)
	}
	return Block{tiff: out}, nil
}

func (m Metadata) primaryEntries() ([]entry, error) {
	ascii := []struct {
		tag   uint16
		value string
	}{
		{tagImageDescription, m.Description},
		{tagMake, m.Make},
		{tagModel, m.Model},
		{tagSoftware, m.Software},
		{tagDateTime, m.Modified.Format(DateTimeLayout)},
		{tagArtist, m.Artist},
		{tagCopyright, m.Copyright},
	}
	xp := []struct {
		tag   uint16
		value string
	}{
		{tagXPComment, m.XPComment},
		{tagXPAuthor, m.XPAuthor},
		{tagXPKeywords, m.XPKeywords},
		{tagXPSubject, m.XPSubject},
	}

	entries := make([]entry, 0, len(ascii)+len(xp)+2)
	for _, f := range ascii {
		e, err := asciiEntry(f.tag, f.value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	for _, f := range xp {
		b, err := utf16le(f.value)
		if err != nil {
			return nil, fmt.Errorf("tag 0x%04x: %w", f.tag, err)
		}
		entries = append(entries, bytesEntry(f.tag, b))
	}
	return entries, nil
}

func (m Metadata) exifEntries() ([]entry, error) {
	original, err := asciiEntry(tagDateTimeOriginal, m.Original.Format(DateTimeLayout))
	if err != nil {
		return nil, err
	}
	digitized, err := asciiEntry(tagDateTimeDigitized, m.Modified.Format(DateTimeLayout))
	if err != nil {
		return nil, err
	}
	return []entry{
		original,
		digitized,
		rationalEntry(tagFNumber, m.FNumber),
		rationalEntry(tagExposureTime, m.ExposureTime),
		shortEntry(tagISOSpeedRatings, m.ISO),
		rationalEntry(tagFocalLength, m.FocalLength),
	}, nil
}

func (m Metadata) gpsEntries() ([]entry, error) {
	if m.GPS == nil {
		return nil, nil
	}
	latRef, err := asciiEntry(tagGPSLatitudeRef, string(m.GPS.Latitude.Ref))
	if err != nil {
		return nil, err
	}
	lonRef, err := asciiEntry(tagGPSLongitudeRef, string(m.GPS.Longitude.Ref))
	if err != nil {
		return nil, err
	}
	return []entry{
		latRef,
		rationalEntry(tagGPSLatitude, sexagesimalRationals(m.GPS.Latitude)...),
		lonRef,
		rationalEntry(tagGPSLongitude, sexagesimalRationals(m.GPS.Longitude)...),
	}, nil
}

func sexagesimalRationals(s geometry.Sexagesimal) []Rational {
	return []Rational{
		{uint32(s.Degrees), 1},
		{uint32(s.Minutes), 1},
		{uint32(s.SecondsHundredths), 100},
	}
}
