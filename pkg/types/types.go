package types

import "strings"

// Frame is the target rectangle on a background template, in template pixels
type Frame struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Action tells the pipeline whether a mockup definition produces output
type Action string

const (
	ActionGenerate Action = "generate"
	ActionSkip     Action = "skip"
)

// Variant selects which background template is used for a source image
type Variant string

const (
	// VariantWhite is used for light source images
	VariantWhite Variant = "white"
	// VariantBlack is used for dark source images
	VariantBlack Variant = "black"
)

// WatermarkKind discriminates WatermarkSpec
type WatermarkKind int

const (
	WatermarkNone WatermarkKind = iota
	WatermarkText
	WatermarkRemote
)

// WatermarkSpec is either inline text or a remote image URL.
// It is resolved once when the configuration is parsed.
type WatermarkSpec struct {
	Kind  WatermarkKind
	Value string
}

// TextWatermark returns a text watermark spec
func TextWatermark(text string) WatermarkSpec {
	return WatermarkSpec{Kind: WatermarkText, Value: text}
}

// RemoteWatermark returns a remote image watermark spec
func RemoteWatermark(url string) WatermarkSpec {
	return WatermarkSpec{Kind: WatermarkRemote, Value: url}
}

// ParseWatermark resolves the raw configuration value into a WatermarkSpec.
// Values starting with http:// or https:// are remote images, anything else
// non-empty is rendered as text.
func ParseWatermark(raw string) WatermarkSpec {
	switch {
	case raw == "":
		return WatermarkSpec{}
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return RemoteWatermark(raw)
	default:
		return TextWatermark(raw)
	}
}

// MockupDefinition is a named mockup configuration
type MockupDefinition struct {
	Name        string
	Frame       Frame
	Action      Action
	TitlePrefix string
	TitleSuffix string
	Watermark   WatermarkSpec
}

// Enabled reports whether the definition generates output
func (d MockupDefinition) Enabled() bool {
	return d.Action != ActionSkip
}

// MetadataDefaults holds camera-like fields shared by every image of a run
type MetadataDefaults struct {
	Software     *string  `json:"Software,omitempty"`
	Make         string   `json:"Make,omitempty"`
	Model        string   `json:"Model,omitempty"`
	FNumber      []int64  `json:"FNumber,omitempty"`
	ExposureTime []int64  `json:"ExposureTime,omitempty"`
	ISO          *int     `json:"ISOSpeedRatings,omitempty"`
	FocalLength  []int64  `json:"FocalLength,omitempty"`
	Latitude     *float64 `json:"GPSLatitude,omitempty"`
	Longitude    *float64 `json:"GPSLongitude,omitempty"`
	Keywords     []string `json:"Keywords,omitempty"`
}

// HasLocation reports whether both GPS coordinates are present
func (m MetadataDefaults) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// GeneratedAsset is a finished, encoded mockup image
type GeneratedAsset struct {
	Mockup   string
	Filename string
	Data     []byte
}
