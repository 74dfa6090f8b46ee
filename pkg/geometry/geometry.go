// Package geometry holds the scalar helpers used to lay out designs on
// mockup templates and to express GPS coordinates in EXIF form.
package geometry

import "math"

// ScaleToFit returns the uniform scale that fits an objW x objH object into
// an availW x availH box. Width is always tried first; height only binds when
// the width-derived scale would overflow the available height.
func ScaleToFit(objW, objH, availW, availH float64) float64 {
	scale := availW / objW
	if objH*scale > availH {
		scale = availH / objH
	}
	return scale
}

// FitSize applies scale to the object size, truncating like an int cast.
// Each side is at least one pixel.
func FitSize(objW, objH int, scale float64) (int, int) {
	w := int(float64(objW) * scale)
	h := int(float64(objH) * scale)
	return max(w, 1), max(h, 1)
}

// CenterOffset returns the offset that centers inner within outer, rounding
// towards negative infinity when inner is larger.
func CenterOffset(outer, inner int) int {
	return int(math.Floor(float64(outer-inner) / 2))
}

// Sexagesimal is a coordinate in degrees, minutes and hundredths of seconds
type Sexagesimal struct {
	Degrees           int
	Minutes           int
	SecondsHundredths int
	Ref               byte
}

// Seconds returns the seconds component as a float
func (s Sexagesimal) Seconds() float64 {
	return float64(s.SecondsHundredths) / 100
}

// DecimalToSexagesimal converts signed decimal degrees into EXIF GPS form.
// Latitude references are N/S, longitude references E/W; zero is N or E.
func DecimalToSexagesimal(value float64, isLongitude bool) Sexagesimal {
	var ref byte
	switch {
	case isLongitude && value >= 0:
		ref = 'E'
	case isLongitude:
		ref = 'W'
	case value >= 0:
		ref = 'N'
	default:
		ref = 'S'
	}

	abs := math.Abs(value)
	degrees := int(abs)
	minutesF := (abs - float64(degrees)) * 60
	minutes := int(minutesF)
	seconds := (minutesF - float64(minutes)) * 60

	return Sexagesimal{
		Degrees:           degrees,
		Minutes:           minutes,
		SecondsHundredths: int(seconds * 100),
		Ref:               ref,
	}
}
