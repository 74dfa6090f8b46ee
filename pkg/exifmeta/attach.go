package exifmeta

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/chai2010/webp"

	"github.com/menta2k/mockup-forge/pkg/processing"
)

var (
	// ErrNotJPEG is returned when attaching to data without a JPEG SOI marker
	ErrNotJPEG = errors.New("exifmeta: not a JPEG stream")
	// ErrBlockTooLarge is returned when a block does not fit one APP1 segment
	ErrBlockTooLarge = errors.New("exifmeta: block exceeds APP1 segment size")
)

var exifHeader = []byte("Exif\x00\x00")

const (
	markerSOI  = 0xD8
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1

	maxSegmentPayload = 0xFFFF - 2
)

// APP1 returns the block wrapped as a JPEG APP1 segment
func (b Block) APP1() ([]byte, error) {
	payload := len(exifHeader) + len(b.tiff)
	if payload > maxSegmentPayload {
		return nil, ErrBlockTooLarge
	}
	seg := make([]byte, 0, 4+payload)
	seg = append(seg, 0xFF, markerAPP1)
	seg = byteOrder.AppendUint16(seg, uint16(payload+2))
	seg = append(seg, exifHeader...)
	return append(seg, b.tiff...), nil
}

// AttachJPEG inserts the block into a JPEG stream after SOI and any JFIF
// APP0 segment. An empty block returns data unchanged.
func AttachJPEG(data []byte, b Block) ([]byte, error) {
	if b.Empty() {
		return data, nil
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	seg, err := b.APP1()
	if err != nil {
		return nil, err
	}

	at := 2
	if len(data) >= 6 && data[2] == 0xFF && data[3] == markerAPP0 {
		n := int(byteOrder.Uint16(data[4:6]))
		if 4+n <= len(data) {
			at = 4 + n
		}
	}

	out := make([]byte, 0, len(data)+len(seg))
	out = append(out, data[:at]...)
	out = append(out, seg...)
	return append(out, data[at:]...), nil
}

// AttachWebP stores the block in the EXIF chunk of a WebP container.
// An empty block returns data unchanged.
func AttachWebP(data []byte, b Block) ([]byte, error) {
	if b.Empty() {
		return data, nil
	}
	out, err := webp.SetMetadata(data, b.tiff, "EXIF")
	if err != nil {
		return nil, fmt.Errorf("webp metadata: %w", err)
	}
	return out, nil
}

// Attach embeds the block into data encoded as enc
func Attach(data []byte, enc processing.Encoding, b Block) ([]byte, error) {
	if enc == processing.EncodingWebP {
		return AttachWebP(data, b)
	}
	return AttachJPEG(data, b)
}

// ExtractJPEG returns the TIFF stream of the first EXIF APP1 segment
func ExtractJPEG(data []byte) ([]byte, bool) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, false
	}
	i := 2
	for i+4 <= len(data) && data[i] == 0xFF {
		marker := data[i+1]
		n := int(byteOrder.Uint16(data[i+2 : i+4]))
		end := i + 2 + n
		if n < 2 || end > len(data) {
			return nil, false
		}
		if marker == markerAPP1 && bytes.HasPrefix(data[i+4:end], exifHeader) {
			return data[i+4+len(exifHeader) : end], true
		}
		// metadata segments precede the scan
		if marker < markerAPP0 || marker > 0xEF {
			return nil, false
		}
		i = end
	}
	return nil, false
}

// ExtractWebP returns the EXIF chunk of a WebP container
func ExtractWebP(data []byte) ([]byte, bool) {
	tiff, err := webp.GetMetadata(data, "EXIF")
	if err != nil || len(tiff) == 0 {
		return nil, false
	}
	return tiff, true
}
