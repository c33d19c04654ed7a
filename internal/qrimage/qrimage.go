// Package qrimage renders scan credential codes as printable PNG images.
package qrimage

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the edge length in pixels of a rendered code.
const DefaultSize = 300

// PNG encodes code as a QR PNG of size×size pixels with a quiet-zone border.
func PNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, errors.New("qrimage: empty code")
	}
	if size <= 0 {
		size = DefaultSize
	}
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	qr.DisableBorder = false
	return qr.PNG(size)
}

// Filename is the object name used when the image is stored.
func Filename(code string) string {
	return "qr_" + code + ".png"
}
