// Package qr renders text as a PNG QR code.
package qr

import (
	"strings"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

var ErrEmpty = errors.New("text is required")

type Options struct {
	// BoxSize is the width in pixels of a single module.
	BoxSize int
	Level   qrcode.RecoveryLevel
}

// DefaultOptions fit a pairing payload of a few hundred bytes on a phone
// screen.
var DefaultOptions = Options{BoxSize: 8, Level: qrcode.Medium}

// PNG encodes text with the smallest QR version that fits it.
func PNG(text string, opt Options) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	if opt.BoxSize <= 0 {
		opt.BoxSize = DefaultOptions.BoxSize
	}
	code, err := qrcode.New(text, opt.Level)
	if err != nil {
		return nil, errors.Wrap(err, "encoding qr code")
	}
	// a negative size is the size of each module rather than of the image
	return code.PNG(-opt.BoxSize)
}
