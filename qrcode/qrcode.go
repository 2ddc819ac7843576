// Package qrcode renders the QR codes printed for each outreach location.
package qrcode

import (
	"errors"
	"fmt"
	"net/url"

	qr "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 512
	MinSize     = 128
	MaxSize     = 2048
)

// ErrInvalidBaseURL is returned when the public form URL cannot be parsed
var ErrInvalidBaseURL = errors.New("invalid public form url")

// FormURL links the public form preselected to churchID
func FormURL(base, churchID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, base)
	}
	q := u.Query()
	q.Set("church", churchID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PNG encodes content as a square PNG. size is clamped to MinSize..MaxSize.
func PNG(content string, size int) ([]byte, error) {
	png, err := qr.Encode(content, qr.Medium, ClampSize(size))
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// ClampSize applies the default and bounds
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	}
	return size
}
