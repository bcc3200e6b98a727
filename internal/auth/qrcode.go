package auth

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeRenderer renders otpauth URIs as PNG data URLs
type QRCodeRenderer struct {
	size int
}

func NewQRCodeRenderer(size int) *QRCodeRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRCodeRenderer{size: size}
}

// RenderDataURL returns "data:image/png;base64,..." for content
func (r *QRCodeRenderer) RenderDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
