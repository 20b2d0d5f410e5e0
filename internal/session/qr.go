// ABOUTME: Renders pairing codes into displayable QR images
// ABOUTME: Output is a base64 PNG data URL the dashboard can drop into an img tag

package session

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// renderPairingArtifact encodes a raw pairing code as a PNG QR image and
// returns it as a data URL.
func renderPairingArtifact(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("encoding pairing code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
