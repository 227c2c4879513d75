package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skip2/go-qrcode"
)

const dateLayout = "2006-01-02"

// Generator writes registration codes as PNG files under one directory.
type Generator struct {
	dir          string
	size         int
	validityDays int
}

func NewGenerator(dir string, size, validityDays int) *Generator {
	return &Generator{dir: dir, size: size, validityDays: validityDays}
}

// Payload is the text encoded for plate when registered at issued.
func (g *Generator) Payload(plate string, issued time.Time) string {
	validUntil := issued.AddDate(0, 0, g.validityDays)
	return fmt.Sprintf("Plate: %s\nValid Until: %s", plate, validUntil.Format(dateLayout))
}

// Path returns where the code for plate is stored. The plate is encoded so
// that it cannot name a file outside the directory.
func (g *Generator) Path(plate string) string {
	return filepath.Join(g.dir, base64.RawURLEncoding.EncodeToString([]byte(plate))+".png")
}

// Generate renders the code for plate and returns its path.
func (g *Generator) Generate(plate string, issued time.Time) (string, error) {
	png, err := qrcode.Encode(g.Payload(plate, issued), qrcode.Medium, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code for %s: %w", plate, err)
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create qr directory: %w", err)
	}

	path := g.Path(plate)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write qr code: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write qr code: %w", err)
	}
	return path, nil
}

// Remove deletes the code for plate. A missing file is not an error.
func (g *Generator) Remove(plate string) error {
	err := os.Remove(g.Path(plate))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
