// Package ocr wraps the external text-recognition collaborator and the
// engine's own extraction of a payment amount from recognized text.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TextExtractor turns a receipt image into free text. Implementations are
// external collaborators; the engine only consumes the text.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// TesseractClient shells out to the tesseract binary. Languages defaults to
// "eng+tha" to cover the receipts the shop actually receives.
type TesseractClient struct {
	Command   string
	Languages string
	logger    *zerolog.Logger
}

func NewTesseractClient(command, languages string, logger *zerolog.Logger) *TesseractClient {
	if command == "" {
		command = "tesseract"
	}
	if languages == "" {
		languages = "eng+tha"
	}
	return &TesseractClient{Command: command, Languages: languages, logger: logger}
}

func (c *TesseractClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	inPath := filepath.Join(os.TempDir(), "slip_"+uuid.NewString()+".jpg")
	if err := os.WriteFile(inPath, image, 0o600); err != nil {
		return "", fmt.Errorf("write receipt temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(inPath); err != nil && c.logger != nil {
			c.logger.Warn().Err(err).Str("path", inPath).Msg("remove receipt temp file")
		}
	}()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, inPath, "stdout", "-l", c.Languages, "--psm", "6")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("tesseract: %s: %w", msg, err)
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return stdout.String(), nil
}

// Receipt amounts appear as a two-decimal number, possibly with thousands
// separators and a trailing currency word.
var amountRe = regexp.MustCompile(`([\d,]+\.\d{2})`)

// ExtractAmount pulls the first two-decimal amount out of recognized text.
// Returns false when no parsable amount is present.
func ExtractAmount(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	cleaned := strings.Join(strings.Fields(text), " ")
	m := amountRe.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
