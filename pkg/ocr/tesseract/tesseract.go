// Package tesseract implements the local OCR engine backed by the Tesseract
// library via gosseract.
//
// The engine runs fully in-process: no network, no credential, and it is
// never rate limited. Failures are plain errors, absorbed by the caller as
// page-level failures without retries.
//
// Languages are given as the short codes the tool accepts on its command line
// ("th", "en") and mapped to Tesseract traineddata names ("tha", "eng"). Only
// a fixed small set is supported.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

// languageCodes maps the supported short language codes to Tesseract
// traineddata names.
var languageCodes = map[string]string{
	"en": "eng",
	"th": "tha",
}

// Config holds user options for the Tesseract engine.
type Config struct {
	// Languages is the set of short language codes to recognize, in priority
	// order. Defaults to ["th", "en"].
	Languages []string

	// DPI is passed to Tesseract as user_defined_dpi; zero leaves the
	// library default in place.
	DPI int
}

// Engine is a local OCR engine using the Tesseract library.
type Engine struct {
	langs []string
	dpi   int

	clientFactory func() *gosseract.Client
}

// New validates the language set and constructs the engine.
func New(cfg Config) (*Engine, error) {
	codes := cfg.Languages
	if len(codes) == 0 {
		codes = []string{"th", "en"}
	}
	langs := make([]string, 0, len(codes))
	for _, code := range codes {
		lang, ok := languageCodes[strings.ToLower(strings.TrimSpace(code))]
		if !ok {
			return nil, fmt.Errorf("unsupported language code %q (supported: th, en)", code)
		}
		langs = append(langs, lang)
	}
	return &Engine{
		langs:         langs,
		dpi:           cfg.DPI,
		clientFactory: gosseract.NewClient,
	}, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Extract recognizes one page image. A fresh client is used per call so that
// failed recognitions cannot leak state into later pages.
func (e *Engine) Extract(ctx context.Context, page ocr.Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(page.PNG); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(e.langs...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
