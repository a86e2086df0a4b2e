package config

import (
	"log/slog"

	"github.com/shiori-lab/shiori/pkg/service/ocr"
	"github.com/urfave/cli/v3"
)

// OCR holds CLI flags for the Mistral OCR client
type OCR struct {
	apiKey string
	model  string
}

func (o *OCR) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mistral-api-key",
			Usage:       "Mistral API key for OCR text extraction",
			Category:    "OCR",
			Destination: &o.apiKey,
			Sources:     cli.EnvVars("SHIORI_MISTRAL_API_KEY"),
		},
		&cli.StringFlag{
			Name:        "mistral-model",
			Usage:       "Mistral vision model used for OCR",
			Category:    "OCR",
			Value:       ocr.DefaultModel,
			Sources:     cli.EnvVars("SHIORI_MISTRAL_MODEL"),
			Destination: &o.model,
		},
	}
}

func (o OCR) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api-key.len", len(o.apiKey)),
		slog.String("model", o.model),
	)
}

// Configure creates the OCR service. Returns nil if no API key is set, in
// which case media ingestion is disabled.
func (o *OCR) Configure() (ocr.Service, error) {
	if o.apiKey == "" {
		return nil, nil
	}
	return ocr.New(o.apiKey, ocr.WithModel(o.model))
}
