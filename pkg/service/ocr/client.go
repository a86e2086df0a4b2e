package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/utils/safe"
)

const (
	// DefaultBaseURL is the Mistral API endpoint
	DefaultBaseURL = "https://api.mistral.ai"
	// DefaultModel is the vision model used for text extraction
	DefaultModel = "pixtral-12b-latest"

	extractPrompt = "Extract all text from this image. Return only the extracted text, without commentary. If the image contains no text, return an empty response."
)

// Service extracts text from image bytes
type Service interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// client implements Service via the Mistral vision chat API
type client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option is a functional option for client configuration
type Option func(*client)

// WithBaseURL overrides the API endpoint, mainly for tests
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// WithModel overrides the vision model
func WithModel(m string) Option {
	return func(c *client) {
		c.model = m
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// New creates a new OCR service with the provided API key
func New(apiKey string, opts ...Option) (Service, error) {
	if apiKey == "" {
		return nil, goerr.New("OCR API key is required")
	}

	c := &client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractText sends the image to the vision model as a base64 data URL and
// returns the extracted text. An empty result is valid: it means the image
// carried no readable text.
func (c *client) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", goerr.New("image data is empty")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: extractPrompt},
					{Type: "image_url", ImageURL: dataURL},
				},
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal OCR request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build OCR request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call OCR provider", goerr.T(model.TagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read OCR response", goerr.T(model.TagTransient))
	}

	if resp.StatusCode != http.StatusOK {
		return "", goerr.New("OCR provider returned non-OK status",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)),
			goerr.T(model.TagTransient))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", goerr.Wrap(err, "failed to parse OCR response", goerr.V("body", string(respBody)))
	}

	if len(parsed.Choices) == 0 {
		return "", goerr.New("OCR response has no choices", goerr.T(model.TagTransient))
	}

	return parsed.Choices[0].Message.Content, nil
}
