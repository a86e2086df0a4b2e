package ocr_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/shiori-lab/shiori/pkg/domain/model"
	"github.com/shiori-lab/shiori/pkg/service/ocr"
)

func TestExtractText(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody)).Required()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Receipt total: 42.00"}}]}`))
	}))
	defer srv.Close()

	svc, err := ocr.New("test-api-key", ocr.WithBaseURL(srv.URL))
	gt.NoError(t, err).Required()

	text, err := svc.ExtractText(context.Background(), []byte("fake-image"), "image/png")
	gt.NoError(t, err).Required()
	gt.Value(t, text).Equal("Receipt total: 42.00")

	gt.Value(t, gotAuth).Equal("Bearer test-api-key")

	// The image travels as a base64 data URL in the vision message
	messages := gotBody["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	imagePart := content[1].(map[string]any)
	gt.Bool(t, strings.HasPrefix(imagePart["image_url"].(string), "data:image/png;base64,")).True()
}

func TestExtractTextEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	svc, err := ocr.New("test-api-key", ocr.WithBaseURL(srv.URL))
	gt.NoError(t, err).Required()

	// No readable text is a valid outcome, not an error
	text, err := svc.ExtractText(context.Background(), []byte("blank-image"), "image/jpeg")
	gt.NoError(t, err).Required()
	gt.Value(t, text).Equal("")
}

func TestExtractTextServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := ocr.New("test-api-key", ocr.WithBaseURL(srv.URL))
	gt.NoError(t, err).Required()

	_, err = svc.ExtractText(context.Background(), []byte("fake-image"), "image/png")
	gt.Value(t, err).NotNil()
	gt.Bool(t, goerr.HasTag(err, model.TagTransient)).True()
}

func TestExtractTextRejectsEmptyData(t *testing.T) {
	svc, err := ocr.New("test-api-key")
	gt.NoError(t, err).Required()

	_, err = svc.ExtractText(context.Background(), nil, "image/png")
	gt.Value(t, err).NotNil()
	gt.Bool(t, goerr.HasTag(err, model.TagTransient)).False()
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := ocr.New("")
	gt.Value(t, err).NotNil()
}
