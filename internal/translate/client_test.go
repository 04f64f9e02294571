package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second)
}

func candidateResponse(text string) string {
	payload := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestTranslateOne_SendsContextAndCredential(t *testing.T) {
	var gotBody string
	var gotKey string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotKey = r.Header.Get("x-goog-api-key")
		io.WriteString(w, candidateResponse("  Merhaba dünya  "))
	})

	got, err := client.TranslateOne(context.Background(), SingleRequest{
		Text:      "Hello world",
		Preceding: []string{"Previously..."},
		Following: []string{"Up next..."},
		Options: Options{
			Credential:     "key-1",
			Model:          "gemini-2.0-flash",
			TargetLanguage: "tr",
			Glossary:       map[string]string{"Winterfell": "Kıştepesi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Merhaba dünya", got)
	assert.Equal(t, "key-1", gotKey)
	assert.Contains(t, gotBody, "PREVIOUS CONTEXT")
	assert.Contains(t, gotBody, "NEXT CONTEXT")
	assert.Contains(t, gotBody, "Kıştepesi")
}

func TestTranslateBatch_ParsesJSONArray(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, candidateResponse(`["bir", "iki"]`))
	})

	got, err := client.TranslateBatch(context.Background(), BatchRequest{
		Texts:   []string{"one", "two"},
		Options: Options{Model: "gemini-2.0-flash", TargetLanguage: "tr"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bir", "iki"}, got)
}

func TestTranslateBatch_NonJSONOutputFails(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, candidateResponse("bir\niki"))
	})

	_, err := client.TranslateBatch(context.Background(), BatchRequest{
		Texts:   []string{"one", "two"},
		Options: Options{Model: "gemini-2.0-flash"},
	})
	require.Error(t, err)
}

func TestGenerate_HTTPErrorCarriesStatusAndBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := client.TranslateOne(context.Background(), SingleRequest{
		Text:    "hi",
		Options: Options{Model: "gemini-2.0-flash"},
	})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatus())
	assert.Contains(t, string(apiErr.ResponseBody()), "RESOURCE_EXHAUSTED")
}

func TestGenerate_NonStopFinishReasonFails(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`)
	})

	_, err := client.TranslateOne(context.Background(), SingleRequest{
		Text:    "hi",
		Options: Options{Model: "gemini-2.0-flash"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finishReason SAFETY")
}
