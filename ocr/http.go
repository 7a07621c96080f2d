package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRecognizeConfig configures NewHTTPRecognizeFunc's transport to a
// recognition backend. The backend's model/language internals are the
// black box this package treats as opaque; this is only the wire contract
// for calling it.
type HTTPRecognizeConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

type recognizeRequest struct {
	Data []byte `json:"data"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// NewHTTPRecognizeFunc POSTs document bytes to an external recognition
// service and returns its extracted text, the same request/response shape
// the Review Forwarder uses against the external reviewer service
// (marshal, POST with an API-key header, check status, unmarshal).
func NewHTTPRecognizeFunc(cfg HTTPRecognizeConfig) RecognizeFunc {
	client := &http.Client{Timeout: cfg.Timeout}

	return func(ctx context.Context, data []byte) (string, error) {
		body, err := json.Marshal(recognizeRequest{Data: data})
		if err != nil {
			return "", fmt.Errorf("marshal recognize request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL+"/recognize", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build recognize request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", cfg.APIKey)

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("do recognize request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("recognition service returned status %d", resp.StatusCode)
		}

		var out recognizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode recognize response: %w", err)
		}
		return out.Text, nil
	}
}
