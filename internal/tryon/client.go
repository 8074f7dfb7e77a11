// Package tryon calls the hosted virtual try-on inference API that renders a
// garment onto a model image.
package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultModel = "easel-ai/fashion-tryon"

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	token      string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://fal.run"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		model:      model,
		token:      strings.TrimSpace(opts.APIKey),
	}
}

// Request describes one garment-on-model render.
type Request struct {
	ModelImageURL   string
	ClothingURL     string
	Gender          string
	GarmentCategory string
}

type tryonPayload struct {
	FullBodyImage string `json:"full_body_image"`
	ClothingImage string `json:"clothing_image"`
	Gender        string `json:"gender,omitempty"`
	Category      string `json:"category,omitempty"`
}

type tryonResp struct {
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Detail json.RawMessage `json:"detail"`
}

// Generate renders one garment onto one model image and returns the output
// image URL. The API is synchronous; the caller bounds the wait through ctx.
func (c *Client) Generate(ctx context.Context, r Request) (string, error) {
	if c == nil {
		return "", errors.New("tryon client not configured")
	}
	if c.token == "" {
		return "", errors.New("tryon: API key is missing")
	}
	modelURL := strings.TrimSpace(r.ModelImageURL)
	clothingURL := strings.TrimSpace(r.ClothingURL)
	if modelURL == "" || clothingURL == "" {
		return "", errors.New("tryon: model and clothing image urls required")
	}

	payload := tryonPayload{
		FullBodyImage: modelURL,
		ClothingImage: clothingURL,
		Gender:        strings.TrimSpace(r.Gender),
		Category:      strings.TrimSpace(r.GarmentCategory),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out tryonResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("tryon: http %d", resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if len(out.Detail) > 0 {
			return "", fmt.Errorf("tryon error: http %d: %s", resp.StatusCode, out.Detail)
		}
		return "", fmt.Errorf("tryon: http %d", resp.StatusCode)
	}

	url := strings.TrimSpace(out.Image.URL)
	if url == "" && len(out.Images) > 0 {
		url = strings.TrimSpace(out.Images[0].URL)
	}
	if url == "" {
		return "", errors.New("tryon: missing output image url")
	}
	return url, nil
}
