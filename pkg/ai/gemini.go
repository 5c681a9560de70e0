package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) API.
type GeminiClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// GeminiOption customizes the client.
type GeminiOption func(*GeminiClient)

// WithBaseURL points the client at a different endpoint (tests).
func WithBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithPollInterval sets the long-running operation poll interval.
func WithPollInterval(d time.Duration) GeminiOption {
	return func(c *GeminiClient) {
		c.pollInterval = d
	}
}

// NewGeminiClient constructs a client with the provided API key.
func NewGeminiClient(apiKey string, options ...GeminiOption) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	c := &GeminiClient{
		apiKey:       apiKey,
		baseURL:      defaultGeminiBaseURL,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		pollInterval: 5 * time.Second,
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	return c, nil
}

// Part is one piece of a request: plain text or an inline file.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 file bytes with their MIME type.
type InlineData struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// FilePart builds an inline file part.
func FilePart(base64Data, mimeType string) Part {
	return Part{InlineData: &InlineData{Data: base64Data, MimeType: mimeType}}
}

// GenerateText returns the generated response for a prompt.
func (c *GeminiClient) GenerateText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.generate(ctx, model, []content{{Role: "user", Parts: []Part{TextPart(userPrompt)}}}, systemPrompt, nil)
	if err != nil {
		return "", err
	}
	text := resp.text()
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return text, nil
}

// GenerateJSON sends parts with a required structured-output schema and
// decodes the model's JSON reply into out. A reply that does not decode is a
// *SchemaError.
func (c *GeminiClient) GenerateJSON(ctx context.Context, model string, parts []Part, schema *Schema, thinkingBudget int, out any) error {
	cfg := &generationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   schema,
	}
	if thinkingBudget > 0 {
		cfg.ThinkingConfig = &thinkingConfig{ThinkingBudget: thinkingBudget}
	}
	resp, err := c.generate(ctx, model, []content{{Role: "user", Parts: parts}}, "", cfg)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(resp.text())
	if text == "" {
		return &SchemaError{Reason: "empty response body"}
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &SchemaError{Reason: fmt.Sprintf("decode structured output: %v", err), Raw: text}
	}
	return nil
}

// Chat sends a full turn history and returns the model's reply text.
func (c *GeminiClient) Chat(ctx context.Context, model, systemPrompt string, turns []Turn, thinkingBudget int) (string, error) {
	contents := make([]content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, content{Role: turn.Role, Parts: turn.Parts})
	}
	var cfg *generationConfig
	if thinkingBudget > 0 {
		cfg = &generationConfig{ThinkingConfig: &thinkingConfig{ThinkingBudget: thinkingBudget}}
	}
	resp, err := c.generate(ctx, model, contents, systemPrompt, cfg)
	if err != nil {
		return "", err
	}
	return resp.text(), nil
}

// Turn is one chat exchange entry; Role is "user" or "model".
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// GenerateImage asks an image model for a picture and returns the raw bytes.
func (c *GeminiClient) GenerateImage(ctx context.Context, model, prompt, aspectRatio, imageSize string) ([]byte, error) {
	cfg := &generationConfig{ImageConfig: &imageConfig{AspectRatio: aspectRatio, ImageSize: imageSize}}
	resp, err := c.generate(ctx, model, []content{{Role: "user", Parts: []Part{TextPart(prompt)}}}, "", cfg)
	if err != nil {
		return nil, err
	}
	return resp.inlineBytes()
}

// EditImage sends an existing image plus an instruction and returns the
// edited image bytes.
func (c *GeminiClient) EditImage(ctx context.Context, model, imageBase64, mimeType, prompt string) ([]byte, error) {
	parts := []Part{FilePart(imageBase64, mimeType), TextPart(prompt)}
	resp, err := c.generate(ctx, model, []content{{Role: "user", Parts: parts}}, "", nil)
	if err != nil {
		return nil, err
	}
	return resp.inlineBytes()
}

// GenerateVideo starts a long-running video generation and polls until the
// operation completes, returning the download URI (API key appended).
func (c *GeminiClient) GenerateVideo(ctx context.Context, model, prompt, imageBase64, aspectRatio string) (string, error) {
	instance := videoInstance{Prompt: prompt}
	if imageBase64 != "" {
		instance.Image = &videoImage{BytesBase64Encoded: imageBase64, MimeType: "image/png"}
	}
	reqBody := videoRequest{
		Instances: []videoInstance{instance},
		Parameters: videoParameters{
			AspectRatio: aspectRatio,
			Resolution:  "720p",
		},
	}
	var op operationResponse
	url := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &op); err != nil {
		return "", err
	}
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
		pollURL := fmt.Sprintf("%s/%s?key=%s", c.baseURL, strings.TrimPrefix(op.Name, "/"), c.apiKey)
		if err := c.doJSON(ctx, http.MethodGet, pollURL, nil, &op); err != nil {
			return "", err
		}
	}
	uri := op.videoURI()
	if uri == "" {
		return "", fmt.Errorf("video operation finished without a download uri")
	}
	return uri + "&key=" + c.apiKey, nil
}

func (c *GeminiClient) generate(ctx context.Context, model string, contents []content, systemPrompt string, cfg *generationConfig) (*generateResponse, error) {
	reqBody := generateRequest{Contents: contents, GenerationConfig: cfg}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &content{Parts: []Part{TextPart(systemPrompt)}}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	var resp generateResponse
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *GeminiClient) doJSON(ctx context.Context, method, url string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema         `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig      *imageConfig    `json:"imageConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (r *generateResponse) inlineBytes() ([]byte, error) {
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("no image data")
	}
	for _, part := range r.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("no image data")
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

type videoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

func (o *operationResponse) videoURI() string {
	samples := o.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return ""
	}
	return samples[0].Video.URI
}
