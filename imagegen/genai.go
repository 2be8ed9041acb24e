package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient 使用 genai SDK 调用图像模型；BaseURL 非空时以 Bearer 头经由代理转发。
type GenAIClient struct {
	client   *genai.Client
	settings Settings
}

func NewGenAIClient(ctx context.Context, s Settings) (*GenAIClient, error) {
	if s.APIKey == "" {
		return nil, errors.New("gemini api key missing; provide image.api_key or GEMINI_API_KEY")
	}
	cc := &genai.ClientConfig{
		APIKey:     s.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.HTTPClient,
	}
	if s.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{
			BaseURL: s.BaseURL,
			Headers: http.Header{"Authorization": []string{"Bearer " + s.APIKey}},
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, settings: s}, nil
}

func (c *GenAIClient) Generate(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.settings.Timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.settings.model(), genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return Response{}, fmt.Errorf("GenAI generate image: %w", err)
	}

	out := Response{}
	out.Raw, _ = json.Marshal(resp)
	var texts []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part == nil:
			case part.InlineData != nil && len(part.InlineData.Data) > 0:
				out.Images = append(out.Images, Image{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data})
			case part.Text != "":
				texts = append(texts, part.Text)
			}
		}
	}
	out.Text = strings.Join(texts, "\n")
	if len(out.Images) == 0 {
		return out, ErrNoImage
	}
	return out, nil
}
