package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProxyClient 通过 OpenAI 风格网关（如 yunwu.ai）调用 Gemini REST generateContent。
type ProxyClient struct {
	settings Settings
	http     *http.Client
}

func NewProxyClient(s Settings) (*ProxyClient, error) {
	if s.APIKey == "" {
		return nil, errors.New("image proxy api key missing; provide image.api_key or YUNWU_API_KEY")
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultProxyURL
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ProxyClient{settings: s, http: hc}, nil
}

func (c *ProxyClient) endpoint() string {
	return strings.TrimRight(c.settings.BaseURL, "/") + "/v1beta/models/" + c.settings.model() + ":generateContent"
}

func buildPayload(prompt string) ([]byte, error) {
	payload, err := sjson.SetBytes(nil, "contents.0.role", "user")
	if err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "contents.0.parts.0.text", prompt); err != nil {
		return nil, err
	}
	return sjson.SetBytes(payload, "generationConfig.responseModalities", []string{"IMAGE", "TEXT"})
}

func (c *ProxyClient) Generate(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.settings.Timeout)
	defer cancel()

	payload, err := buildPayload(prompt)
	if err != nil {
		return Response{}, fmt.Errorf("build payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read image response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return Response{Raw: body}, fmt.Errorf("image api status %d: invalid json body", resp.StatusCode)
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return Response{Raw: body}, fmt.Errorf("image api status %d: %s", resp.StatusCode, msg.String())
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Response{Raw: body}, fmt.Errorf("image api status %d", resp.StatusCode)
	}
	return parseResponse(body)
}

// parseResponse 收集所有候选中的全部内联图片与文本。
func parseResponse(body []byte) (Response, error) {
	out := Response{Raw: body}
	var texts []string
	var decodeErr error
	gjson.GetBytes(body, "candidates").ForEach(func(_, cand gjson.Result) bool {
		cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
			inline := part.Get("inlineData")
			if !inline.Exists() {
				inline = part.Get("inline_data")
			}
			if inline.Exists() {
				data, err := base64.StdEncoding.DecodeString(inline.Get("data").String())
				if err != nil {
					decodeErr = fmt.Errorf("decode inline image: %w", err)
					return true
				}
				mime := inline.Get("mimeType").String()
				if mime == "" {
					mime = inline.Get("mime_type").String()
				}
				out.Images = append(out.Images, Image{MIMEType: mime, Data: data})
				return true
			}
			if t := part.Get("text"); t.Exists() && t.String() != "" {
				texts = append(texts, t.String())
			}
			return true
		})
		return true
	})
	out.Text = strings.Join(texts, "\n")
	if len(out.Images) == 0 {
		if decodeErr != nil {
			return out, decodeErr
		}
		return out, ErrNoImage
	}
	return out, nil
}
