// Package publisher 把保存下来的文章发布为微信公众号草稿。
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"content_agents/generator"
	"content_agents/persist"
	"content_agents/render"
)

// DefaultBaseURL 是公众号 API 地址。
const DefaultBaseURL = "https://api.weixin.qq.com"

const (
	tokenPath       = "/cgi-bin/token"
	addMaterialPath = "/cgi-bin/material/add_material"
	uploadImgPath   = "/cgi-bin/media/uploadimg"
	addDraftPath    = "/cgi-bin/draft/add"

	digestLimit = 120
)

// ErrMissingField is returned when a draft lacks its title, content or cover.
var ErrMissingField = errors.New("publisher: title, content and cover are required")

// Config holds the WeChat app credentials.
type Config struct {
	AppID     string `yaml:"app_id" json:"app_id"`
	AppSecret string `yaml:"app_secret" json:"app_secret"`
	Author    string `yaml:"author" json:"author,omitempty"`
	BaseURL   string `yaml:"base_url" json:"base_url,omitempty"`
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool { return c.AppID != "" && c.AppSecret != "" }

// Draft describes the content to be published.
type Draft struct {
	Title    string
	Author   string
	Digest   string
	Markdown string
	// BaseDir 用于解析 Markdown 中的相对图片路径。
	BaseDir   string
	CoverPath string
}

// wxResp 覆盖本包用到的所有接口返回字段。
type wxResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	MediaID     string `json:"media_id"`
	URL         string `json:"url"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// APIError is a non-zero errcode returned by the WeChat API.
type APIError struct {
	Op      string
	ErrCode int
	ErrMsg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat %s failed: %d %s", e.Op, e.ErrCode, e.ErrMsg)
}

type article struct {
	Title              string `json:"title"`
	Author             string `json:"author"`
	Digest             string `json:"digest"`
	Content            string `json:"content"`
	ThumbMediaID       string `json:"thumb_media_id"`
	NeedOpenComment    int    `json:"need_open_comment"`
	OnlyFansCanComment int    `json:"only_fans_can_comment"`
}

type addDraftPayload struct {
	Articles []article `json:"articles"`
}

// Publisher orchestrates conversion and upload to WeChat.
// access_token 首次使用时获取并缓存到过期前。
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func New(cfg Config, client *http.Client, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("config must include app_id and app_secret")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, client: client, logger: logger, now: time.Now}, nil
}

// DraftFromRecord 从会话记录的 state 中取文章：标题优先取 titles[0]，其次取正文一级标题。
// 封面默认取 state.images 的第一张（漫画记录）。
func DraftFromRecord(rec persist.Record, baseDir string) Draft {
	state := gjson.ParseBytes(rec.State)
	markdown := state.Get("article").String()

	title := generator.CleanListItem(state.Get("titles.0").String())
	if title == "" {
		title = generator.ExtractTitle(markdown)
	}
	if title == "" {
		title = state.Get("selected_topic").String()
	}
	return Draft{
		Title:     title,
		Digest:    generator.ExtractDigest(markdown),
		Markdown:  markdown,
		BaseDir:   baseDir,
		CoverPath: state.Get("images.0").String(),
	}
}

// PublishDraft converts markdown to WeChat-friendly HTML, uploads resources, and creates a draft.
func (p *Publisher) PublishDraft(ctx context.Context, d Draft) (string, error) {
	if d.Title == "" || strings.TrimSpace(d.Markdown) == "" || d.CoverPath == "" {
		return "", ErrMissingField
	}
	token, err := p.token(ctx)
	if err != nil {
		return "", err
	}

	digest := d.Digest
	if digest == "" {
		digest = generator.DefaultDigest(d.Markdown, digestLimit)
	}
	author := d.Author
	if author == "" {
		author = p.cfg.Author
	}

	withImages, err := render.ReplaceImages(ctx, d.Markdown, d.BaseDir, func(ctx context.Context, path string) (string, error) {
		return p.uploadContentImage(ctx, token, path)
	})
	if err != nil {
		return "", err
	}
	contentHTML, err := render.ForWeChat(withImages)
	if err != nil {
		return "", err
	}
	p.logger.Debug("converted markdown for wechat", zap.Int("html_bytes", len(contentHTML)))

	thumbMediaID, err := p.uploadCover(ctx, token, d.CoverPath)
	if err != nil {
		return "", err
	}
	p.logger.Info("uploaded cover", zap.String("path", d.CoverPath), zap.String("media_id", thumbMediaID))

	mediaID, err := p.addDraft(ctx, token, article{
		Title:        d.Title,
		Author:       author,
		Digest:       digest,
		Content:      contentHTML,
		ThumbMediaID: thumbMediaID,
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("draft created", zap.String("media_id", mediaID), zap.String("title", d.Title))
	return mediaID, nil
}

func (p *Publisher) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && p.now().Before(p.expiresAt) {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("grant_type", "client_credential")
	q.Set("appid", p.cfg.AppID)
	q.Set("secret", p.cfg.AppSecret)
	req.URL.RawQuery = q.Encode()

	data, err := p.do(req, "get access_token")
	if err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", &APIError{Op: "get access_token", ErrCode: data.ErrCode, ErrMsg: data.ErrMsg}
	}
	ttl := time.Duration(data.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	// 提前一分钟过期，避免边界上拿到失效 token。
	p.accessToken = data.AccessToken
	p.expiresAt = p.now().Add(ttl - time.Minute)
	return p.accessToken, nil
}

func (p *Publisher) uploadCover(ctx context.Context, token, path string) (string, error) {
	data, err := p.upload(ctx, addMaterialPath, map[string]string{"access_token": token, "type": "image"}, path, "upload image")
	if err != nil {
		return "", err
	}
	if data.MediaID == "" {
		return "", &APIError{Op: "upload image", ErrCode: data.ErrCode, ErrMsg: data.ErrMsg}
	}
	return data.MediaID, nil
}

func (p *Publisher) uploadContentImage(ctx context.Context, token, path string) (string, error) {
	data, err := p.upload(ctx, uploadImgPath, map[string]string{"access_token": token}, path, "upload content image")
	if err != nil {
		return "", err
	}
	if data.URL == "" {
		return "", &APIError{Op: "upload content image", ErrCode: data.ErrCode, ErrMsg: data.ErrMsg}
	}
	return data.URL, nil
}

func (p *Publisher) upload(ctx context.Context, path string, query map[string]string, file, op string) (wxResp, error) {
	f, err := os.Open(file)
	if err != nil {
		return wxResp{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", filepath.Base(file))
	if err != nil {
		return wxResp{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return wxResp{}, err
	}
	if err := writer.Close(); err != nil {
		return wxResp{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, &body)
	if err != nil {
		return wxResp{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return p.do(req, op)
}

func (p *Publisher) addDraft(ctx context.Context, token string, art article) (string, error) {
	body, err := json.Marshal(addDraftPayload{Articles: []article{art}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+addDraftPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	q := req.URL.Query()
	q.Set("access_token", token)
	req.URL.RawQuery = q.Encode()

	data, err := p.do(req, "add draft")
	if err != nil {
		return "", err
	}
	if data.MediaID == "" {
		return "", &APIError{Op: "add draft", ErrCode: data.ErrCode, ErrMsg: data.ErrMsg}
	}
	return data.MediaID, nil
}

func (p *Publisher) do(req *http.Request, op string) (wxResp, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return wxResp{}, fmt.Errorf("wechat %s: %w", op, err)
	}
	defer resp.Body.Close()

	var data wxResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return wxResp{}, fmt.Errorf("wechat %s: decode response (status %d): %w", op, resp.StatusCode, err)
	}
	if op != "get access_token" && (data.ErrCode == 40001 || data.ErrCode == 42001) {
		p.invalidate()
	}
	return data, nil
}

// invalidate 清掉失效的 token（40001/42001），下一次调用重新获取。
func (p *Publisher) invalidate() {
	p.mu.Lock()
	p.accessToken = ""
	p.mu.Unlock()
}
