package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/identity"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	adminUsersPath        = "/auth/v1/admin/users"
	defaultLookupPageSize = 200
	defaultLookupMaxPages = 50
	maxErrorBodyBytes     = 64 << 10
)

// Config は GoTrue 管理 API への接続設定です。
type Config struct {
	URL        string
	ServiceKey string
	// CreateTimeout はアカウント作成呼び出しにのみ適用されます。0 は無制限です。
	CreateTimeout time.Duration
	// RequestTimeout は HTTP クライアント全体の上限です。0 は無制限です。
	RequestTimeout time.Duration
	LookupPageSize int
	LookupMaxPages int
}

// Client は identity.Directory を GoTrue 互換の管理 REST API で実装します。
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	createTTL  time.Duration
	pageSize   int
	maxPages   int
	log        logrus.FieldLogger
}

var _ identity.Directory = (*Client)(nil)

// Option は Client の設定を変更します。
type Option func(*Client)

// WithHTTPClient は利用する HTTP クライアントを差し替えます。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger はロガーを指定します。
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New は Client を生成します。URL とサービスキーは必須です。
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("gotrue: url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("gotrue: invalid url: %w", err)
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, errors.New("gotrue: service key is required")
	}

	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.RequestTimeout

	c := &Client{
		baseURL:    base,
		serviceKey: cfg.ServiceKey,
		httpClient: hc,
		createTTL:  cfg.CreateTimeout,
		pageSize:   cfg.LookupPageSize,
		maxPages:   cfg.LookupMaxPages,
		log:        logrus.StandardLogger(),
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultLookupPageSize
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultLookupMaxPages
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type userMetadata struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type userPayload struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UserMetadata     userMetadata `json:"user_metadata"`
}

func (p userPayload) toIdentity() *identity.Identity {
	return &identity.Identity{
		ID:             p.ID,
		Email:          p.Email,
		Name:           p.UserMetadata.Name,
		Role:           p.UserMetadata.Role,
		EmailConfirmed: p.EmailConfirmedAt != nil,
		CreatedAt:      p.CreatedAt,
	}
}

type createRequest struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	EmailConfirm bool         `json:"email_confirm"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type updateRequest struct {
	Email        *string        `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Create はアカウントを作成します。
func (c *Client) Create(ctx context.Context, in identity.CreateInput) (*identity.Identity, error) {
	if c.createTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.createTTL)
		defer cancel()
	}

	body := createRequest{
		Email:        in.Email,
		Password:     in.Password,
		EmailConfirm: in.EmailConfirm,
		UserMetadata: userMetadata{Name: in.Name, Role: in.Role},
	}

	var out userPayload
	if err := c.do(ctx, http.MethodPost, adminUsersPath, body, &out); err != nil {
		return nil, err
	}
	return out.toIdentity(), nil
}

// Get は ID でアカウントを取得します。
func (c *Client) Get(ctx context.Context, id string) (*identity.Identity, error) {
	var out userPayload
	if err := c.do(ctx, http.MethodGet, userPath(id), nil, &out); err != nil {
		return nil, err
	}
	return out.toIdentity(), nil
}

// Update はメールアドレスとメタデータを更新します。
func (c *Client) Update(ctx context.Context, in identity.UpdateInput) (*identity.Identity, error) {
	body := updateRequest{Email: in.Email}
	if in.Name != nil || in.Role != nil {
		body.UserMetadata = make(map[string]any, 2)
		if in.Name != nil {
			body.UserMetadata["name"] = *in.Name
		}
		if in.Role != nil {
			body.UserMetadata["role"] = *in.Role
		}
	}

	var out userPayload
	if err := c.do(ctx, http.MethodPut, userPath(in.ID), body, &out); err != nil {
		return nil, err
	}
	return out.toIdentity(), nil
}

// Delete はアカウントを削除します。
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, userPath(id), nil, nil)
}

// FindByEmail は一覧 API をページ送りしながらメールアドレスが一致するアカウントを探します。
func (c *Client) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	target := strings.ToLower(strings.TrimSpace(email))

	for page := 1; page <= c.maxPages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(c.pageSize))

		var out struct {
			Users []userPayload `json:"users"`
		}
		if err := c.do(ctx, http.MethodGet, adminUsersPath+"?"+query.Encode(), nil, &out); err != nil {
			return nil, err
		}

		for _, u := range out.Users {
			if strings.ToLower(strings.TrimSpace(u.Email)) == target {
				return u.toIdentity(), nil
			}
		}
		if len(out.Users) < c.pageSize {
			return nil, identity.ErrNotFound
		}
	}

	c.log.WithField("max_pages", c.maxPages).Warn("identity lookup stopped at page limit")
	return nil, identity.ErrNotFound
}

func userPath(id string) string {
	return adminUsersPath + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &identity.Failure{Kind: identity.FailureUnexpected, Message: "encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &identity.Failure{Kind: identity.FailureUnexpected, Message: "build request", Err: err}
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &identity.Failure{Kind: identity.FailureUnexpected, Status: resp.StatusCode, Message: "decode response", Err: err}
		}
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return classifyStatus(resp.StatusCode, body)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &identity.Failure{Kind: identity.FailureTimeout, Err: err}
	default:
		return &identity.Failure{Kind: identity.FailureNetwork, Err: err}
	}
}

func classifyStatus(status int, body []byte) error {
	message := errorMessage(body)

	switch {
	case status == http.StatusNotFound:
		return identity.ErrNotFound
	case isEmailConflict(status, body, message):
		return fmt.Errorf("%w: %s", identity.ErrEmailAlreadyExists, message)
	case status == http.StatusBadRequest:
		return &identity.Failure{Kind: identity.FailureBadRequest, Status: status, Message: message}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &identity.Failure{Kind: identity.FailureUnauthorized, Status: status, Message: message}
	case status == http.StatusUnprocessableEntity:
		return &identity.Failure{Kind: identity.FailureUnprocessable, Status: status, Message: message}
	case status >= http.StatusInternalServerError:
		return &identity.Failure{Kind: identity.FailureUnavailable, Status: status, Message: message}
	default:
		return &identity.Failure{Kind: identity.FailureUnexpected, Status: status, Message: message}
	}
}

func isEmailConflict(status int, body []byte, message string) bool {
	if status == http.StatusConflict {
		return true
	}
	if status != http.StatusUnprocessableEntity && status != http.StatusBadRequest {
		return false
	}
	if code := gjson.GetBytes(body, "error_code").String(); code == "email_exists" || code == "user_already_exists" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "already registered") || strings.Contains(lower, "already exists") || strings.Contains(lower, "already been registered")
}

// errorMessage は GoTrue の各バージョンで異なるエラーメッセージのフィールドを順に参照します。
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"msg", "message", "error_description", "error"} {
		if v := gjson.GetBytes(body, key); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
