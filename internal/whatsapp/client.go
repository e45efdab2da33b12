package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campaign-dashboard/internal/config"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const UserAgent = "CampaignDashboard/1.0"

var (
	ErrUnauthorized  = errors.New("whatsapp: access token rejected")
	ErrNotConfigured = errors.New("whatsapp: channel not configured")
)

// APIError is returned for provider responses with status >= 400
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp API error: %d - %s", e.Status, e.Body)
}

type Client struct {
	Config *config.Config

	http *retryablehttp.Client
	log  logrus.FieldLogger
}

type ClientOption func(c *Client)

// SetRetryWait overrides the wait bounds between retries
func SetRetryWait(min, max time.Duration) ClientOption {
	return func(c *Client) {
		c.http.RetryWaitMin = min
		c.http.RetryWaitMax = max
	}
}

// SetRetryMax overrides the number of retries
func SetRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

func NewClient(cfg *config.Config, log logrus.FieldLogger, options ...ClientOption) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.Logger = leveledLogger{log}
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{Config: cfg, http: hc, log: log}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) endpoint(parts ...string) string {
	base := strings.TrimRight(c.Config.GraphBaseURL, "/")
	return base + "/" + c.Config.GraphVersion + "/" + strings.Join(parts, "/")
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string) ([]byte, error) {
	var reqBody interface{}
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reqBody = jsonData
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return respBody, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return respBody, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// --- Messaging ---

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendRawMessage sends msg and returns the provider message id
func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) (string, error) {
	if c.Config.PhoneNumberID == "" {
		return "", ErrNotConfigured
	}
	if msg.MessagingProduct == "" {
		msg.MessagingProduct = "whatsapp"
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(c.Config.PhoneNumberID, "messages"), msg, nil)
	if err != nil {
		return "", err
	}

	var out sendResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", errors.Wrap(err, "decode send response")
	}
	if len(out.Messages) == 0 {
		return "", errors.New("whatsapp: send response carried no message id")
	}

	c.log.WithFields(logrus.Fields{"to": msg.To, "type": msg.Type, "id": out.Messages[0].ID}).Debug("message sent")
	return out.Messages[0].ID, nil
}

func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "text",
		Text: &TextObj{Body: body},
	})
}

func (c *Client) SendTemplate(ctx context.Context, to, templateName, languageCode string, components []ComponentObj) (string, error) {
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "template",
		Template: &TemplateObj{
			Name:       templateName,
			Language:   LanguageObj{Code: languageCode},
			Components: components,
		},
	})
}

// --- Template management ---

// ProviderTemplate is a template as listed by the Graph API
type ProviderTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Language   string          `json:"language"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	Components json.RawMessage `json:"components"`
}

type listTemplatesResponse struct {
	Data   []ProviderTemplate `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// ListTemplates fetches every page of the account's templates
func (c *Client) ListTemplates(ctx context.Context) ([]ProviderTemplate, error) {
	if c.Config.WhatsAppBusinessAccountID == "" {
		return nil, ErrNotConfigured
	}

	var templates []ProviderTemplate
	next := c.endpoint(c.Config.WhatsAppBusinessAccountID, "message_templates") + "?limit=100"
	for next != "" {
		resp, err := c.sendRequest(ctx, http.MethodGet, next, nil, nil)
		if err != nil {
			return nil, err
		}
		var page listTemplatesResponse
		if err := json.Unmarshal(resp, &page); err != nil {
			return nil, errors.Wrap(err, "decode templates page")
		}
		templates = append(templates, page.Data...)
		next = page.Paging.Next
	}
	return templates, nil
}

// CreateTemplateResponse is the provider acknowledgement of a submitted template
type CreateTemplateResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

func (c *Client) CreateTemplate(ctx context.Context, tmpl TemplateRequest) (*CreateTemplateResponse, error) {
	if c.Config.WhatsAppBusinessAccountID == "" {
		return nil, ErrNotConfigured
	}

	resp, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(c.Config.WhatsAppBusinessAccountID, "message_templates"), tmpl, nil)
	if err != nil {
		return nil, err
	}

	var out CreateTemplateResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, errors.Wrap(err, "decode create template response")
	}
	return &out, nil
}

func (c *Client) DeleteTemplate(ctx context.Context, templateName string) error {
	if c.Config.WhatsAppBusinessAccountID == "" {
		return ErrNotConfigured
	}
	endpoint := c.endpoint(c.Config.WhatsAppBusinessAccountID, "message_templates") + "?name=" + url.QueryEscape(templateName)
	_, err := c.sendRequest(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) fields(kv []interface{}) logrus.FieldLogger {
	entry := l.log
	for i := 0; i+1 < len(kv); i += 2 {
		entry = entry.WithField(fmt.Sprint(kv[i]), kv[i+1])
	}
	return entry
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
