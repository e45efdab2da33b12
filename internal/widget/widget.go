package widget

import (
	"bytes"
	"html"
	"html/template"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
)

const (
	PositionLeft  = "left"
	PositionRight = "right"

	MaxGreetingLength = 500
	MaxBrandLength    = 100
	MaxButtonLength   = 40
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Config is the chat widget builder state
type Config struct {
	PhoneNumber string `json:"phone_number"`
	BrandName   string `json:"brand_name"`
	Greeting    string `json:"greeting"`
	ButtonText  string `json:"button_text"`
	Position    string `json:"position"`
	Color       string `json:"color"`
}

// Default is what a new account starts with
func Default() Config {
	return Config{
		ButtonText: "Chat with us",
		Position:   PositionRight,
		Color:      "#25D366",
	}
}

// FieldErrors maps a config field to the reason it was rejected
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return "invalid widget: " + strings.Join(parts, ", ")
}

// Validate checks the config is complete enough to render a snippet
func (c Config) Validate() error {
	problems := FieldErrors{}
	if !templateutil.IsCompletePhoneNumber(c.PhoneNumber) {
		problems["phone_number"] = "must be an international number"
	}
	if !colorPattern.MatchString(c.Color) {
		problems["color"] = "must be a #rrggbb color"
	}
	if c.Position != PositionLeft && c.Position != PositionRight {
		problems["position"] = "must be left or right"
	}
	if utf8.RuneCountInString(c.Greeting) > MaxGreetingLength {
		problems["greeting"] = "is too long"
	}
	if utf8.RuneCountInString(c.BrandName) > MaxBrandLength {
		problems["brand_name"] = "is too long"
	}
	if strings.TrimSpace(c.ButtonText) == "" {
		problems["button_text"] = "is required"
	} else if utf8.RuneCountInString(c.ButtonText) > MaxButtonLength {
		problems["button_text"] = "is too long"
	}
	if len(problems) > 0 {
		return problems
	}
	return nil
}

// Sanitized strips markup from every free-text field
func (c Config) Sanitized() Config {
	c.BrandName = plainText(c.BrandName)
	c.Greeting = plainText(c.Greeting)
	c.ButtonText = plainText(c.ButtonText)
	c.PhoneNumber = templateutil.NormalizePhone(c.PhoneNumber)
	c.Color = strings.ToLower(c.Color)
	return c
}

// Link is the wa.me URL the widget opens, with the greeting prefilled
func (c Config) Link() string {
	digits := strings.TrimPrefix(templateutil.NormalizePhone(c.PhoneNumber), "+")
	link := "https://wa.me/" + digits
	if g := strings.TrimSpace(c.Greeting); g != "" {
		link += "?text=" + strings.ReplaceAll(url.QueryEscape(g), "+", "%20")
	}
	return link
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// plainText removes any markup. The result is unescaped again since the
// snippet template does its own escaping.
func plainText(s string) string {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

var snippetTemplate = template.Must(template.New("snippet").Parse(`<!-- WhatsApp chat widget -->
<div id="wa-chat-widget" style="position:fixed;bottom:20px;{{.Position}}:20px;z-index:9999">
  <a href="{{.Link}}" target="_blank" rel="noopener noreferrer" title="{{.BrandName}}" style="display:inline-block;padding:12px 18px;border-radius:24px;color:#fff;text-decoration:none;font-family:sans-serif;background:{{.Color}}">{{.ButtonText}}</a>
</div>
<script>
  window.waChatWidget = {brand: {{.BrandName}}, greeting: {{.Greeting}}};
</script>
`))

// Snippet renders the embeddable HTML for the widget
func (c Config) Snippet() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	clean := c.Sanitized()

	data := struct {
		Config
		Link string
	}{Config: clean, Link: clean.Link()}

	var buf bytes.Buffer
	if err := snippetTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render widget snippet")
	}
	return buf.String(), nil
}

func FromModel(m models.ChatWidget) Config {
	return Config{
		PhoneNumber: m.PhoneNumber,
		BrandName:   m.BrandName,
		Greeting:    m.Greeting,
		ButtonText:  m.ButtonText,
		Position:    m.Position,
		Color:       m.Color,
	}
}

func (c Config) Model(accountID string) models.ChatWidget {
	return models.ChatWidget{
		AccountID:   accountID,
		PhoneNumber: c.PhoneNumber,
		BrandName:   c.BrandName,
		Greeting:    c.Greeting,
		ButtonText:  c.ButtonText,
		Position:    c.Position,
		Color:       c.Color,
	}
}
