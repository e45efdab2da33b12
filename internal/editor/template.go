package editor

import (
	"encoding/json"
	"strconv"

	"campaign-dashboard/internal/templateutil"
	"campaign-dashboard/internal/whatsapp"

	"github.com/pkg/errors"
)

type HeaderFormat string

const (
	HeaderNone     HeaderFormat = ""
	HeaderText     HeaderFormat = "TEXT"
	HeaderImage    HeaderFormat = "IMAGE"
	HeaderVideo    HeaderFormat = "VIDEO"
	HeaderDocument HeaderFormat = "DOCUMENT"
	HeaderLocation HeaderFormat = "LOCATION"
)

// IsMedia reports whether the header carries an uploaded sample file
func (f HeaderFormat) IsMedia() bool {
	return f == HeaderImage || f == HeaderVideo || f == HeaderDocument
}

func (f HeaderFormat) valid() bool {
	switch f {
	case HeaderNone, HeaderText, HeaderImage, HeaderVideo, HeaderDocument, HeaderLocation:
		return true
	}
	return false
}

type ButtonType string

const (
	ButtonQuickReply ButtonType = "QUICK_REPLY"
	ButtonURL        ButtonType = "URL"
	ButtonPhone      ButtonType = "PHONE_NUMBER"
	ButtonCopyCode   ButtonType = "COPY_CODE"
)

// IsCallToAction reports whether the button belongs to the call-to-action group
func (t ButtonType) IsCallToAction() bool {
	return t != ButtonQuickReply
}

const (
	CategoryMarketing      = "MARKETING"
	CategoryUtility        = "UTILITY"
	CategoryAuthentication = "AUTHENTICATION"
)

type Header struct {
	Format        HeaderFormat         `json:"format"`
	Text          string               `json:"text"`
	Mappings      templateutil.Mapping `json:"mappings"`
	Substitutions []string             `json:"substitutions"`
	MediaHandle   string               `json:"mediaHandle"`
	MediaName     string               `json:"mediaName"`
}

type Body struct {
	Text          string               `json:"text"`
	Mappings      templateutil.Mapping `json:"mappings"`
	Substitutions []string             `json:"substitutions"`
}

type Footer struct {
	Text string `json:"text"`
}

type Button struct {
	Type          ButtonType           `json:"type"`
	Text          string               `json:"text"`
	URL           string               `json:"url,omitempty"`
	PhoneNumber   string               `json:"phoneNumber,omitempty"`
	Mappings      templateutil.Mapping `json:"mappings"`
	Substitutions []string             `json:"substitutions"`
}

// Template is the editable form of a WhatsApp template
type Template struct {
	Name     string   `json:"name"`
	Language string   `json:"language"`
	Category string   `json:"category"`
	Header   Header   `json:"header"`
	Body     Body     `json:"body"`
	Footer   Footer   `json:"footer"`
	Buttons  []Button `json:"buttons"`
}

func cloneMapping(m templateutil.Mapping) templateutil.Mapping {
	out := make(templateutil.Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Clone returns a copy sharing no maps or slices with t
func (t Template) Clone() Template {
	out := t
	out.Header.Mappings = cloneMapping(t.Header.Mappings)
	out.Header.Substitutions = cloneStrings(t.Header.Substitutions)
	out.Body.Mappings = cloneMapping(t.Body.Mappings)
	out.Body.Substitutions = cloneStrings(t.Body.Substitutions)
	out.Buttons = make([]Button, len(t.Buttons))
	for i, b := range t.Buttons {
		b.Mappings = cloneMapping(b.Mappings)
		b.Substitutions = cloneStrings(b.Substitutions)
		out.Buttons[i] = b
	}
	return out
}

// BodyVariables returns the body mapping as an ordered list of variable names
func (t Template) BodyVariables() []string {
	return orderedMapping(t.Body.Mappings)
}

// HeaderVariables returns the header mapping as an ordered list of variable names
func (t Template) HeaderVariables() []string {
	return orderedMapping(t.Header.Mappings)
}

func orderedMapping(m templateutil.Mapping) []string {
	out := make([]string, len(m))
	for i := range out {
		out[i] = m[strconv.Itoa(i+1)]
	}
	return out
}

// ProviderRequest converts the template into a create-template request
func (t Template) ProviderRequest() whatsapp.TemplateRequest {
	req := whatsapp.TemplateRequest{
		Name:     t.Name,
		Language: t.Language,
		Category: t.Category,
	}

	switch {
	case t.Header.Format == HeaderText:
		c := whatsapp.TemplateComponent{Type: "HEADER", Format: string(HeaderText), Text: t.Header.Text}
		if len(t.Header.Substitutions) > 0 {
			c.Example = &whatsapp.TemplateExample{HeaderText: cloneStrings(t.Header.Substitutions)}
		}
		req.Components = append(req.Components, c)
	case t.Header.Format.IsMedia():
		c := whatsapp.TemplateComponent{Type: "HEADER", Format: string(t.Header.Format)}
		if t.Header.MediaHandle != "" {
			c.Example = &whatsapp.TemplateExample{HeaderHandle: []string{t.Header.MediaHandle}}
		}
		req.Components = append(req.Components, c)
	case t.Header.Format == HeaderLocation:
		req.Components = append(req.Components, whatsapp.TemplateComponent{Type: "HEADER", Format: string(HeaderLocation)})
	}

	body := whatsapp.TemplateComponent{Type: "BODY", Text: t.Body.Text}
	if len(t.Body.Substitutions) > 0 {
		body.Example = &whatsapp.TemplateExample{BodyText: [][]string{cloneStrings(t.Body.Substitutions)}}
	}
	req.Components = append(req.Components, body)

	if t.Footer.Text != "" {
		req.Components = append(req.Components, whatsapp.TemplateComponent{Type: "FOOTER", Text: t.Footer.Text})
	}

	if len(t.Buttons) > 0 {
		buttons := make([]whatsapp.TemplateButton, len(t.Buttons))
		for i, b := range t.Buttons {
			buttons[i] = whatsapp.TemplateButton{
				Type:        string(b.Type),
				Text:        b.Text,
				URL:         b.URL,
				PhoneNumber: b.PhoneNumber,
			}
			if len(b.Substitutions) > 0 {
				buttons[i].Example = cloneStrings(b.Substitutions)
			}
		}
		req.Components = append(req.Components, whatsapp.TemplateComponent{Type: "BUTTONS", Buttons: buttons})
	}

	return req
}

// FromProvider rebuilds an editable template from provider components.
// Mappings start empty; examples become substitutions.
func FromProvider(name, language, category string, rawComponents json.RawMessage) (Template, error) {
	t := blank()
	t.Name, t.Language, t.Category = name, language, category

	if len(rawComponents) == 0 {
		return t, nil
	}
	var components []whatsapp.TemplateComponent
	if err := json.Unmarshal(rawComponents, &components); err != nil {
		return t, errors.Wrap(err, "decode template components")
	}

	for _, c := range components {
		switch c.Type {
		case "HEADER":
			t.Header.Format = HeaderFormat(c.Format)
			t.Header.Text = c.Text
			n := templateutil.CountPlaceholders(c.Text)
			var examples []string
			if c.Example != nil {
				examples = c.Example.HeaderText
				if len(c.Example.HeaderHandle) > 0 {
					t.Header.MediaHandle = c.Example.HeaderHandle[0]
				}
			}
			t.Header.Mappings = emptyMapping(n)
			t.Header.Substitutions = fit(examples, n)
		case "BODY":
			t.Body.Text = c.Text
			n := templateutil.CountPlaceholders(c.Text)
			var examples []string
			if c.Example != nil && len(c.Example.BodyText) > 0 {
				examples = c.Example.BodyText[0]
			}
			t.Body.Mappings = emptyMapping(n)
			t.Body.Substitutions = fit(examples, n)
		case "FOOTER":
			t.Footer.Text = c.Text
		case "BUTTONS":
			for _, b := range c.Buttons {
				n := templateutil.CountPlaceholders(b.URL)
				t.Buttons = append(t.Buttons, Button{
					Type:          ButtonType(b.Type),
					Text:          b.Text,
					URL:           b.URL,
					PhoneNumber:   b.PhoneNumber,
					Mappings:      emptyMapping(n),
					Substitutions: fit(b.Example, n),
				})
			}
		}
	}
	return t, nil
}

func emptyMapping(n int) templateutil.Mapping {
	m := make(templateutil.Mapping, n)
	for i := 1; i <= n; i++ {
		m[strconv.Itoa(i)] = ""
	}
	return m
}

func fit(values []string, n int) []string {
	out := make([]string, n)
	copy(out, values)
	return out
}

func blank() Template {
	return Template{
		Language: "en_US",
		Category: CategoryMarketing,
		Header:   Header{Mappings: templateutil.Mapping{}, Substitutions: []string{}},
		Body:     Body{Mappings: templateutil.Mapping{}, Substitutions: []string{}},
		Buttons:  []Button{},
	}
}
