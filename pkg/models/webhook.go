package models

// WebhookPayload is the JSON body the Graph API posts to the webhook
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time,omitempty"`
	Changes []Change `json:"changes"`
}

// Change is one notification. Field tells which part of Value is set:
// "messages" carries Messages and Statuses, "message_template_status_update"
// carries the template fields.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

const (
	FieldMessages             = "messages"
	FieldTemplateStatusUpdate = "message_template_status_update"
)

type Value struct {
	MessagingProduct string `json:"messaging_product,omitempty"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []InboundMessage `json:"messages,omitempty"`
	Statuses []Status         `json:"statuses,omitempty"`

	Event                   string `json:"event,omitempty"`
	MessageTemplateID       int64  `json:"message_template_id,omitempty"`
	MessageTemplateName     string `json:"message_template_name,omitempty"`
	MessageTemplateLanguage string `json:"message_template_language,omitempty"`
	Reason                  string `json:"reason,omitempty"`
}

type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image       *MediaMessage       `json:"image,omitempty"`
	Video       *MediaMessage       `json:"video,omitempty"`
	Document    *MediaMessage       `json:"document,omitempty"`
	Button      *TemplateButton     `json:"button,omitempty"` // quick reply on a template
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
}

// Status reports the delivery state of an outbound message
type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"` // sent, delivered, read, failed
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type TemplateButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type InteractiveMessage struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Content flattens an inbound message into a single display string
func (m InboundMessage) Content() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Image != nil:
		return media("image", m.Image.ID, m.Image.Caption)
	case m.Video != nil:
		return media("video", m.Video.ID, m.Video.Caption)
	case m.Document != nil:
		return media("document", m.Document.ID, m.Document.Filename)
	}
	return "[" + m.Type + "]"
}

func media(kind, id, label string) string {
	s := "[" + kind + "]:" + id
	if label != "" {
		s += ":" + label
	}
	return s
}
