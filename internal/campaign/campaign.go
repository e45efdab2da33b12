package campaign

import (
	"encoding/json"
	"strconv"
	"strings"

	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

var (
	ErrNotFound      = errors.New("campaign not found")
	ErrNoRecipients  = errors.New("campaign has no recipients")
	ErrNoTransport   = errors.New("channel has no transport configured")
	ErrAlreadyActive = errors.New("campaign already dispatched")
)

// RequestError reports why a campaign request was rejected
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

// Request is what the dashboard submits to create a campaign
type Request struct {
	Name         string               `json:"name" binding:"required"`
	Channel      string               `json:"channel" binding:"required"`
	TemplateName string               `json:"template_name"`
	Language     string               `json:"language"`
	Text         string               `json:"text"`
	Mappings     templateutil.Mapping `json:"mappings"`
	Tag          string               `json:"tag"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	switch r.Channel {
	case ChannelWhatsApp:
		if r.TemplateName == "" && r.Text == "" {
			return errors.New("whatsapp campaigns need a template or a text")
		}
		if r.TemplateName != "" && r.Language == "" {
			return errors.New("template language is required")
		}
	case ChannelSMS:
		if strings.TrimSpace(r.Text) == "" {
			return errors.New("sms campaigns need a text")
		}
	default:
		return errors.Errorf("unknown channel %q", r.Channel)
	}
	for key, name := range r.Mappings {
		if n, err := strconv.Atoi(key); err != nil || n < 1 {
			return errors.Errorf("mapping key %q is not a placeholder index", key)
		}
		if name != "" && !templateutil.IsKnownVariable(name) {
			return errors.Errorf("mapping {{%s}} uses unknown variable %q", key, name)
		}
	}
	return nil
}

// Create validates req and stores a pending campaign
func Create(db *gorm.DB, accountID string, req Request) (*models.Campaign, error) {
	if err := req.validate(); err != nil {
		return nil, &RequestError{Err: err}
	}
	mappings := req.Mappings
	if mappings == nil {
		mappings = templateutil.Mapping{}
	}
	raw, err := json.Marshal(mappings)
	if err != nil {
		return nil, errors.Wrap(err, "encode mappings")
	}

	c := &models.Campaign{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Name:         strings.TrimSpace(req.Name),
		Channel:      req.Channel,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		Text:         req.Text,
		Mappings:     string(raw),
		Tag:          strings.TrimSpace(req.Tag),
		Status:       models.CampaignPending,
	}
	if err := db.Create(c).Error; err != nil {
		return nil, errors.Wrap(err, "create campaign")
	}
	return c, nil
}

// Get loads a campaign scoped to its account
func Get(db *gorm.DB, accountID, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := db.Where("id = ? AND account_id = ?", id, accountID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load campaign")
	}
	return &c, nil
}

// Contacts returns the account contacts carrying tag. An empty tag selects
// every contact.
func Contacts(db *gorm.DB, accountID, tag string) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := db.Where("account_id = ?", accountID).Order("id").Find(&contacts).Error; err != nil {
		return nil, errors.Wrap(err, "load contacts")
	}
	if tag == "" {
		return contacts, nil
	}
	out := contacts[:0]
	for _, c := range contacts {
		if HasTag(c, tag) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Recipients returns the contacts a campaign targets: Contacts without the
// ones that opted out.
func Recipients(db *gorm.DB, accountID, tag string) ([]models.Contact, error) {
	contacts, err := Contacts(db, accountID, tag)
	if err != nil {
		return nil, err
	}
	out := contacts[:0]
	for _, c := range contacts {
		if !HasTag(c, models.TagOptedOut) {
			out = append(out, c)
		}
	}
	return out, nil
}

// HasTag reports whether the comma separated tag list of c contains tag
func HasTag(c models.Contact, tag string) bool {
	for _, t := range strings.Split(c.Tags, ",") {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Parameters resolves the mapping for one contact, ordered by placeholder index
func Parameters(m templateutil.Mapping, contact models.Contact) []string {
	n := 0
	for key := range m {
		if i, err := strconv.Atoi(key); err == nil && i > n {
			n = i
		}
	}
	values := make([]string, n)
	for i := range values {
		values[i] = contact.Field(m[strconv.Itoa(i+1)])
	}
	return values
}

func decodeMappings(raw string) (templateutil.Mapping, error) {
	m := templateutil.Mapping{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Wrap(err, "decode campaign mappings")
	}
	return m, nil
}
