package models

import (
	"time"
)

// Contact is an addressable recipient of campaigns
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"type:varchar(64);uniqueIndex:idx_contact_phone" json:"account_id"`
	Phone     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_contact_phone" json:"phone"`
	FirstName string    `gorm:"type:varchar(255)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(255)" json:"last_name"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Company   string    `gorm:"type:varchar(255)" json:"company"`
	City      string    `gorm:"type:varchar(255)" json:"city"`
	Country   string    `gorm:"type:varchar(255)" json:"country"`
	Tags      string    `gorm:"type:text" json:"tags"` // Comma separated tags
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TagOptedOut marks contacts that asked not to receive campaigns
const TagOptedOut = "opted-out"

func (Contact) TableName() string {
	return "contacts"
}

// FullName joins first and last name
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Field resolves a template catalogue variable against the contact
func (c Contact) Field(name string) string {
	switch name {
	case "firstName":
		return c.FirstName
	case "lastName":
		return c.LastName
	case "fullName":
		return c.FullName()
	case "phone":
		return c.Phone
	case "email":
		return c.Email
	case "company":
		return c.Company
	case "city":
		return c.City
	case "country":
		return c.Country
	}
	return ""
}

// Template is a WhatsApp message template as known locally. Accounts
// sharing a business account each keep their own row per provider id.
type Template struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	AccountID  string    `gorm:"primaryKey;type:varchar(64)" json:"account_id"`
	Name       string    `gorm:"type:varchar(255);index" json:"name"`
	Language   string    `gorm:"type:varchar(50)" json:"language"`
	Category   string    `gorm:"type:varchar(100)" json:"category"`
	Status     string    `gorm:"type:varchar(50)" json:"status"`
	Reason     string    `gorm:"type:text" json:"reason,omitempty"`
	Components string    `gorm:"type:text" json:"components"` // JSON components
	Editor     string    `gorm:"type:text" json:"editor"`     // JSON editor state incl. mappings
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

const (
	CampaignPending = "pending"
	CampaignRunning = "running"
	CampaignDone    = "completed"
	CampaignFailed  = "failed"
)

// Campaign is one send of a template or text to a set of contacts
type Campaign struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID    string     `gorm:"type:varchar(64);index" json:"account_id"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	Channel      string     `gorm:"type:varchar(20);not null" json:"channel"`
	TemplateName string     `gorm:"type:varchar(255)" json:"template_name"`
	Language     string     `gorm:"type:varchar(50)" json:"language"`
	Text         string     `gorm:"type:text" json:"text"`
	Mappings     string     `gorm:"type:text" json:"mappings"` // JSON index -> variable
	Tag          string     `gorm:"type:varchar(255)" json:"tag"`
	Status       string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Total        int        `json:"total"`
	Sent         int        `json:"sent"`
	Failed       int        `json:"failed"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Message is a single outbound delivery attempt
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  string    `gorm:"type:varchar(64);index" json:"account_id"`
	CampaignID string    `gorm:"type:varchar(36);index" json:"campaign_id"`
	ProviderID string    `gorm:"type:varchar(255);index" json:"provider_id"`
	Channel    string    `gorm:"type:varchar(20)" json:"channel"`
	Recipient  string    `gorm:"type:varchar(32);index" json:"recipient"`
	Content    string    `gorm:"type:text" json:"content"`
	Status     string    `gorm:"type:varchar(20)" json:"status"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Media is a sample file uploaded for a template header
type Media struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  string    `gorm:"type:varchar(64);index" json:"account_id"`
	MediaID    string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"media_id"`
	Filename   string    `gorm:"type:varchar(255)" json:"filename"`
	MimeType   string    `gorm:"type:varchar(100)" json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

func (Media) TableName() string {
	return "media"
}

// ContactImport tracks progress of a CSV contact import
type ContactImport struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID string    `gorm:"type:varchar(64);index" json:"account_id"`
	Total     int       `json:"total"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Status    string    `gorm:"type:varchar(20)" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ContactImport) TableName() string {
	return "contact_imports"
}

// ChatWidget stores the chat widget builder configuration of an account
type ChatWidget struct {
	AccountID   string    `gorm:"primaryKey;type:varchar(64)" json:"account_id"`
	PhoneNumber string    `gorm:"type:varchar(32)" json:"phone_number"`
	BrandName   string    `gorm:"type:varchar(255)" json:"brand_name"`
	Greeting    string    `gorm:"type:text" json:"greeting"`
	ButtonText  string    `gorm:"type:varchar(100)" json:"button_text"`
	Position    string    `gorm:"type:varchar(10)" json:"position"`
	Color       string    `gorm:"type:varchar(7)" json:"color"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatWidget) TableName() string {
	return "chat_widgets"
}

// SystemSetting is a key/value channel setting editable from the dashboard
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// AutomationRule answers or tags contacts whose inbound message matches a keyword
type AutomationRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"type:varchar(64);index" json:"account_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Enabled   bool      `json:"enabled"`
	Priority  int       `json:"priority"`
	Operator  string    `gorm:"type:varchar(20)" json:"operator"` // equals, contains, starts_with, regex
	Keyword   string    `gorm:"type:varchar(255)" json:"keyword"`
	Reply     string    `gorm:"type:text" json:"reply"`
	AddTag    string    `gorm:"type:varchar(100)" json:"add_tag"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutomationRule) TableName() string {
	return "automation_rules"
}
