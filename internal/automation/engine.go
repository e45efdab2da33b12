package automation

import (
	"context"
	"regexp"
	"strings"

	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	OpEquals     = "equals"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpRegex      = "regex"
)

var (
	optOutKeywords = []string{"stop", "unsubscribe", "opt out", "opt-out", "stop all"}
	optInKeywords  = []string{"start", "subscribe", "unstop"}
)

// Sender sends the automatic replies
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Engine reacts to inbound messages: opt-out keywords tag the contact so
// campaigns skip it, and the account's keyword rules reply or tag.
type Engine struct {
	db     *gorm.DB
	sender Sender
	log    logrus.FieldLogger
}

func NewEngine(db *gorm.DB, sender Sender, log logrus.FieldLogger) *Engine {
	return &Engine{db: db, sender: sender, log: log}
}

func isKeyword(message string, keywords []string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	for _, k := range keywords {
		if message == k {
			return true
		}
	}
	return false
}

// IsOptOut reports whether message asks to stop receiving campaigns
func IsOptOut(message string) bool { return isKeyword(message, optOutKeywords) }

// IsOptIn reports whether message asks to receive campaigns again
func IsOptIn(message string) bool { return isKeyword(message, optInKeywords) }

// Match evaluates one keyword condition against a message, case-insensitively
func Match(operator, keyword, message string) bool {
	message = strings.TrimSpace(message)
	if operator == OpRegex {
		re, err := regexp.Compile("(?i)" + keyword)
		if err != nil {
			return false
		}
		return re.MatchString(message)
	}

	message = strings.ToLower(message)
	keyword = strings.ToLower(keyword)
	switch operator {
	case OpEquals:
		return message == keyword
	case OpContains:
		return strings.Contains(message, keyword)
	case OpStartsWith:
		return strings.HasPrefix(message, keyword)
	}
	return false
}

// ValidateRule rejects rules that could never fire or do nothing
func ValidateRule(r models.AutomationRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Keyword) == "" {
		return errors.New("keyword is required")
	}
	switch r.Operator {
	case OpEquals, OpContains, OpStartsWith:
	case OpRegex:
		if _, err := regexp.Compile(r.Keyword); err != nil {
			return errors.Wrap(err, "keyword is not a valid regex")
		}
	default:
		return errors.Errorf("unknown operator %q", r.Operator)
	}
	if strings.TrimSpace(r.Reply) == "" && strings.TrimSpace(r.AddTag) == "" {
		return errors.New("rule needs a reply or a tag")
	}
	if strings.Contains(r.AddTag, ",") {
		return errors.New("tag must not contain a comma")
	}
	return nil
}

// Process handles one inbound message. Opt-in and opt-out keywords win over
// rules; otherwise the highest priority matching rule fires, at most one.
func (e *Engine) Process(ctx context.Context, accountID, from, content string) error {
	if accountID == "" {
		return nil
	}
	from = templateutil.NormalizePhone(from)
	log := e.log.WithFields(logrus.Fields{"account": accountID, "from": from})
	db := e.db.WithContext(ctx)

	switch {
	case IsOptOut(content):
		log.Info("contact opted out")
		return e.setTag(db, accountID, from, models.TagOptedOut, true)
	case IsOptIn(content):
		log.Info("contact opted in")
		return e.setTag(db, accountID, from, models.TagOptedOut, false)
	}

	var rules []models.AutomationRule
	err := db.Where("account_id = ? AND enabled = ?", accountID, true).
		Order("priority desc, id").
		Find(&rules).Error
	if err != nil {
		return errors.Wrap(err, "load automation rules")
	}

	for _, rule := range rules {
		if !Match(rule.Operator, rule.Keyword, content) {
			continue
		}
		log.WithField("rule", rule.Name).Info("automation rule matched")
		return e.apply(ctx, db, accountID, from, content, rule)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, db *gorm.DB, accountID, from, content string, rule models.AutomationRule) error {
	if rule.AddTag != "" {
		if err := e.setTag(db, accountID, from, rule.AddTag, true); err != nil {
			return err
		}
	}
	if rule.Reply == "" {
		return nil
	}

	var contact models.Contact
	name := from
	if err := db.Where("account_id = ? AND phone = ?", accountID, from).First(&contact).Error; err == nil && contact.FullName() != "" {
		name = contact.FullName()
	}
	reply := strings.NewReplacer("{{name}}", name, "{{message}}", content).Replace(rule.Reply)

	msg := models.Message{
		AccountID: accountID,
		Channel:   campaign.ChannelWhatsApp,
		Recipient: from,
		Content:   reply,
		Status:    "sent",
	}
	id, sendErr := e.sender.SendText(ctx, from, reply)
	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
	}
	msg.ProviderID = id
	if err := db.Create(&msg).Error; err != nil {
		return errors.Wrap(err, "record automatic reply")
	}
	return errors.Wrapf(sendErr, "reply of rule %q", rule.Name)
}

// setTag adds or removes tag on the contact with phone, creating the
// contact when it does not exist yet.
func (e *Engine) setTag(db *gorm.DB, accountID, phone, tag string, present bool) error {
	var contact models.Contact
	err := db.Where("account_id = ? AND phone = ?", accountID, phone).First(&contact).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !present {
			return nil
		}
		contact = models.Contact{AccountID: accountID, Phone: phone, Tags: tag}
		return errors.Wrap(db.Create(&contact).Error, "create contact")
	case err != nil:
		return errors.Wrap(err, "load contact")
	}

	if campaign.HasTag(contact, tag) == present {
		return nil
	}

	var tags []string
	for _, t := range strings.Split(contact.Tags, ",") {
		t = strings.TrimSpace(t)
		if t == "" || strings.EqualFold(t, tag) {
			continue
		}
		tags = append(tags, t)
	}
	if present {
		tags = append(tags, tag)
	}
	return errors.Wrap(db.Model(&contact).Update("tags", strings.Join(tags, ",")).Error, "update contact tags")
}
