package campaign

import (
	"context"
	"sync"
	"testing"
	"time"

	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"
	"campaign-dashboard/internal/whatsapp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const badNumber = "+15005550001"

type sentTemplate struct {
	to     string
	name   string
	params []string
}

type fakeWhatsApp struct {
	mu        sync.Mutex
	templates []sentTemplate
	texts     map[string]string
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.texts == nil {
		f.texts = map[string]string{}
	}
	f.texts[to] = body
	return "wamid." + to, nil
}

func (f *fakeWhatsApp) SendTemplate(_ context.Context, to, name, _ string, components []whatsapp.ComponentObj) (string, error) {
	if to == badNumber {
		return "", errors.New("recipient unreachable")
	}
	var params []string
	for _, c := range components {
		for _, p := range c.Parameters {
			params = append(params, p.Text)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates = append(f.templates, sentTemplate{to: to, name: name, params: params})
	return "wamid." + to, nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent map[string]string
}

func (f *fakeSMS) Send(_ context.Context, number, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[number] = message
	return nil
}

type DispatcherSuite struct {
	suite.Suite
	db  *gorm.DB
	wa  *fakeWhatsApp
	sms *fakeSMS
	d   *Dispatcher
}

func (s *DispatcherSuite) SetupTest() {
	db, err := database.OpenMemory(s.T().Name())
	s.Require().NoError(err)
	s.db = db
	s.wa = &fakeWhatsApp{}
	s.sms = &fakeSMS{}

	log, _ := test.NewNullLogger()
	s.d = NewDispatcher(db, s.wa, log, SetWorkerCount(3), SetSMSTransport(s.sms))

	contacts := []models.Contact{
		{AccountID: "acc-1", Phone: "+15550000001", FirstName: "Ann", Company: "Acme", Tags: "vip, eu"},
		{AccountID: "acc-1", Phone: "+15550000002", FirstName: "Bob", Tags: "us"},
		{AccountID: "acc-1", Phone: badNumber, FirstName: "Eve", Tags: "vip"},
		{AccountID: "acc-2", Phone: "+15550000009", FirstName: "Zed"},
	}
	s.Require().NoError(db.Create(&contacts).Error)
}

func (s *DispatcherSuite) TearDownTest() {
	s.d.Shutdown()
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *DispatcherSuite) TestTemplateCampaign() {
	c, err := Create(s.db, "acc-1", Request{
		Name:         "Launch",
		Channel:      ChannelWhatsApp,
		TemplateName: "launch",
		Language:     "en_US",
		Mappings:     templateutil.Mapping{"1": "firstName", "2": "company"},
	})
	s.Require().NoError(err)

	stats, err := s.d.Run(context.Background(), c)
	s.Require().NoError(err)
	s.Equal(Stats{Total: 3, Sent: 2, Failed: 1}, stats)

	s.ElementsMatch([]sentTemplate{
		{to: "+15550000001", name: "launch", params: []string{"Ann", "Acme"}},
		{to: "+15550000002", name: "launch", params: []string{"Bob", ""}},
	}, s.wa.templates)

	stored, err := Get(s.db, "acc-1", c.ID)
	s.Require().NoError(err)
	s.Equal(models.CampaignDone, stored.Status)
	s.Equal(3, stored.Total)
	s.Equal(2, stored.Sent)
	s.Equal(1, stored.Failed)
	s.NotNil(stored.FinishedAt)

	var failed []models.Message
	s.Require().NoError(s.db.Where("campaign_id = ? AND status = ?", c.ID, "failed").Find(&failed).Error)
	s.Require().Len(failed, 1)
	s.Equal(badNumber, failed[0].Recipient)
	s.Contains(failed[0].Error, "unreachable")
}

func (s *DispatcherSuite) TestSMSCampaignByTag() {
	c, err := Create(s.db, "acc-1", Request{
		Name:     "VIP",
		Channel:  ChannelSMS,
		Text:     "Hi {{1}}, thanks!",
		Mappings: templateutil.Mapping{"1": "firstName"},
		Tag:      "VIP",
	})
	s.Require().NoError(err)

	stats, err := s.d.Run(context.Background(), c)
	s.Require().NoError(err)
	s.Equal(Stats{Total: 2, Sent: 2}, stats)
	s.Equal(map[string]string{
		"+15550000001": "Hi Ann, thanks!",
		badNumber:      "Hi Eve, thanks!",
	}, s.sms.sent)
}

func (s *DispatcherSuite) TestWhatsAppTextCampaign() {
	c, err := Create(s.db, "acc-1", Request{Name: "Note", Channel: ChannelWhatsApp, Text: "Hello {{1}}", Mappings: templateutil.Mapping{"1": "firstName"}, Tag: "us"})
	s.Require().NoError(err)

	_, err = s.d.Run(context.Background(), c)
	s.Require().NoError(err)
	s.Equal(map[string]string{"+15550000002": "Hello Bob"}, s.wa.texts)
}

func (s *DispatcherSuite) TestNoRecipients() {
	c, err := Create(s.db, "acc-1", Request{Name: "Nobody", Channel: ChannelSMS, Text: "x", Tag: "missing"})
	s.Require().NoError(err)

	_, err = s.d.Run(context.Background(), c)
	s.ErrorIs(err, ErrNoRecipients)

	stored, err := Get(s.db, "acc-1", c.ID)
	s.Require().NoError(err)
	s.Equal(models.CampaignFailed, stored.Status)
}

func (s *DispatcherSuite) TestRunOnlyOnce() {
	c, err := Create(s.db, "acc-1", Request{Name: "Once", Channel: ChannelSMS, Text: "x"})
	s.Require().NoError(err)

	_, err = s.d.Run(context.Background(), c)
	s.Require().NoError(err)
	_, err = s.d.Run(context.Background(), c)
	s.ErrorIs(err, ErrAlreadyActive)
}

func (s *DispatcherSuite) TestStartNotifies() {
	var mu sync.Mutex
	var statuses []string
	log, _ := test.NewNullLogger()
	d := NewDispatcher(s.db, s.wa, log, SetSMSTransport(s.sms), SetNotifier(func(c models.Campaign) {
		mu.Lock()
		statuses = append(statuses, c.Status)
		mu.Unlock()
	}))

	c, err := Create(s.db, "acc-1", Request{Name: "Bg", Channel: ChannelSMS, Text: "x"})
	s.Require().NoError(err)
	s.Require().NoError(d.Start(c))
	d.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	s.Require().NotEmpty(statuses)
	s.Equal(models.CampaignRunning, statuses[0])
}

func (s *DispatcherSuite) TestStartLeavesCallerCampaignAlone() {
	c, err := Create(s.db, "acc-1", Request{Name: "Copy", Channel: ChannelSMS, Text: "x"})
	s.Require().NoError(err)
	s.Require().NoError(s.d.Start(c))

	s.Eventually(func() bool {
		stored, err := Get(s.db, "acc-1", c.ID)
		return err == nil && stored.Status == models.CampaignDone
	}, 2*time.Second, 10*time.Millisecond)

	s.Equal(models.CampaignPending, c.Status)
	s.Zero(c.Total)
	s.Nil(c.FinishedAt)
}

func (s *DispatcherSuite) TestGetScopedToAccount() {
	c, err := Create(s.db, "acc-1", Request{Name: "Mine", Channel: ChannelSMS, Text: "x"})
	s.Require().NoError(err)

	_, err = Get(s.db, "acc-2", c.ID)
	s.ErrorIs(err, ErrNotFound)
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"template", Request{Name: "a", Channel: ChannelWhatsApp, TemplateName: "t", Language: "en"}, true},
		{"whatsapp text", Request{Name: "a", Channel: ChannelWhatsApp, Text: "hi"}, true},
		{"sms", Request{Name: "a", Channel: ChannelSMS, Text: "hi"}, true},
		{"no name", Request{Channel: ChannelSMS, Text: "hi"}, false},
		{"unknown channel", Request{Name: "a", Channel: "fax", Text: "hi"}, false},
		{"sms without text", Request{Name: "a", Channel: ChannelSMS}, false},
		{"template without language", Request{Name: "a", Channel: ChannelWhatsApp, TemplateName: "t"}, false},
		{"unknown variable", Request{Name: "a", Channel: ChannelSMS, Text: "x", Mappings: templateutil.Mapping{"1": "shoeSize"}}, false},
		{"bad key", Request{Name: "a", Channel: ChannelSMS, Text: "x", Mappings: templateutil.Mapping{"first": "email"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParameters(t *testing.T) {
	contact := models.Contact{FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"}

	params := Parameters(templateutil.Mapping{"1": "fullName", "3": "email"}, contact)
	require.Len(t, params, 3)
	assert.Equal(t, []string{"Ann Lee", "", "ann@example.com"}, params)

	assert.Empty(t, Parameters(nil, contact))
}

func TestHasTag(t *testing.T) {
	c := models.Contact{Tags: "vip, EU ,new"}
	assert.True(t, HasTag(c, "eu"))
	assert.True(t, HasTag(c, "new"))
	assert.False(t, HasTag(c, "us"))
}
