package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type event struct {
	account string
	kind    string
	data    interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(accountID, eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{accountID, eventType, data})
}

func setup(t *testing.T) (*gin.Engine, *gorm.DB, *recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	rec := &recorder{}

	h := NewHandler(&config.Config{VerifyToken: "verify-me"}, db, rec, log)
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleEvent)
	return r, db, rec
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyWebhook(t *testing.T) {
	r, _, _ := setup(t)

	tests := []struct {
		query  string
		status int
		body   string
	}{
		{"hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusOK, "42"},
		{"hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", http.StatusForbidden, ""},
		{"hub.mode=unsubscribe&hub.verify_token=verify-me", http.StatusForbidden, ""},
		{"", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))
		assert.Equal(t, tt.status, w.Code, tt.query)
		assert.Equal(t, tt.body, w.Body.String(), tt.query)
	}
}

func TestHandleEvent_Statuses(t *testing.T) {
	r, db, rec := setup(t)
	require.NoError(t, db.Create(&models.Message{
		AccountID: "acc-1", CampaignID: "c-1", ProviderID: "wamid.1", Recipient: "+15550000001", Status: "sent",
	}).Error)

	w := post(r, `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
		"statuses":[
			{"id":"wamid.1","status":"failed","recipient_id":"15550000001","errors":[{"code":131026,"title":"Message undeliverable"}]},
			{"id":"wamid.unknown","status":"read"}
		]}}]}]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var msg models.Message
	require.NoError(t, db.Where("provider_id = ?", "wamid.1").First(&msg).Error)
	assert.Equal(t, "failed", msg.Status)
	assert.Equal(t, "Message undeliverable", msg.Error)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "acc-1", rec.events[0].account)
	assert.Equal(t, ws.EventMessageStatus, rec.events[0].kind)
	assert.Equal(t, statusEvent{
		ProviderID: "wamid.1", CampaignID: "c-1", Recipient: "+15550000001", Status: "failed", Error: "Message undeliverable",
	}, rec.events[0].data)
}

func TestHandleEvent_Inbound(t *testing.T) {
	r, db, rec := setup(t)
	require.NoError(t, db.Create(&models.Message{AccountID: "acc-7", ProviderID: "wamid.out", Recipient: "+15550000001", Status: "delivered"}).Error)

	w := post(r, `{"entry":[{"changes":[{"field":"messages","value":{
		"messages":[{"from":"15550000001","id":"wamid.in","type":"button","button":{"payload":"STOP","text":"Stop promotions"}}]
	}}]}]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var in models.Message
	require.NoError(t, db.Where("provider_id = ?", "wamid.in").First(&in).Error)
	assert.Equal(t, "acc-7", in.AccountID)
	assert.Equal(t, "received", in.Status)
	assert.Equal(t, "Stop promotions", in.Content)

	require.Len(t, rec.events, 1)
	assert.Equal(t, ws.EventInboundMessage, rec.events[0].kind)
}

func TestHandleEvent_TemplateStatus(t *testing.T) {
	r, db, rec := setup(t)
	require.NoError(t, db.Create(&models.Template{ID: "t-1", Name: "welcome", Language: "en_US", Status: "PENDING"}).Error)
	require.NoError(t, db.Create(&models.Template{ID: "t-2", Name: "welcome", Language: "de", Status: "PENDING"}).Error)

	w := post(r, `{"entry":[{"changes":[{"field":"message_template_status_update","value":{
		"event":"REJECTED","message_template_id":123,"message_template_name":"welcome",
		"message_template_language":"en_US","reason":"INVALID_FORMAT"
	}}]}]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var en, de models.Template
	require.NoError(t, db.First(&en, "id = ?", "t-1").Error)
	require.NoError(t, db.First(&de, "id = ?", "t-2").Error)
	assert.Equal(t, "REJECTED", en.Status)
	assert.Equal(t, "INVALID_FORMAT", en.Reason)
	assert.Equal(t, "PENDING", de.Status)

	require.Len(t, rec.events, 1)
	assert.Equal(t, templateEvent{Name: "welcome", Language: "en_US", Status: "REJECTED", Reason: "INVALID_FORMAT"}, rec.events[0].data)
}

func TestHandleEvent_BadPayload(t *testing.T) {
	r, _, _ := setup(t)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"entry":`).Code)
}

type processed struct{ account, from, content string }

type fakeAutomation struct{ calls []processed }

func (f *fakeAutomation) Process(_ context.Context, accountID, from, content string) error {
	f.calls = append(f.calls, processed{accountID, from, content})
	return nil
}

func TestHandleEvent_InboundRunsAutomation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	require.NoError(t, db.Create(&models.Message{AccountID: "acc-3", ProviderID: "wamid.out", Recipient: "+15550000009", Status: "sent"}).Error)

	auto := &fakeAutomation{}
	h := NewHandler(&config.Config{}, db, &recorder{}, log)
	h.Automation = auto
	r := gin.New()
	r.POST("/webhook", h.HandleEvent)

	w := post(r, `{"entry":[{"changes":[{"field":"messages","value":{
		"messages":[{"from":"15550000009","id":"wamid.in2","type":"text","text":{"body":"STOP"}}]
	}}]}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []processed{{"acc-3", "+15550000009", "STOP"}}, auto.calls)
}
