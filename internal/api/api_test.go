package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"campaign-dashboard/internal/auth"
	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/config"
	"campaign-dashboard/internal/contactsync"
	"campaign-dashboard/internal/database"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/permissions"
	"campaign-dashboard/internal/webhook"
	"campaign-dashboard/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu        sync.Mutex
	templates []whatsapp.ProviderTemplate
	created   []whatsapp.TemplateRequest
	deleted   []string
	texts     []string
	uploaded  []byte
	createErr error
	sendErr   error
}

func (f *fakeProvider) SendText(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.texts = append(f.texts, to+": "+body)
	return "wamid.text", nil
}

func (f *fakeProvider) SendTemplate(context.Context, string, string, string, []whatsapp.ComponentObj) (string, error) {
	return "wamid.template", nil
}

func (f *fakeProvider) ListTemplates(context.Context) ([]whatsapp.ProviderTemplate, error) {
	return f.templates, nil
}

func (f *fakeProvider) CreateTemplate(_ context.Context, req whatsapp.TemplateRequest) (*whatsapp.CreateTemplateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &whatsapp.CreateTemplateResponse{ID: "tmpl-1", Status: "PENDING", Category: req.Category}, nil
}

func (f *fakeProvider) DeleteTemplate(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeProvider) UploadMedia(_ context.Context, file io.Reader, _, _ string, progress whatsapp.ProgressFunc) (*whatsapp.MediaResponse, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	f.uploaded = data
	progress(int64(len(data)), int64(len(data)))
	return &whatsapp.MediaResponse{ID: "handle-1"}, nil
}

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

func (r *recorder) ServeWs(w http.ResponseWriter, _ *http.Request, accountID string) {
	w.Write([]byte("ws:" + accountID))
}

func (r *recorder) ofKind(kind string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeStarter struct {
	started []string
	err     error
}

func (f *fakeStarter) Start(c *models.Campaign) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, c.ID)
	return nil
}

type env struct {
	t        *testing.T
	router   *gin.Engine
	db       *gorm.DB
	cfg      *config.Config
	provider *fakeProvider
	notify   *recorder
	starter  *fakeStarter
	auth     *auth.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return setupEnv(t, func(e *env, _ logrus.FieldLogger) Starter { return e.starter })
}

// newDispatchEnv runs campaigns through a real dispatcher
func newDispatchEnv(t *testing.T) *env {
	t.Helper()
	return setupEnv(t, func(e *env, log logrus.FieldLogger) Starter {
		d := campaign.NewDispatcher(e.db, e.provider, log, campaign.SetWorkerCount(2))
		t.Cleanup(d.Shutdown)
		return d
	})
}

func setupEnv(t *testing.T, starter func(e *env, log logrus.FieldLogger) Starter) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := &env{
		t:        t,
		db:       db,
		cfg:      &config.Config{VerifyToken: "verify-me", WhatsAppToken: "EAAG-secret-1234", PhoneNumberID: "555"},
		provider: &fakeProvider{},
		notify:   &recorder{},
		starter:  &fakeStarter{},
		auth:     auth.NewService("test-secret", time.Hour),
	}

	poller := contactsync.Poller{Interval: 5 * time.Millisecond, MaxStalls: 100}
	h := Handlers{
		Templates:  NewTemplateHandler(db, e.provider, e.notify, log),
		Contacts:   NewContactHandler(ctx, db, contactsync.NewImporter(db, log), poller, e.notify, log),
		Campaigns:  NewCampaignHandler(db, starter(e, log), log),
		Channels:   NewChannelHandler(e.cfg, db, log),
		Widget:     NewWidgetHandler(db),
		Dashboard:  NewDashboardHandler(db, e.provider, log),
		Automation: NewAutomationHandler(db),
		Webhook:    webhook.NewHandler(e.cfg, db, e.notify, log),
	}
	e.router = gin.New()
	Register(e.router, h, e.auth, e.notify)
	return e
}

func (e *env) token(role string) string {
	e.t.Helper()
	tok, err := e.auth.Issue(permissions.Principal{
		AccountID:   "acc-1",
		UserID:      "user-1",
		Role:        role,
		Permissions: permissions.DefaultTree(role),
	})
	require.NoError(e.t, err)
	return tok
}

// do sends an admin request; body is JSON encoded unless it is a *bytes.Buffer
func (e *env) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.doAs(permissions.RoleAdmin, method, path, body, "")
}

func (e *env) doAs(role, method, path string, body interface{}, contentType string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case *bytes.Buffer:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
