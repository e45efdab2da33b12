package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"campaign-dashboard/internal/config"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		GraphBaseURL:              srv.URL,
		GraphVersion:              "v19.0",
		WhatsAppToken:             "token-123",
		PhoneNumberID:             "phone-1",
		WhatsAppBusinessAccountID: "waba-1",
	}
	log, _ := test.NewNullLogger()
	return NewClient(cfg, log, SetRetryWait(time.Millisecond, 5*time.Millisecond), SetRetryMax(2))
}

func TestSendTemplate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var msg GenericMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "whatsapp", msg.MessagingProduct)
		assert.Equal(t, "template", msg.Type)
		require.NotNil(t, msg.Template)
		assert.Equal(t, "welcome", msg.Template.Name)
		assert.Equal(t, "en_US", msg.Template.Language.Code)
		require.Len(t, msg.Template.Components, 1)
		assert.Equal(t, "Ann", msg.Template.Components[0].Parameters[0].Text)

		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	id, err := client.SendTemplate(context.Background(), "+15550001", "welcome", "en_US", []ComponentObj{
		{Type: "body", Parameters: TextParameters([]string{"Ann"})},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)
}

func TestSendText_NotConfigured(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	client.Config.PhoneNumberID = ""

	_, err := client.SendText(context.Background(), "+15550001", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestListTemplates_FollowsPaging(t *testing.T) {
	var srvURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{"data":[{"id":"1","name":"a","status":"APPROVED","components":[]}],"paging":{"next":"` + srvURL + `/v19.0/waba-1/message_templates?after=x"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"2","name":"b","status":"PENDING"}]}`))
	})
	srvURL = client.Config.GraphBaseURL

	templates, err := client.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "a", templates[0].Name)
	assert.Equal(t, "PENDING", templates[1].Status)
}

func TestCreateTemplate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/waba-1/message_templates", r.URL.Path)

		var req TemplateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order_update", req.Name)
		require.Len(t, req.Components, 1)
		assert.Equal(t, [][]string{{"Ann"}}, req.Components[0].Example.BodyText)

		w.Write([]byte(`{"id":"tmpl-9","status":"PENDING","category":"UTILITY"}`))
	})

	resp, err := client.CreateTemplate(context.Background(), TemplateRequest{
		Name:     "order_update",
		Language: "en_US",
		Category: "UTILITY",
		Components: []TemplateComponent{
			{Type: "BODY", Text: "Hi {{1}}", Example: &TemplateExample{BodyText: [][]string{{"Ann"}}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tmpl-9", resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
}

func TestDeleteTemplate_EscapesName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "a b&c", r.URL.Query().Get("name"))
		w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, client.DeleteTemplate(context.Background(), "a b&c"))
}

func TestErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad name"}}`))
	})

	_, err := client.SendText(context.Background(), "+1", "hi")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = client.CreateTemplate(context.Background(), TemplateRequest{Name: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "bad name")
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.2"}]}`))
	})

	id, err := client.SendText(context.Background(), "+1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "wamid.2", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUploadMedia_ReportsProgress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/phone-1/media", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whatsapp", r.FormValue("messaging_product"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "sample.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "png-bytes", string(data))

		w.Write([]byte(`{"id":"media-7"}`))
	})

	var lastSent, lastTotal, calls atomic.Int64
	resp, err := client.UploadMedia(context.Background(), strings.NewReader("png-bytes"), "sample.png", "image/png", func(sent, total int64) {
		calls.Add(1)
		lastSent.Store(sent)
		lastTotal.Store(total)
	})
	require.NoError(t, err)
	assert.Equal(t, "media-7", resp.ID)
	assert.Positive(t, calls.Load())
	assert.Equal(t, lastTotal.Load(), lastSent.Load())
}
