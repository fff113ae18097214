package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() notify.Event {
	return notify.Event{
		RunID:       "d3c0ffee",
		Environment: "prod",
		Tag:         "v2.0.0",
		State:       "Promoted",
		Severity:    notify.SeverityInfo,
		Message:     "tag v2.0.0 promoted to stable",
		Timestamp:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var received notify.Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("content-type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := notify.NewWebhookSender(server.URL)
	err := sender.Send(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Equal(t, "prod", received.Environment)
	assert.Equal(t, "Promoted", received.State)
	assert.Equal(t, notify.SeverityInfo, received.Severity)
}

func TestWebhookSenderReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer server.Close()

	sender := notify.NewWebhookSender(server.URL)
	err := sender.Send(context.Background(), testEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

type failingSender struct {
	calls int
}

func (f *failingSender) Name() string {
	return "failing"
}

func (f *failingSender) Send(ctx context.Context, event notify.Event) error {
	f.calls++
	return errors.New("target unreachable")
}

type recordingSender struct {
	events []notify.Event
}

func (r *recordingSender) Name() string {
	return "recording"
}

func (r *recordingSender) Send(ctx context.Context, event notify.Event) error {
	r.events = append(r.events, event)
	return nil
}

// A failing target must not prevent delivery to the remaining targets, and
// must not surface an error to the caller.
func TestRouterIsBestEffort(t *testing.T) {
	failing := &failingSender{}
	recording := &recordingSender{}
	router := notify.NewRouter(failing, recording)

	router.Publish(context.Background(), testEvent())

	assert.Equal(t, 1, failing.calls)
	require.Len(t, recording.events, 1)
	assert.Equal(t, "Promoted", recording.events[0].State)
}

func TestRouterStampsMissingTimestamp(t *testing.T) {
	recording := &recordingSender{}
	router := notify.NewRouter(recording)

	event := testEvent()
	event.Timestamp = time.Time{}
	router.Publish(context.Background(), event)

	require.Len(t, recording.events, 1)
	assert.False(t, recording.events[0].Timestamp.IsZero())
}

func TestEmailSenderFormatsMessage(t *testing.T) {
	var sentTo []string
	var sentBody string

	sender := notify.NewEmailSender("smtp.internal:25", "deploy@voicehive.example", []string{"ops@voicehive.example"})
	sender.SetSendFunc(func(addr, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.internal:25", addr)
		assert.Equal(t, "deploy@voicehive.example", from)
		sentTo = to
		sentBody = string(msg)
		return nil
	})

	err := sender.Send(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Equal(t, []string{"ops@voicehive.example"}, sentTo)
	assert.True(t, strings.Contains(sentBody, "Subject: [deploy] prod v2.0.0: Promoted"))
	assert.True(t, strings.Contains(sentBody, "Run ID: d3c0ffee"))
}

func TestEmailSenderRequiresRecipients(t *testing.T) {
	sender := notify.NewEmailSender("smtp.internal:25", "deploy@voicehive.example", nil)
	err := sender.Send(context.Background(), testEvent())
	assert.Error(t, err)
}
