package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"treasuryd/notify"
)

func TestNewWebhookSinkValidation(t *testing.T) {
	_, err := notify.NewWebhookSink("", 30)
	require.Error(t, err)
	_, err = notify.NewWebhookSink("not-a-url", 30)
	require.Error(t, err)
	_, err = notify.NewWebhookSink("https://hooks.example.org/treasury", 30)
	require.NoError(t, err)
}

func TestNotifyDeliversPayload(t *testing.T) {
	var received struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer hook.Close()

	sink, err := notify.NewWebhookSink(hook.URL, 600)
	require.NoError(t, err)

	require.NoError(t, sink.Notify(context.Background(), "ops", "disbursement complete"))
	require.Equal(t, "ops", received.Channel)
	require.Equal(t, "disbursement complete", received.Text)
}

func TestNotifyReportsWebhookFailure(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer hook.Close()

	sink, err := notify.NewWebhookSink(hook.URL, 600)
	require.NoError(t, err)

	err = sink.Notify(context.Background(), "ops", "message")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestNotifyRequiresChannel(t *testing.T) {
	sink, err := notify.NewWebhookSink("https://hooks.example.org", 30)
	require.NoError(t, err)
	require.Error(t, sink.Notify(context.Background(), " ", "message"))
}

func TestNopSink(t *testing.T) {
	require.NoError(t, notify.NopSink{}.Notify(context.Background(), "ops", "message"))
}
