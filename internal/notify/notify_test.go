package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name  string
	err   error
	calls []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.calls = append(f.calls, title+"|"+message)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{" feed_failure "}, 0, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "other", "t", "m"))
	assert.Empty(t, s.calls)

	require.NoError(t, n.Notify(context.Background(), "feed_failure", "t", "m"))
	assert.Equal(t, []string{"t|m"}, s.calls)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, 0, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.calls, 1)
	assert.True(t, n.Enabled())
	assert.False(t, NewNotifier(nil, nil, 0, discardLogger()).Enabled())
}

func TestNotifier_Cooldown(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, discardLogger())
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }

	require.NoError(t, n.Notify(context.Background(), "feed_failure", "a", "1"))
	require.NoError(t, n.Notify(context.Background(), "feed_failure", "b", "2"))
	require.NoError(t, n.Notify(context.Background(), "lock_lost", "c", "3"))

	now = now.Add(time.Minute)
	require.NoError(t, n.Notify(context.Background(), "feed_failure", "d", "4"))

	assert.Equal(t, []string{"a|1", "c|3", "d|4"}, s.calls)
}

func TestNotifier_TriesEverySender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

	err := n.Notify(context.Background(), "feed_failure", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.calls, 1)
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var got telegramPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Feed down", "dial `failed`"))

	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "*Feed down*\ndial 'failed'", got.Text)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.Equal(t, "telegram", s.Name())
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL, "polyquoter")
	require.NoError(t, s.Send(context.Background(), "Feed down", "reason"))
	assert.Equal(t, "**Feed down**\nreason", got.Content)
	assert.Equal(t, "polyquoter", got.Username)
}

func TestDiscordSender_TruncatesLongContent(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL, "")
	require.NoError(t, s.Send(context.Background(), "t", strings.Repeat("x", 3000)))
	assert.Len(t, []rune(got.Content), discordMaxContent)
}

func TestSender_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramSender(srv.URL, "T", "1").Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: unexpected status 400")
	assert.Contains(t, err.Error(), "chat not found")
}
