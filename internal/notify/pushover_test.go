package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

func TestNewPushoverRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewPushover(PushoverConfig{UserKey: "u"})
	require.Error(t, err)

	p, err := NewPushover(PushoverConfig{UserKey: "u", APIToken: "t"})
	require.NoError(t, err)
	require.Equal(t, DefaultPushoverEndpoint, p.cfg.Endpoint)
}

func TestPushoverPostsForm(t *testing.T) {
	t.Parallel()

	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"message": r.PostForm.Get("message"),
			"title":   r.PostForm.Get("title"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":1}`))
	}))
	t.Cleanup(srv.Close)

	p, err := NewPushover(PushoverConfig{UserKey: "user-key", APIToken: "api-token", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, p.Notify(context.Background(), testAlert))

	require.Equal(t, "api-token", form["token"])
	require.Equal(t, "user-key", form["user"])
	require.Equal(t, testAlert.Message, form["message"])
	require.Equal(t, "Rain Jacket", form["title"])
}

func TestPushoverRejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"errors":["user identifier is invalid"]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := NewPushover(PushoverConfig{UserKey: "u", APIToken: "t", Endpoint: srv.URL})
	require.NoError(t, err)

	err = p.Notify(context.Background(), testAlert)
	require.ErrorIs(t, err, stock.ErrNotifyFailed)
	require.ErrorContains(t, err, "400")
}
