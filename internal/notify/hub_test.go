package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAuth(token string) (string, error) {
	if token == "" || token == "bad" {
		return "", errors.New("invalid")
	}
	return token, nil
}

func TestHubDeliversToUser(t *testing.T) {
	hub := NewHub(testAuth, zap.NewNop().Sugar(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("u1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify(context.Background(), "u2", Message{Type: "issue_status", Text: "not for you"})
	hub.Notify(context.Background(), "u1", Message{Type: "issue_status", IssueID: "i1", Status: "assigned", Text: "assigned"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "i1", got.IssueID)
	assert.Equal(t, "assigned", got.Status)
}

func TestHubRejectsBadToken(t *testing.T) {
	hub := NewHub(testAuth, zap.NewNop().Sugar(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub(testAuth, zap.NewNop().Sugar(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/?token=u9", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Connected("u9") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("u9") == 0 }, 2*time.Second, 10*time.Millisecond)

	// offline recipients are ignored
	hub.Notify(context.Background(), "u9", Message{Text: "late"})
}

func TestMultiFansOut(t *testing.T) {
	var a, b recorder
	Multi{&a, &b}.Notify(context.Background(), "u1", Message{Text: "hi"})
	assert.Equal(t, []string{"u1"}, a.to)
	assert.Equal(t, []string{"u1"}, b.to)
}

type recorder struct{ to []string }

func (r *recorder) Notify(_ context.Context, id string, _ Message) { r.to = append(r.to, id) }
