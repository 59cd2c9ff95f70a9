package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbook/medbook/internal/auth"
	"github.com/medbook/medbook/internal/pubsub"
)

type fakeVerifier struct {
	claims *auth.Claims
}

func (v *fakeVerifier) ValidateToken(token string) (*auth.Claims, error) {
	if v.claims == nil {
		return nil, errors.New("invalid token")
	}
	return v.claims, nil
}

func newGateServer(t *testing.T, verifier TokenVerifier) *httptest.Server {
	t.Helper()
	dir := newFakeDirectory()
	store := &fakeStore{}
	ps := pubsub.NewMemoryPubSub()
	hub := NewHub(dir, store, ps, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, verifier, testLogger()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = ps.Close()
	})
	return srv
}

// =============================================================================
// Connection Gate Tests
// =============================================================================

func TestHandler_MissingTokenRefusedBeforeUpgrade(t *testing.T) {
	srv := newGateServer(t, &fakeVerifier{})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_InvalidTokenRefusedBeforeUpgrade(t *testing.T) {
	srv := newGateServer(t, &fakeVerifier{})

	resp, err := http.Get(srv.URL + "?token=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_InvalidTokenRefusedOnWebSocketDial(t *testing.T) {
	srv := newGateServer(t, &fakeVerifier{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Nil(t, conn)
}

func TestHandler_ValidTokenUpgrades(t *testing.T) {
	verifier := &fakeVerifier{claims: &auth.Claims{
		UserID: uuid.New(),
		Name:   "alice",
	}}
	srv := newGateServer(t, verifier)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=good"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}
