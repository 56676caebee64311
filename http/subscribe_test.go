package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/themunch/munch"
)

func TestSubscribeHandler(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	subscribers.On("UpsertPending", mock.Anything, mock.MatchedBy(func(sub *munch.Subscriber) bool {
		return sub.Email == "alice@example.com" &&
			sub.Status == munch.StatusPendingVerification &&
			sub.Source == "landing" &&
			sub.Context != nil &&
			sub.Context.Server != nil
	})).Return(munch.UpsertResult{Created: true}, nil)

	w := serveJSON(s, http.MethodPost, "/subscribe", `{"email": "  Alice@Example.COM "}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp munch.SubscribeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Message)

	subscribers.AssertExpectations(t)
}

func TestSubscribeHandler_AlreadySubscribed(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	subscribers.On("UpsertPending", mock.Anything, mock.Anything).
		Return(munch.UpsertResult{Created: false}, nil)

	w := serveJSON(s, http.MethodPost, "/subscribe", `{"email": "alice@example.com"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp munch.SubscribeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, alreadySubscribedMessage, resp.Message)
}

func TestSubscribeHandler_InvalidEmail(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	for _, body := range []string{
		`{"email": "not-an-email"}`,
		`{"email": "a..b@example.com"}`,
		`{"email": ".alice@example.com"}`,
		`{"email": 42}`,
		`{}`,
	} {
		w := serveJSON(s, http.MethodPost, "/subscribe", body)

		require.Equal(t, http.StatusBadRequest, w.Code, body)

		var resp Error
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "invalid_email", resp.Code)
	}

	subscribers.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
}

func TestSubscribeHandler_InvalidBody(t *testing.T) {
	s, _, _, limiter := newTestServer(t)
	allowAll(limiter)

	w := serveJSON(s, http.MethodPost, "/subscribe", `{"email"`)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp Error
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "invalid_request_body", resp.Code)
}

func TestSubscribeHandler_OversizedFields(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	tests := []struct {
		body string
		code string
	}{
		{`{"email": "a@example.com", "profile": "` + long(101) + `"}`, "invalid_profile"},
		{`{"email": "a@example.com", "utm": "` + long(201) + `"}`, "invalid_utm"},
		{`{"email": "a@example.com", "source": "` + long(51) + `"}`, "invalid_source"},
		{`{"email": "a@example.com", "profile": 7}`, "invalid_profile"},
	}

	for _, tt := range tests {
		w := serveJSON(s, http.MethodPost, "/subscribe", tt.body)

		require.Equal(t, http.StatusBadRequest, w.Code, tt.code)

		var resp Error
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, tt.code, resp.Code)
	}

	subscribers.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
}

func TestSubscribeHandler_RateLimited(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)

	resetTime := time.Now().Add(30 * time.Second)
	limiter.On("Allow", mock.Anything, mock.Anything, cfg.RateLimit.Subscribe).
		Return(&munch.RateLimitResult{Allowed: false, ResetTime: resetTime}, nil)

	w := serveJSON(s, http.MethodPost, "/subscribe", `{"email": "alice@example.com"}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp Error
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "too_many_requests", resp.Code)
	assert.Equal(t, resetTime.UnixMilli(), resp.ResetTime)

	subscribers.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
}

func TestSubscribeHandler_StoreFailure(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	subscribers.On("UpsertPending", mock.Anything, mock.Anything).
		Return(munch.UpsertResult{}, &munch.Error{Code: munch.ErrInternal, Message: "connection lost"})

	w := serveJSON(s, http.MethodPost, "/subscribe", `{"email": "alice@example.com"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp Error
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "subscription_failed", resp.Code)
}

func TestSubscribeHandler_ClampsContext(t *testing.T) {
	s, subscribers, _, limiter := newTestServer(t)
	allowAll(limiter)

	history := make([]map[string]string, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, map[string]string{
			"path": "/page",
			"ts":   time.Unix(int64(i), 0).UTC().Format(time.RFC3339),
		})
	}
	ua := make([]byte, 10000)
	for i := range ua {
		ua[i] = 'u'
	}

	payload, err := json.Marshal(map[string]interface{}{
		"email": "alice@example.com",
		"context": map[string]interface{}{
			"client": map[string]interface{}{
				"userAgent":   string(ua),
				"languages":   []string{"en", "fr", "de", "es", "it", "pt", "nl", "sv", "da", "no", "fi", "pl"},
				"pathHistory": history,
			},
		},
	})
	require.NoError(t, err)

	var got *munch.ClientContext
	subscribers.On("UpsertPending", mock.Anything, mock.MatchedBy(func(sub *munch.Subscriber) bool {
		got = sub.Context.Client
		return got != nil
	})).Return(munch.UpsertResult{Created: true}, nil)

	w := serveJSON(s, http.MethodPost, "/subscribe", string(payload))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Len(t, got.UserAgent, 512)
	assert.Len(t, got.Languages, maxLanguages)
	require.Len(t, got.PathHistory, maxPathHistory)
	// Truncation keeps the most recent entries.
	assert.Equal(t, time.Unix(50, 0).UTC().Format(time.RFC3339), got.PathHistory[0].Ts)
	assert.Equal(t, time.Unix(99, 0).UTC().Format(time.RFC3339), got.PathHistory[len(got.PathHistory)-1].Ts)
}
