package http

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/themunch/munch"
	munchmock "github.com/themunch/munch/mock"
)

var cfg *munch.Config

func TestMain(m *testing.M) {
	viper.SetConfigType("yaml")
	var yamlConfig = []byte(`
ratelimit:
  subscribe:
    requests: 5
    window: 1m
  verify:
    requests: 10
    window: 1m
`)
	if err := viper.ReadConfig(bytes.NewBuffer(yamlConfig)); err != nil {
		log.Fatal(err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal(err)
	}

	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, *munchmock.SubscriberService, *munchmock.VerifierService, *munchmock.RateLimitService) {
	t.Helper()

	s, err := NewServer(cfg)
	require.NoError(t, err)

	subscribers := new(munchmock.SubscriberService)
	verifiers := new(munchmock.VerifierService)
	limiter := new(munchmock.RateLimitService)

	s.SubscriberService = subscribers
	s.VerifierService = verifiers
	s.RateLimitService = limiter

	return s, subscribers, verifiers, limiter
}

func allowAll(limiter *munchmock.RateLimitService) {
	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything).
		Return(&munch.RateLimitResult{
			Allowed:   true,
			Remaining: 4,
			ResetTime: time.Now().Add(time.Minute),
		}, nil)
}

func serveJSON(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
