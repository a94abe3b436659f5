package http

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/sepha/adapters/events"
	"github.com/layer-3/sepha/adapters/tokenizer"
	"github.com/layer-3/sepha/core"
	"github.com/layer-3/sepha/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProfiles struct {
	mu     sync.Mutex
	blurbs map[uint64]string
	err    error
	calls  int
}

func (s *stubProfiles) FetchBlurb(_ context.Context, userID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.blurbs[userID], nil
}

func (s *stubProfiles) setBlurb(userID uint64, blurb string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blurbs[userID] = blurb
}

type testServer struct {
	handler  http.Handler
	profiles *stubProfiles
	now      time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	key, err := tokenizer.ParseKey(der)
	require.NoError(t, err)

	ts := &testServer{
		profiles: &stubProfiles{blurbs: map[uint64]string{}},
		now:      time.Now(),
	}
	clock := func() time.Time { return ts.now }

	tk := tokenizer.NewJWTTokenizer(key, "sepha", tokenizer.WithClock(clock))
	svc := service.NewAuthService(tk, ts.profiles, events.NewNopPublisher(), service.WithClock(clock))
	ts.handler = WithCORS(SetupRouter(svc, "auth", nil), []string{"*"})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) initChallenge(t *testing.T, userID string) InitResponse {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/auth/init/"+userID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res InitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func jsonString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func decodeAuthenticate(t *testing.T, rec *httptest.ResponseRecorder) AuthenticateResponse {
	t.Helper()
	var res AuthenticateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFullFlow(t *testing.T) {
	ts := newTestServer(t)

	initRes := ts.initChallenge(t, "4613422")
	assert.Len(t, initRes.PublicToken, service.DefaultPublicTokenLength)
	assert.NotEmpty(t, initRes.Secret)

	ts.setBlurb(4613422, initRes.PublicToken)

	rec := ts.do(t, http.MethodPost, "/auth/authenticate", "application/json", jsonString(t, initRes.Secret))
	require.Equal(t, http.StatusOK, rec.Code)
	authRes := decodeAuthenticate(t, rec)
	assert.Equal(t, "valid", authRes.Valid)
	require.NotNil(t, authRes.Token)

	rec = ts.do(t, http.MethodPost, "/auth/verify", "application/json", jsonString(t, *authRes.Token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"verify":true}`, rec.Body.String())

	ts.now = ts.now.Add(core.SessionTTL)
	rec = ts.do(t, http.MethodPost, "/auth/verify", "application/json", jsonString(t, *authRes.Token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"verify":false}`, rec.Body.String())
}

func (ts *testServer) setBlurb(userID uint64, blurb string) {
	ts.profiles.setBlurb(userID, blurb)
}

func TestInitInvalidID(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"abc", "-1", "18446744073709551616", "1.5"} {
		rec := ts.do(t, http.MethodGet, "/auth/init/"+id, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestAuthenticateBodyFormats(t *testing.T) {
	ts := newTestServer(t)
	initRes := ts.initChallenge(t, "7")
	ts.setBlurb(7, initRes.PublicToken)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"json string", "application/json", jsonString(t, initRes.Secret)},
		{"json object", "application/json; charset=utf-8", `{"secret":` + jsonString(t, initRes.Secret) + `}`},
		{"form", "application/x-www-form-urlencoded", "secret=" + initRes.Secret},
		{"text", "text/plain", initRes.Secret + "\n"},
		{"no content type", "", initRes.Secret},
		{"no content type json", "", jsonString(t, initRes.Secret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/auth/authenticate", tt.contentType, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			res := decodeAuthenticate(t, rec)
			assert.Equal(t, "valid", res.Valid)
			assert.NotNil(t, res.Token)
		})
	}
}

func TestAuthenticateRejected(t *testing.T) {
	ts := newTestServer(t)
	initRes := ts.initChallenge(t, "7")

	t.Run("blurb mismatch", func(t *testing.T) {
		ts.setBlurb(7, strings.ToLower(initRes.PublicToken)+"x")
		rec := ts.do(t, http.MethodPost, "/auth/authenticate", "application/json", jsonString(t, initRes.Secret))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid":"invalid public_token","token":null}`, rec.Body.String())
	})

	t.Run("malformed", func(t *testing.T) {
		calls := ts.profiles.calls
		rec := ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", "not-a-token")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid":"malformed token","token":null}`, rec.Body.String())
		assert.Equal(t, calls, ts.profiles.calls)
	})

	t.Run("tampered", func(t *testing.T) {
		calls := ts.profiles.calls
		parts := strings.Split(initRes.Secret, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "." + parts[2][:len(parts[2])-4] + "AAAA"

		rec := ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", forged)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid":"invalid signature","token":null}`, rec.Body.String())
		assert.Equal(t, calls, ts.profiles.calls)
	})

	t.Run("expired", func(t *testing.T) {
		ts.setBlurb(7, initRes.PublicToken)
		ts.now = ts.now.Add(core.ChallengeTTL + time.Second)
		rec := ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", initRes.Secret)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"valid":"token has expired","token":null}`, rec.Body.String())
	})
}

func TestAuthenticateWithSessionToken(t *testing.T) {
	ts := newTestServer(t)
	initRes := ts.initChallenge(t, "7")
	ts.setBlurb(7, initRes.PublicToken)

	rec := ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", initRes.Secret)
	res := decodeAuthenticate(t, rec)
	require.NotNil(t, res.Token)

	rec = ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", *res.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":"invalid subject","token":null}`, rec.Body.String())
}

func TestAuthenticateUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	initRes := ts.initChallenge(t, "7")
	ts.profiles.err = errors.New("connection refused")

	rec := ts.do(t, http.MethodPost, "/auth/authenticate", "text/plain", initRes.Secret)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"valid":"upstream profile lookup failed","token":null}`, rec.Body.String())
}

func TestBadBodies(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		status      int
	}{
		{"too large", "/auth/authenticate", "text/plain", strings.Repeat("a", MaxBodySize+1), http.StatusRequestEntityTooLarge},
		{"too large verify", "/auth/verify", "text/plain", strings.Repeat("a", MaxBodySize+1), http.StatusRequestEntityTooLarge},
		{"empty", "/auth/authenticate", "text/plain", "", http.StatusBadRequest},
		{"missing field", "/auth/authenticate", "application/json", `{"token":"abc"}`, http.StatusBadRequest},
		{"missing form field", "/auth/verify", "application/x-www-form-urlencoded", "secret=abc", http.StatusBadRequest},
		{"broken json", "/auth/verify", "application/json", `{"token":`, http.StatusBadRequest},
		{"non-string field", "/auth/verify", "application/json", `{"token":42}`, http.StatusBadRequest},
		{"unsupported type", "/auth/verify", "application/xml", "<token/>", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.contentType, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestVerifyRejectsInitToken(t *testing.T) {
	ts := newTestServer(t)
	initRes := ts.initChallenge(t, "7")

	rec := ts.do(t, http.MethodPost, "/auth/verify", "application/x-www-form-urlencoded", "token="+initRes.Secret)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"verify":false}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/authenticate", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func newServiceWith(t *testing.T, issuer string, publicTokenLength int) *service.AuthService {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	key, err := tokenizer.ParseKey(der)
	require.NoError(t, err)

	return service.NewAuthService(
		tokenizer.NewJWTTokenizer(key, issuer),
		&stubProfiles{blurbs: map[uint64]string{}},
		events.NewNopPublisher(),
		service.WithPublicTokenLength(publicTokenLength),
	)
}

func TestCheckBodyLimit(t *testing.T) {
	assert.NoError(t, CheckBodyLimit(newServiceWith(t, "sepha", service.DefaultPublicTokenLength)))
	assert.NoError(t, CheckBodyLimit(newServiceWith(t, "sepha", 256)))

	err := CheckBodyLimit(newServiceWith(t, strings.Repeat("i", 600), 256))
	assert.ErrorIs(t, err, ErrSecretTooLarge)
}

func TestSecretWithinLimitIsAccepted(t *testing.T) {
	// the largest issuer that still passes CheckBodyLimit must round trip
	// through authenticate as a JSON object
	issuer := "sepha"
	for CheckBodyLimit(newServiceWith(t, issuer+"ii", 256)) == nil {
		issuer += "ii"
	}
	svc := newServiceWith(t, issuer, 256)
	require.NoError(t, CheckBodyLimit(svc))

	handler := SetupRouter(svc, "auth", nil)
	res, err := svc.Init(context.Background(), 1<<64-1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/authenticate", strings.NewReader(`{"secret":`+jsonString(t, res.Secret)+`}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":"invalid public_token","token":null}`, rec.Body.String())
}
