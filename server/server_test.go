package server

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"guardex/assistant"
	"guardex/auth"
	"guardex/config"
	"guardex/database"
	"guardex/models"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type linkMailer struct{ link string }

func (m *linkMailer) SendVerification(_ context.Context, _, _, link string) error {
	m.link = link
	return nil
}

type voiceFunc func(ctx context.Context, in assistant.Input) (*assistant.Response, error)

func (f voiceFunc) Handle(ctx context.Context, in assistant.Input) (*assistant.Response, error) {
	return f(ctx, in)
}

type env struct {
	app    *fiber.App
	db     *database.DB
	mailer *linkMailer
	tokens *auth.TokenManager
}

func newEnv(t *testing.T, voice VoiceAgent) *env {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "api.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mailer := &linkMailer{}
	tokens := auth.NewTokenManager("secret", time.Hour)
	svc := auth.NewService(db, auth.NewHasher(4), tokens, mailer, "https://app.example")

	if voice == nil {
		voice = voiceFunc(func(context.Context, assistant.Input) (*assistant.Response, error) {
			return &assistant.Response{}, nil
		})
	}
	s := New(config.ServerConfig{}, NewHandler(svc, db, voice))
	return &env{app: s.App(), db: db, mailer: mailer, tokens: tokens}
}

func (e *env) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := e.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second, FailOnTimeout: true})
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &body))
	} else {
		body["text"] = string(raw)
	}
	return resp.StatusCode, body
}

func jsonRequest(method, target string, payload interface{}) *http.Request {
	b, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIndex(t *testing.T) {
	e := newEnv(t, nil)
	status, body := e.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "🚀 API is running...", body["text"])
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t, nil)
	signup := map[string]string{"name": "Ada", "email": "ada@example.com", "password": "pw", "role": "developer"}

	status, body := e.do(t, jsonRequest(http.MethodPost, "/api/auth/signup", signup))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Signup successful. Verification email sent.", body["message"])

	status, body = e.do(t, jsonRequest(http.MethodPost, "/api/auth/signup", signup))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already registered", body["error"])

	status, _ = e.do(t, jsonRequest(http.MethodPost, "/api/auth/signup", map[string]string{"email": "x@example.com"}))
	assert.Equal(t, http.StatusBadRequest, status)

	login := map[string]string{"email": "ada@example.com", "password": "pw"}
	status, body = e.do(t, jsonRequest(http.MethodPost, "/api/auth/login", login))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Email not verified", body["error"])

	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/verify/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired token", body["error"])

	token := strings.TrimPrefix(e.mailer.link, "https://app.example/verify/")
	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/verify/"+token, nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Email successfully verified", body["message"])

	status, body = e.do(t, jsonRequest(http.MethodPost, "/api/auth/login", login))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Login successful", body["message"])
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Ada", user["name"])
	assert.NotContains(t, user, "password")

	status, body = e.do(t, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status, _ = e.do(t, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com"}))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScans(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	older, err := e.db.CreateScan(ctx, "https://a.example", "u-1")
	require.NoError(t, err)
	require.NoError(t, e.db.CompleteScan(ctx, older.ID, []models.Vulnerability{{Name: "Stripe key", Severity: "critical"}}))
	_, err = e.db.CreateScan(ctx, "https://b.example", "u-1")
	require.NoError(t, err)
	_, err = e.db.CreateScan(ctx, "https://c.example", "u-2")
	require.NoError(t, err)

	status, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan?user_id=u-1", nil))
	require.Equal(t, http.StatusOK, status)
	scans := body["scans"].([]interface{})
	require.Len(t, scans, 2)
	assert.Equal(t, "https://b.example", scans[0].(map[string]interface{})["website_link"])

	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan", nil))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing user_id in request body", body["error"])

	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan?user_id=nobody", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["scans"])

	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan/"+itoa(older.ID), nil))
	require.Equal(t, http.StatusOK, status)
	scan := body["scan"].(map[string]interface{})
	assert.Equal(t, true, scan["scan_complete"])
	assert.Len(t, scan["vulnerabilities"], 1)

	status, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan/9999", nil))
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/api/scan/abc", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScans_Bearer(t *testing.T) {
	e := newEnv(t, nil)
	scan, err := e.db.CreateScan(context.Background(), "https://a.example", "u-1")
	require.NoError(t, err)

	own, err := e.tokens.Issue("u-1", "ada@example.com", "developer")
	require.NoError(t, err)
	other, err := e.tokens.Issue("u-2", "eve@example.com", "developer")
	require.NoError(t, err)

	get := func(target, header string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		status, _ := e.do(t, req)
		return status
	}

	assert.Equal(t, http.StatusOK, get("/api/scan?user_id=u-1", "Bearer "+own))
	assert.Equal(t, http.StatusForbidden, get("/api/scan?user_id=u-1", "Bearer "+other))
	assert.Equal(t, http.StatusUnauthorized, get("/api/scan?user_id=u-1", "Bearer garbage"))
	assert.Equal(t, http.StatusUnauthorized, get("/api/scan?user_id=u-1", "Basic abc"))
	assert.Equal(t, http.StatusOK, get("/api/scan/"+itoa(scan.ID), "Bearer "+own))
	assert.Equal(t, http.StatusForbidden, get("/api/scan/"+itoa(scan.ID), "Bearer "+other))
}

func voiceRequest(t *testing.T, audio []byte, vulns string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if audio != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="audio"; filename="q.webm"`)
		h.Set("Content-Type", "audio/webm")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	if vulns != "" {
		require.NoError(t, w.WriteField("vulnerabilities", vulns))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/voice-agent", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestVoiceAgent(t *testing.T) {
	var got assistant.Input
	e := newEnv(t, voiceFunc(func(_ context.Context, in assistant.Input) (*assistant.Response, error) {
		got = in
		if len(in.Audio) == 0 {
			return nil, &assistant.Error{Status: http.StatusBadRequest, Message: "Missing audio file"}
		}
		return &assistant.Response{Transcription: "hi", ResponseText: "hello", ResponseAudioBase64: "AAA="}, nil
	}))

	status, body := e.do(t, voiceRequest(t, []byte("audio-bytes"), `[{"name":"x"}]`))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "hello", body["response_text"])
	assert.Equal(t, "audio-bytes", string(got.Audio))
	assert.Equal(t, "audio/webm", got.ContentType)
	assert.Equal(t, `[{"name":"x"}]`, got.Vulnerabilities)

	status, body = e.do(t, voiceRequest(t, nil, `[]`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing audio file", body["error"])
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
