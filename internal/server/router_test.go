package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/driftbyte/pixvault/backend/internal/auth"
	"github.com/driftbyte/pixvault/backend/internal/store"
	"github.com/driftbyte/pixvault/backend/internal/vault"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type mapBackend struct {
	prefix  string
	objects map[string][]byte
}

func (b *mapBackend) Exists(_ context.Context, name string) (bool, error) {
	_, ok := b.objects[name]
	return ok, nil
}

func (b *mapBackend) Save(_ context.Context, name string, data []byte) (string, error) {
	b.objects[name] = data
	return b.URL(name), nil
}

func (b *mapBackend) URL(name string) string {
	return b.prefix + name
}

func (b *mapBackend) Fetch(_ context.Context, name string) ([]byte, error) {
	data, ok := b.objects[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memory := store.NewMemory()
	vaultService, err := vault.NewService(vault.ServiceConfig{
		HashIndex: memory,
		Users:     memory.Users(),
		Compact:   &mapBackend{prefix: "https://compact.test/", objects: map[string][]byte{}},
		General:   &mapBackend{prefix: "https://general.test/", objects: map[string][]byte{}},
		Probe:     &http.Client{Timeout: time.Second},
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build vault service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte("router-test-secret"),
			Issuer:        "pixvault-auth",
			Audience:      "pixvault-api",
		}),
		Vault:  vaultService,
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func doLogin(t *testing.T, handler http.Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	request := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func mustToken(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	recorder := doLogin(t, handler, username, "hunter2")
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}
	return payload.AccessToken
}

func pngBytes(t *testing.T, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, token, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/images", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return request
}

func TestLoginRejectsMalformedPayload(t *testing.T) {
	handler := newTestHandler(t)

	request := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	handler := newTestHandler(t)

	if code := doLogin(t, handler, "alice", "hunter2").Code; code != http.StatusOK {
		t.Fatalf("registration login failed with status %d", code)
	}
	if code := doLogin(t, handler, "alice", "wrong").Code; code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got status %d, want %d", code, http.StatusUnauthorized)
	}
}

func TestLoginIssuesBearerToken(t *testing.T) {
	handler := newTestHandler(t)

	recorder := doLogin(t, handler, "alice", "hunter2")
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with status %d", recorder.Code)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
		Username    string `json:"username"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.AccessToken == "" || payload.TokenType != "Bearer" || payload.Username != "alice" {
		t.Fatalf("unexpected login payload: %+v", payload)
	}
	if payload.ExpiresIn <= 0 {
		t.Fatalf("non-positive expiry: %d", payload.ExpiresIn)
	}
}

func TestProtectedRoutesRequireAuthorization(t *testing.T) {
	handler := newTestHandler(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/images"},
		{http.MethodGet, "/images"},
		{http.MethodPost, "/images/cleanup"},
	} {
		request := httptest.NewRequest(route.method, route.path, http.NoBody)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: got status %d, want %d", route.method, route.path, recorder.Code, http.StatusUnauthorized)
		}
	}
}

func TestUploadMapsOutcomesToStatuses(t *testing.T) {
	handler := newTestHandler(t)
	token := mustToken(t, handler, "alice")
	data := pngBytes(t, color.RGBA{R: 44, G: 44, B: 44, A: 255})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartUpload(t, token, "notes.txt", []byte("text")))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("txt upload: got status %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartUpload(t, token, "photo.png", data))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("first upload: got status %d, want %d (%s)", recorder.Code, http.StatusCreated, recorder.Body.String())
	}
	var first vault.Outcome
	if err := json.Unmarshal(recorder.Body.Bytes(), &first); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if first.Kind != vault.OutcomeSuccess || first.URL == "" {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartUpload(t, token, "copy.png", data))
	if recorder.Code != http.StatusOK {
		t.Fatalf("duplicate upload: got status %d, want %d", recorder.Code, http.StatusOK)
	}
	var second vault.Outcome
	if err := json.Unmarshal(recorder.Body.Bytes(), &second); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if second.Kind != vault.OutcomeDuplicate || second.URL != first.URL {
		t.Fatalf("unexpected duplicate outcome: %+v", second)
	}
}

func TestUploadWithoutFileFieldIsBadRequest(t *testing.T) {
	handler := newTestHandler(t)
	token := mustToken(t, handler, "alice")

	request := httptest.NewRequest(http.MethodPost, "/images", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	handler := newTestHandler(t)
	token := mustToken(t, handler, "alice")

	oversize := make([]byte, maxUploadBytes+1)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartUpload(t, token, "huge.png", oversize))

	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want %d", recorder.Code, http.StatusRequestEntityTooLarge)
	}

	// The rejection happens before any bytes reach the vault.
	request := httptest.NewRequest(http.MethodGet, "/images", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var payload struct {
		Images []vault.Image `json:"images"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if len(payload.Images) != 0 {
		t.Fatalf("oversize upload left %d ledger records", len(payload.Images))
	}
}

func TestListImagesReturnsLedger(t *testing.T) {
	handler := newTestHandler(t)
	token := mustToken(t, handler, "alice")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartUpload(t, token, "photo.png", pngBytes(t, color.RGBA{B: 9, A: 255})))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("upload failed with status %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/images", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("list failed with status %d", recorder.Code)
	}
	var payload struct {
		Images []vault.Image `json:"images"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if len(payload.Images) != 1 {
		t.Fatalf("expected one image, got %d", len(payload.Images))
	}
	if !strings.HasSuffix(payload.Images[0].Filename, "__compressed.jpg") {
		t.Fatalf("unexpected filename: %q", payload.Images[0].Filename)
	}
}

func TestCleanupReturnsNoContent(t *testing.T) {
	handler := newTestHandler(t)
	token := mustToken(t, handler, "alice")

	request := httptest.NewRequest(http.MethodPost, "/images/cleanup", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", recorder.Code, http.StatusNoContent)
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	handler := newTestHandler(t)

	recorder := doLogin(t, handler, "alice", "hunter2")
	if recorder.Header().Get(requestIDHeader) == "" {
		t.Fatal("response missing request id header")
	}

	request := httptest.NewRequest(http.MethodGet, "/images", http.NoBody)
	request.Header.Set(requestIDHeader, "fixed-id")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if got := recorder.Header().Get(requestIDHeader); got != "fixed-id" {
		t.Fatalf("request id not propagated: got %q", got)
	}
}
