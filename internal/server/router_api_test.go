package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/auth"
	"github.com/MarcoPoloResearchLab/trainhub/internal/database"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type apiResponse map[string]any

func (r apiResponse) ok() bool {
	value, _ := r["ok"].(bool)
	return value
}

func (r apiResponse) str(key string) string {
	value, _ := r[key].(string)
	return value
}

func (r apiResponse) list(key string) []any {
	value, _ := r[key].([]any)
	return value
}

func newTestHandler(t *testing.T, configure func(*Dependencies)) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	usersService, err := users.NewService(users.ServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	trainingService, err := training.NewService(training.ServiceConfig{Database: db, IDProvider: training.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build training service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	deps := Dependencies{
		Tokens:    issuer,
		Users:     usersService,
		Trainings: trainingService,
		Logger:    zap.NewNop(),
	}
	if configure != nil {
		configure(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, target, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var decoded apiResponse
	if strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder.Code, decoded
}

func signupForTest(t *testing.T, handler http.Handler, name, email string) string {
	t.Helper()
	status, body := performJSON(t, handler, http.MethodPost, "/api/signup", "", gin.H{
		"name":     name,
		"email":    email,
		"password": "secret-password",
	})
	if status != http.StatusOK || !body.ok() {
		t.Fatalf("signup failed: status=%d body=%v", status, body)
	}
	token := body.str("token")
	if token == "" {
		t.Fatalf("expected token in signup response")
	}
	return token
}

func TestSignupAndLoginIssueSessions(t *testing.T) {
	handler := newTestHandler(t, nil)
	signupForTest(t, handler, "Ada Lovelace", "Ada@Example.com")

	_, body := performJSON(t, handler, http.MethodPost, "/api/login", "", gin.H{
		"email":    "ada@example.com",
		"password": "secret-password",
	})
	if !body.ok() {
		t.Fatalf("expected login to succeed, got %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "ada@example.com" || user["name"] != "Ada Lovelace" {
		t.Fatalf("unexpected user payload: %v", user)
	}
	if expires, _ := body["expires_in"].(float64); expires <= 0 {
		t.Fatalf("expected positive expires_in, got %v", body["expires_in"])
	}

	status, body := performJSON(t, handler, http.MethodPost, "/api/login", "", gin.H{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusOK || body.ok() {
		t.Fatalf("expected application failure, got status=%d body=%v", status, body)
	}
	if body.str("error") != "invalid credentials" || body.str("code") != "users.login.invalid_credentials" {
		t.Fatalf("unexpected failure payload: %v", body)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/signup", "", gin.H{
		"name":     "Ada Again",
		"email":    "ada@example.com",
		"password": "secret-password",
	})
	if body.ok() || body.str("code") != "users.signup.account_exists" {
		t.Fatalf("expected duplicate signup to fail, got %v", body)
	}
}

func TestMalformedBodyReturnsBadRequest(t *testing.T) {
	handler := newTestHandler(t, nil)
	request := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader("{not json"))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), messageInvalidBody) {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	handler := newTestHandler(t, nil)
	status, body := performJSON(t, handler, http.MethodGet, "/api/user", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if body.str("code") != codeUnauthorized {
		t.Fatalf("unexpected code: %v", body)
	}
}

func TestUserRecordRejectsForeignPrincipal(t *testing.T) {
	handler := newTestHandler(t, nil)
	token := signupForTest(t, handler, "Owner", "owner@example.com")
	signupForTest(t, handler, "Other", "other@example.com")

	_, body := performJSON(t, handler, http.MethodGet, "/api/user?email=other@example.com", token, nil)
	if body.ok() || body.str("code") != codePrincipalMismatch {
		t.Fatalf("expected principal mismatch, got %v", body)
	}
}

func TestInventorySaveFollowsRecyclingBin(t *testing.T) {
	handler := newTestHandler(t, nil)
	token := signupForTest(t, handler, "Stock Keeper", "keeper@example.com")

	drill := gin.H{"description": "Drill", "upc": "123", "number": "1", "quantity": 5, "target_quantity": 10}
	_, body := performJSON(t, handler, http.MethodPost, "/api/user", token, gin.H{
		"email":     "keeper@example.com",
		"inventory": []gin.H{drill},
	})
	if !body.ok() {
		t.Fatalf("expected save to succeed, got %v", body)
	}
	saved := body.list("inventory")
	if len(saved) != 1 {
		t.Fatalf("expected one active item, got %v", saved)
	}
	item, _ := saved[0].(map[string]any)
	id, _ := item["id"].(string)
	if id == "" {
		t.Fatalf("expected server to assign an item id, got %v", item)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/user", token, gin.H{
		"inventory":         []gin.H{},
		"deleted_inventory": []any{item},
	})
	if !body.ok() || len(body.list("deleted_inventory")) != 1 || len(body.list("inventory")) != 0 {
		t.Fatalf("expected item to move to the bin, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/user", token, gin.H{
		"inventory":         []any{item},
		"deleted_inventory": []gin.H{},
	})
	if !body.ok() || len(body.list("inventory")) != 1 {
		t.Fatalf("expected item to be restored, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/user", token, gin.H{
		"inventory":         []gin.H{},
		"deleted_inventory": []gin.H{},
	})
	if body.ok() || body.str("code") != "users.save_record.invalid_transition" {
		t.Fatalf("expected purge of an active item to be rejected, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodGet, "/api/user", token, nil)
	user, _ := body["user"].(map[string]any)
	active, _ := user["inventory"].([]any)
	if len(active) != 1 {
		t.Fatalf("expected the rejected save to leave the item active, got %v", user)
	}
}

func TestTrainingLifecycleEnforcesOwnershipAndBin(t *testing.T) {
	handler := newTestHandler(t, nil)
	ownerToken := signupForTest(t, handler, "Author", "author@example.com")
	strangerToken := signupForTest(t, handler, "Stranger", "stranger@example.com")

	_, body := performJSON(t, handler, http.MethodPost, "/api/trainings", ownerToken, gin.H{
		"title":       "Forklift basics",
		"description": "Safety first",
		"blocks": []gin.H{
			{"type": "text", "order": 4, "content": gin.H{"text": "Check the forks"}},
			{"type": "divider", "order": 1, "content": gin.H{}},
		},
	})
	if !body.ok() {
		t.Fatalf("expected create to succeed, got %v", body)
	}
	document, _ := body["training"].(map[string]any)
	id, _ := document["id"].(string)
	blocks, _ := document["blocks"].([]any)
	if id == "" || len(blocks) != 2 {
		t.Fatalf("unexpected training payload: %v", document)
	}
	first, _ := blocks[0].(map[string]any)
	if first["type"] != "divider" || first["order"] != float64(0) {
		t.Fatalf("expected blocks normalized by order, got %v", blocks)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/training/delete", strangerToken, gin.H{"id": id})
	if body.ok() || body.str("code") != "training.delete.not_owner" {
		t.Fatalf("expected ownership failure, got %v", body)
	}
	if body.str("error") != "you can only delete your own trainings" {
		t.Fatalf("unexpected ownership message: %q", body.str("error"))
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/training/permanent-delete", ownerToken, gin.H{"id": id})
	if body.ok() || body.str("code") != "training.purge.invalid_transition" {
		t.Fatalf("expected purge of an active training to fail, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/training/delete", ownerToken, gin.H{"id": id, "email": "Author@Example.com"})
	if !body.ok() {
		t.Fatalf("expected delete to succeed, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodGet, "/api/trainings", "", nil)
	if len(body.list("trainings")) != 0 {
		t.Fatalf("expected deleted training to leave the public list, got %v", body)
	}
	_, body = performJSON(t, handler, http.MethodGet, "/api/trainings/deleted", ownerToken, nil)
	if len(body.list("trainings")) != 1 {
		t.Fatalf("expected training in the bin, got %v", body)
	}

	_, body = performJSON(t, handler, http.MethodPost, "/api/training/restore", ownerToken, gin.H{"id": id})
	if !body.ok() {
		t.Fatalf("expected restore to succeed, got %v", body)
	}
	_, body = performJSON(t, handler, http.MethodGet, "/api/training?id="+id, "", nil)
	if !body.ok() {
		t.Fatalf("expected restored training to be readable, got %v", body)
	}

	request := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	exposition := recorder.Body.String()
	for _, want := range []string{
		`trainhub_recycle_transitions_total{entity="training",operation="remove"} 1`,
		`trainhub_recycle_transitions_total{entity="training",operation="restore"} 1`,
	} {
		if !strings.Contains(exposition, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestFallbackServesSinglePageApp(t *testing.T) {
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<main>trainhub</main>"), 0o644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log('app')"), 0o644); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}
	handler := newTestHandler(t, func(deps *Dependencies) {
		deps.StaticDir = staticDir
	})

	cases := map[string]string{
		"/training/view": "<main>trainhub</main>",
		"/app.js":        "console.log('app')",
	}
	for target, want := range cases {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		if recorder.Code != http.StatusOK || recorder.Body.String() != want {
			t.Fatalf("%s: unexpected response %d %q", target, recorder.Code, recorder.Body.String())
		}
	}

	status, body := performJSON(t, handler, http.MethodGet, "/api/unknown", "", nil)
	if status != http.StatusNotFound || body.ok() {
		t.Fatalf("expected JSON 404 for unknown api path, got %d %v", status, body)
	}
}

func TestEventsStreamDeliversInventoryChanges(t *testing.T) {
	handler := newTestHandler(t, nil)
	token := signupForTest(t, handler, "Listener", "listener@example.com")

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events?access_token="+token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer response.Body.Close()
	if !strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}

	events := make(chan string, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				events <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()

	waitFor := func(name string) {
		t.Helper()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					t.Fatalf("stream closed before %s", name)
				}
				if event == name {
					return
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %s", name)
			}
		}
	}
	waitFor(realtimeEventReady)

	_, body := performJSON(t, handler, http.MethodPost, "/api/user", token, gin.H{
		"inventory": []gin.H{{"description": "Ladder", "quantity": 1, "target_quantity": 2}},
	})
	if !body.ok() {
		t.Fatalf("expected save to succeed, got %v", body)
	}
	waitFor(RealtimeEventInventoryChanged)
	cancel()
}
