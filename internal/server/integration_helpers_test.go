package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/threadline/internal/auth"
	"github.com/MarcoPoloResearchLab/threadline/internal/cache"
	"github.com/MarcoPoloResearchLab/threadline/internal/comments"
	"github.com/MarcoPoloResearchLab/threadline/internal/database"
	"github.com/MarcoPoloResearchLab/threadline/internal/ids"
	"github.com/MarcoPoloResearchLab/threadline/internal/notifications"
	"github.com/MarcoPoloResearchLab/threadline/internal/render"
	"github.com/MarcoPoloResearchLab/threadline/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery"

var integrationEpoch = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

type integrationClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *integrationClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *integrationClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type integrationHarness struct {
	handler http.Handler
	clock   *integrationClock
}

func newIntegrationRouter(t *testing.T, mutate func(*Dependencies)) *integrationHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "threadline.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	clock := &integrationClock{now: integrationEpoch}
	idProvider := ids.NewUUIDProvider()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Hasher:     hasher,
		IDProvider: idProvider,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte("integration-access-secret"),
		RefreshSecret: []byte("integration-refresh-secret"),
		Issuer:        "threadline-auth",
		Audience:      "threadline-api",
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	ledger, err := notifications.NewLedger(notifications.LedgerConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	countCache, err := cache.NewMemoryStore(64, clock.Now)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	commentService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
		Notifier:   ledger,
		CountCache: countCache,
	})
	if err != nil {
		t.Fatalf("failed to create comment service: %v", err)
	}

	deps := Dependencies{
		Users:             userService,
		Tokens:            issuer,
		Comments:          commentService,
		Notifications:     ledger,
		Renderer:          render.NewRenderer(),
		AuthRatePerSecond: 1000,
		AuthRateBurst:     1000,
		Logger:            zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &integrationHarness{handler: handler, clock: clock}
}

func (h *integrationHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

type loginResponse struct {
	User   userPayload   `json:"user"`
	Tokens tokensPayload `json:"tokens"`
}

// signUp registers and logs in a user, returning the login response.
func (h *integrationHarness) signUp(t *testing.T, email, name string) loginResponse {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/auth/register", "", gin.H{"email": email, "password": testPassword, "name": name})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", email, recorder.Code, recorder.Body.String())
	}
	recorder = h.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": testPassword})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, recorder.Code, recorder.Body.String())
	}
	var response loginResponse
	decodeBody(t, recorder, &response)
	return response
}

func (h *integrationHarness) postComment(t *testing.T, token string, body gin.H) commentPayload {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/comments", token, body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create comment: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Comment commentPayload `json:"comment"`
	}
	decodeBody(t, recorder, &response)
	return response.Comment
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var response struct {
		Error string `json:"error"`
	}
	decodeBody(t, recorder, &response)
	return response.Error
}
