package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	apphttp "leadpipe/internal/http"
	"leadpipe/internal/http/router"
	"leadpipe/internal/leads"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/repository"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"
	"leadpipe/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-access-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, secret string) (*gin.Engine, *repository.SQLite) {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := logger.Nop()
	engine := router.New(&apphttp.App{
		Config:  &config.Config{JWTAccessSecret: secret, CORSAllowAll: true},
		Logger:  log,
		Health:  store,
		Modules: []apphttp.Module{leads.NewModule(store, validator.New(), log)},
	})
	return engine, store
}

func signToken(t *testing.T, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "ops@example.com",
		"type":  "access",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func do(engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func newLeadBody() map[string]string {
	return map[string]string{
		"firstname":       "Ada",
		"lastname":        "Lovelace",
		"email":           "ada@example.com",
		"phone1":          "2015550123",
		"education_level": "Bachelors",
	}
}

func TestHealthAndStatus(t *testing.T) {
	engine, _ := newTestEngine(t, testSecret)

	rec := do(engine, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	rec = do(engine, http.MethodGet, "/api/v1/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats domain.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalLeads != 0 {
		t.Fatalf("total leads = %d", stats.TotalLeads)
	}
}

func TestWriteRoutesRequireOperator(t *testing.T) {
	engine, _ := newTestEngine(t, testSecret)

	if rec := do(engine, http.MethodPost, "/api/v1/leads", "", newLeadBody()); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/api/v1/leads", signToken(t, "viewer"), newLeadBody()); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer = %d, want 403", rec.Code)
	}

	rec := do(engine, http.MethodPost, "/api/v1/leads", signToken(t, "operator"), newLeadBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("operator create = %d: %s", rec.Code, rec.Body.String())
	}
	var lead domain.Lead
	if err := json.Unmarshal(rec.Body.Bytes(), &lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}
	if lead.Status != domain.StatusPending || lead.FirstName != "Ada" {
		t.Fatalf("created lead = %+v", lead)
	}
}

func TestCreateRejectsInvalidLead(t *testing.T) {
	engine, _ := newTestEngine(t, testSecret)
	body := newLeadBody()
	body["email"] = "not-an-email"

	rec := do(engine, http.MethodPost, "/api/v1/leads", signToken(t, "operator"), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid lead = %d, want 400", rec.Code)
	}
}

func TestOverrideStatusFlow(t *testing.T) {
	engine, store := newTestEngine(t, testSecret)
	ctx := context.Background()
	lead, err := store.Create(ctx, domain.Contact{FirstName: "Ada", Phone: "2015550123"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	token := signToken(t, "operator")
	path := "/api/v1/leads/" + lead.ID.String() + "/status"

	rec := do(engine, http.MethodPut, path, token, map[string]string{"status": "calling"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("override into in-progress = %d, want 409", rec.Code)
	}

	rec = do(engine, http.MethodPut, path, token, map[string]string{"status": "archived"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", rec.Code)
	}

	rec = do(engine, http.MethodPut, path, token, map[string]string{"status": "NOT_INTERESTED", "reason": "asked to stop"})
	if rec.Code != http.StatusOK {
		t.Fatalf("override = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(engine, http.MethodGet, "/api/v1/leads/"+lead.ID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var detail struct {
		Lead domain.Lead `json:"lead"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Lead.Status != domain.StatusNotInterested {
		t.Fatalf("status = %s, want not_interested", detail.Lead.Status)
	}

	if rec := do(engine, http.MethodGet, "/api/v1/leads/00000000-0000-0000-0000-000000000000", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing lead = %d, want 404", rec.Code)
	}
}

func TestWriteRoutesAbsentWithoutSecret(t *testing.T) {
	engine, _ := newTestEngine(t, "")

	rec := do(engine, http.MethodPost, "/api/v1/leads", "", newLeadBody())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("write without secret = %d, want 404", rec.Code)
	}
	if rec := do(engine, http.MethodGet, "/api/v1/leads", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
}
