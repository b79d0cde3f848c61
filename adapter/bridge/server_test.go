package bridge

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/sidecue/sidecue/internal/identity"
	licenseapp "github.com/sidecue/sidecue/internal/licensing/application"
	licensedomain "github.com/sidecue/sidecue/internal/licensing/domain"
	licensestore "github.com/sidecue/sidecue/internal/licensing/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/playbooks/application"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
	"github.com/sidecue/sidecue/internal/playbooks/engine"
	"github.com/sidecue/sidecue/internal/playbooks/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/migrations"
)

type testBridge struct {
	handler  http.Handler
	playbook *domain.Playbook
	license  *licensedomain.License
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	session := func() identity.Session { return identity.Anonymous() }
	repo := persistence.NewSQLiteRepository(db)
	service := application.NewService(repo, session, nil)

	eng := engine.New(repo, session, nil, nil, engine.Config{})

	licenseRepo := licensestore.NewSQLiteLicenseRepository(db)
	gate := licenseapp.NewService(licenseRepo, nil, nil, nil)

	playbook := domain.NewPlaybook("Sales Demo")
	playbook.Category = "sales"
	require.NoError(t, repo.Create(context.Background(), playbook))
	require.NoError(t, repo.AddPrompt(context.Background(), &domain.Prompt{
		PlaybookID:   playbook.ID,
		TriggerType:  domain.TriggerKeyword,
		TriggerValue: "pricing",
		PromptText:   "Talk value before numbers.",
		Priority:     9,
	}))

	license := licensedomain.NewLicense("key-1", "user-1", licensedomain.TierFree)
	license.CreditsResetAt = time.Now().Add(time.Hour).Unix()
	require.NoError(t, licenseRepo.Create(context.Background(), license))

	server := NewServer(DefaultServerConfig(),
		NewEngineHandler(eng, nil),
		NewPlaybookHandler(service, nil),
		NewLicenseHandler(gate, nil),
		nil,
		nil)

	return &testBridge{handler: server.Handler(), playbook: playbook, license: license}
}

func (b *testBridge) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBridge_Health(t *testing.T) {
	b := newTestBridge(t)
	rec := b.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBridge_EngineLifecycle(t *testing.T) {
	b := newTestBridge(t)

	rec := b.do(t, http.MethodGet, "/api/v1/engine/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]any](t, rec)["active"].(bool))

	rec = b.do(t, http.MethodPost, "/api/v1/engine/load", map[string]string{"playbookId": b.playbook.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodGet, "/api/v1/engine/active", nil)
	got := decode[map[string]any](t, rec)
	assert.True(t, got["active"].(bool))
	assert.Equal(t, b.playbook.ID.String(), got["playbookId"].(string))

	rec = b.do(t, http.MethodPost, "/api/v1/engine/transcript", map[string]string{"turn": "what is the pricing"})
	require.Equal(t, http.StatusOK, rec.Code)
	suggestion := decode[map[string]map[string]any](t, rec)["suggestion"]
	require.NotNil(t, suggestion)
	assert.Equal(t, "Talk value before numbers.", suggestion["promptText"])
	assert.Equal(t, "Sales Demo", suggestion["playbookName"])

	rec = b.do(t, http.MethodPost, "/api/v1/engine/unload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = b.do(t, http.MethodGet, "/api/v1/engine/active", nil)
	assert.False(t, decode[map[string]any](t, rec)["active"].(bool))
}

func TestBridge_LoadUnknownPlaybook(t *testing.T) {
	b := newTestBridge(t)
	rec := b.do(t, http.MethodPost, "/api/v1/engine/load", map[string]string{"playbookId": "c1a3a9f2-0c68-4f13-9e4e-df3f27a0a001"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridge_PlaybookCRUD(t *testing.T) {
	b := newTestBridge(t)

	rec := b.do(t, http.MethodPost, "/api/v1/playbooks", map[string]any{
		"name":     "Renewal Calls",
		"category": "sales",
		"prompts": []map[string]any{
			{"triggerType": "keyword", "triggerValue": "renewal", "promptText": "Review terms.", "priority": 5, "orderIndex": 1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	id := created["ID"].(string)

	rec = b.do(t, http.MethodGet, "/api/v1/playbooks/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodDelete, "/api/v1/playbooks/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodGet, "/api/v1/playbooks/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridge_CollectionFlow(t *testing.T) {
	b := newTestBridge(t)
	id := b.playbook.ID.String()

	rec := b.do(t, http.MethodPost, "/api/v1/collection/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodPost, "/api/v1/collection/"+id+"/favorite", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodGet, "/api/v1/collection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodDelete, "/api/v1/collection/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBridge_ValidateLicense(t *testing.T) {
	b := newTestBridge(t)

	rec := b.do(t, http.MethodPost, "/api/v1/validate-license", map[string]string{
		"licenseKey": b.license.LicenseKey,
		"deviceId":   "device-a",
		"version":    "1.0.0",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[licensedomain.ValidationResult](t, rec)
	assert.True(t, result.Valid)
	assert.Equal(t, licensedomain.TierFree, result.Tier)

	rec = b.do(t, http.MethodPost, "/api/v1/validate-license", map[string]string{"deviceId": "device-a"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBridge_UseCreditUntilExhausted(t *testing.T) {
	b := newTestBridge(t)
	payload := map[string]string{"licenseKey": b.license.LicenseKey}

	for i := 0; i < 5; i++ {
		rec := b.do(t, http.MethodPost, "/api/v1/use-credit", payload)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("credit %d", i+1))
	}

	rec := b.do(t, http.MethodPost, "/api/v1/use-credit", payload)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = b.do(t, http.MethodPost, "/api/v1/use-credit", map[string]string{"licenseKey": "bogus"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
