package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/craftscale/genbridge/internal/fault"
)

func TestGenerateKey_PrefixAndEntropy(t *testing.T) {
	cases := map[TenantType]string{
		TenantStorefront: "sf_",
		TenantApp:        "app_",
		TenantCustom:     "cus_",
		TenantDev:        "dev_",
	}
	for tt, prefix := range cases {
		key, err := GenerateKey(tt)
		if err != nil {
			t.Fatalf("GenerateKey(%s): %v", tt, err)
		}
		if !strings.HasPrefix(key, prefix) {
			t.Errorf("key %q missing prefix %q", key, prefix)
		}
		// 32 random bytes hex-encoded
		if got := len(key) - len(prefix); got != 64 {
			t.Errorf("key random part length = %d, want 64", got)
		}
	}

	a, _ := GenerateKey(TenantDev)
	b, _ := GenerateKey(TenantDev)
	if a == b {
		t.Fatal("two generated keys collided")
	}
}

func TestHashKey_Stable(t *testing.T) {
	if HashKey("sf_abc") != HashKey("sf_abc") {
		t.Fatal("hash must be deterministic")
	}
	if HashKey("sf_abc") == HashKey("sf_abd") {
		t.Fatal("distinct keys must hash differently")
	}
}

func TestValidIdentifier(t *testing.T) {
	suffix := "myshop.example.com"
	cases := []struct {
		tt   TenantType
		id   string
		want bool
	}{
		{TenantStorefront, "acme.myshop.example.com", true},
		{TenantStorefront, "acme-store.myshop.example.com", true},
		{TenantStorefront, "acme", false},
		{TenantStorefront, "Acme.myshop.example.com", false},
		{TenantStorefront, ".myshop.example.com", false},
		{TenantStorefront, "", false},
		{TenantApp, "com.example.app", true},
		{TenantDev, "local-tester", true},
		{TenantCustom, "", false},
	}
	for _, c := range cases {
		if got := ValidIdentifier(c.tt, c.id, suffix); got != c.want {
			t.Errorf("ValidIdentifier(%s, %q) = %v, want %v", c.tt, c.id, got, c.want)
		}
	}
}

func TestTenantType_IsValid(t *testing.T) {
	for _, tt := range []TenantType{TenantStorefront, TenantApp, TenantCustom, TenantDev} {
		if !tt.IsValid() {
			t.Errorf("%s should be valid", tt)
		}
	}
	if TenantType("admin").IsValid() {
		t.Error("unknown tenant type accepted")
	}
}

type mockAuthenticator struct {
	authenticateFunc func(ctx context.Context, key string) (*Tenant, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, key string) (*Tenant, error) {
	return m.authenticateFunc(ctx, key)
}

func TestMiddleware_MissingKey(t *testing.T) {
	mw := Middleware(&mockAuthenticator{
		authenticateFunc: func(ctx context.Context, key string) (*Tenant, error) {
			t.Fatal("authenticator must not be called without a key")
			return nil, nil
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/generate/text-to-image", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "Missing API key" {
		t.Fatalf("unexpected error wording %q", body["error"])
	}
}

func TestMiddleware_InvalidKey(t *testing.T) {
	mw := Middleware(&mockAuthenticator{
		authenticateFunc: func(ctx context.Context, key string) (*Tenant, error) {
			return nil, fault.New(fault.KindAuth, "Invalid or inactive API key")
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest("POST", "/generate/text-to-image", nil)
	req.Header.Set("X-API-Key", "sf_bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] != "Invalid or inactive API key" {
		t.Fatalf("unexpected error wording %q", body["error"])
	}
}

func TestMiddleware_ValidKeyStoresTenant(t *testing.T) {
	want := &Tenant{ID: uuid.New(), Type: TenantDev, Identifier: "local", Active: true}
	mw := Middleware(&mockAuthenticator{
		authenticateFunc: func(ctx context.Context, key string) (*Tenant, error) {
			if key != "dev_good" {
				t.Fatalf("unexpected key %q", key)
			}
			return want, nil
		},
	})

	var got *Tenant
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TenantFrom(r.Context())
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/tasks/x/status", nil)
	req.Header.Set("X-API-Key", "dev_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.ID != want.ID {
		t.Fatalf("tenant not propagated: %+v", got)
	}
}

func TestKeyCache_SetGetInvalidate(t *testing.T) {
	c := newKeyCache()
	tenant := &Tenant{ID: uuid.New(), Type: TenantApp}
	hash := HashKey("app_key")

	if c.get(hash) != nil {
		t.Fatal("empty cache returned a tenant")
	}
	c.set(hash, tenant)
	if got := c.get(hash); got == nil || got.ID != tenant.ID {
		t.Fatal("cache miss after set")
	}
	c.invalidateTenant(tenant.ID)
	if c.get(hash) != nil {
		t.Fatal("cache hit after invalidation")
	}
}
