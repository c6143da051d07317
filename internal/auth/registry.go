package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
)

// Tenant is an application authorized to call the API.
type Tenant struct {
	ID          uuid.UUID       `json:"id"`
	Type        TenantType      `json:"type"`
	Identifier  string          `json:"identifier"`
	DisplayName string          `json:"display_name"`
	Active      bool            `json:"active"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Authenticator resolves an API key to a tenant. Implemented by
// Registry; handler tests substitute mocks.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Tenant, error)
}

// keyCache is a read-mostly in-memory cache from key hash to tenant,
// refreshed on miss and invalidated when keys rotate.
type keyCache struct {
	mu      sync.RWMutex
	entries map[string]keyCacheEntry
}

type keyCacheEntry struct {
	tenant *Tenant
	expiry time.Time
}

const keyCacheTTL = 5 * time.Minute

func newKeyCache() *keyCache {
	c := &keyCache{entries: map[string]keyCacheEntry{}}
	go c.cleanupExpired()
	return c
}

func (c *keyCache) get(keyHash string) *Tenant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[keyHash]
	if !ok || time.Now().After(e.expiry) {
		return nil
	}
	return e.tenant
}

func (c *keyCache) set(keyHash string, t *Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyHash] = keyCacheEntry{tenant: t, expiry: time.Now().Add(keyCacheTTL)}
}

func (c *keyCache) invalidateTenant(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.tenant.ID == tenantID {
			delete(c.entries, k)
		}
	}
}

func (c *keyCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiry) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}

// Registry owns tenants and their API keys. One active key per tenant:
// re-registering an identifier issues a fresh key and deactivates the
// previous one.
type Registry struct {
	pool             *pgxpool.Pool
	secret           string
	storefrontSuffix string
	cache            *keyCache
}

func NewRegistry(pool *pgxpool.Pool, registrationSecret, storefrontSuffix string) *Registry {
	return &Registry{
		pool:             pool,
		secret:           registrationSecret,
		storefrontSuffix: storefrontSuffix,
		cache:            newKeyCache(),
	}
}

// RegisterInput is the registration request after JSON decoding.
type RegisterInput struct {
	VerificationSecret string          `json:"verification_secret"`
	TenantType         TenantType      `json:"tenant_type"`
	TenantIdentifier   string          `json:"tenant_identifier"`
	DisplayName        string          `json:"display_name"`
	Metadata           json.RawMessage `json:"metadata"`
}

// RegisterResult carries the one-time plaintext key.
type RegisterResult struct {
	APIKey     string     `json:"api_key"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	TenantType TenantType `json:"tenant_type"`
	Message    string     `json:"message"`
}

// Register validates the shared secret and identifier format, creates
// or reuses the tenant, and issues a new key.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if subtle.ConstantTimeCompare([]byte(in.VerificationSecret), []byte(r.secret)) != 1 {
		return nil, fault.New(fault.KindAuth, "Invalid verification secret")
	}
	if !in.TenantType.IsValid() {
		return nil, fault.New(fault.KindValidation, "tenant_type must be one of: storefront, app, custom, dev")
	}
	if !ValidIdentifier(in.TenantType, in.TenantIdentifier, r.storefrontSuffix) {
		return nil, fault.Newf(fault.KindValidation, "invalid tenant_identifier for type %s", in.TenantType)
	}

	meta := in.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var tenantID uuid.UUID
	var existing bool
	err = tx.QueryRow(ctx,
		`SELECT id FROM tenants WHERE identifier = $1`, in.TenantIdentifier,
	).Scan(&tenantID)
	switch err {
	case nil:
		existing = true
	case pgx.ErrNoRows:
		tenantID = uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO tenants (id, tenant_type, identifier, display_name, metadata)
			VALUES ($1, $2, $3, $4, $5)`,
			tenantID, in.TenantType, in.TenantIdentifier, in.DisplayName, meta)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	// One active key per tenant at a time.
	if existing {
		if _, err := tx.Exec(ctx,
			`UPDATE api_keys SET active = FALSE WHERE tenant_id = $1 AND active`, tenantID,
		); err != nil {
			return nil, err
		}
	}

	key, err := GenerateKey(in.TenantType)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, key_prefix, tenant_id)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), HashKey(key), key[:3], tenantID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.cache.invalidateTenant(tenantID)

	msg := "Tenant registered"
	if existing {
		msg = "Tenant already registered; previous key deactivated"
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("tenant_type", string(in.TenantType)).
		Bool("existing", existing).
		Msg("tenant registration")

	return &RegisterResult{
		APIKey:     key,
		TenantID:   tenantID,
		TenantType: in.TenantType,
		Message:    msg,
	}, nil
}

// Authenticate resolves an API key to its tenant. Lookup is
// hash-then-compare; plaintext keys are never stored.
func (r *Registry) Authenticate(ctx context.Context, apiKey string) (*Tenant, error) {
	keyHash := HashKey(apiKey)

	if t := r.cache.get(keyHash); t != nil {
		return t, nil
	}

	var t Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT t.id, t.tenant_type, t.identifier, t.display_name, t.active, t.metadata, t.created_at
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.key_hash = $1 AND k.active AND t.active`,
		keyHash,
	).Scan(&t.ID, &t.Type, &t.Identifier, &t.DisplayName, &t.Active, &t.Metadata, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fault.New(fault.KindAuth, "Invalid or inactive API key")
	}
	if err != nil {
		return nil, err
	}

	r.cache.set(keyHash, &t)
	return &t, nil
}
