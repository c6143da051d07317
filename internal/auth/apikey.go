package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// TenantType is the closed set of application categories that can
// register for API access. The type determines the key prefix and any
// identifier format rules.
type TenantType string

const (
	TenantStorefront TenantType = "storefront"
	TenantApp        TenantType = "app"
	TenantCustom     TenantType = "custom"
	TenantDev        TenantType = "dev"
)

// keyPrefixes make keys human-debuggable without revealing anything.
var keyPrefixes = map[TenantType]string{
	TenantStorefront: "sf",
	TenantApp:        "app",
	TenantCustom:     "cus",
	TenantDev:        "dev",
}

// IsValid checks membership in the closed tenant type set.
func (t TenantType) IsValid() bool {
	_, ok := keyPrefixes[t]
	return ok
}

// storefrontNamePattern validates the host part of a storefront
// identifier: lowercase alphanumeric with hyphens.
var storefrontNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidIdentifier checks the tenant identifier format for a type.
// Storefront identifiers must look like "<name>.<suffix>".
func ValidIdentifier(tt TenantType, identifier, storefrontSuffix string) bool {
	if identifier == "" {
		return false
	}
	if tt != TenantStorefront {
		return true
	}
	suffix := "." + storefrontSuffix
	if !strings.HasSuffix(identifier, suffix) {
		return false
	}
	name := strings.TrimSuffix(identifier, suffix)
	return storefrontNamePattern.MatchString(name)
}

// GenerateKey creates an opaque API key: a type prefix for readability
// plus 256 bits of randomness.
func GenerateKey(tt TenantType) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return keyPrefixes[tt] + "_" + hex.EncodeToString(buf), nil
}

// HashKey returns the storable digest of a key. Plaintext keys are
// shown once at registration and never persisted.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
