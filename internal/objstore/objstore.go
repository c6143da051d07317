package objstore

import (
	"context"
	"fmt"

	"github.com/craftscale/genbridge/internal/store"
)

// Store uploads artifacts to deterministic paths and returns permanent
// URLs. Uploads are idempotent by key; repeating an upload overwrites.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Key builds the canonical object path for a task artifact:
// {kind_plural}/{client_task_id}/{name}, prefixed with test_outputs/
// when the service runs in test-assets mode. All artifacts for one task
// share the folder; determinism is what makes cross-task collisions
// impossible.
func Key(kind store.Kind, testMode bool, clientTaskID, name string) string {
	key := fmt.Sprintf("%s/%s/%s", kind.Plural(), clientTaskID, name)
	if testMode {
		return "test_outputs/" + key
	}
	return key
}

// ContentTypeFor maps an artifact filename extension to a MIME type.
func ContentTypeFor(name string) string {
	switch {
	case hasSuffix(name, ".png"):
		return "image/png"
	case hasSuffix(name, ".jpeg"), hasSuffix(name, ".jpg"):
		return "image/jpeg"
	case hasSuffix(name, ".webp"):
		return "image/webp"
	case hasSuffix(name, ".glb"):
		return "model/gltf-binary"
	case hasSuffix(name, ".obj"):
		return "model/obj"
	default:
		return "application/octet-stream"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
