package objstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/store"
)

func TestKey_PathScheme(t *testing.T) {
	cases := []struct {
		kind     store.Kind
		testMode bool
		task     string
		name     string
		want     string
	}{
		{store.KindImage, false, "t1", "0.png", "images/t1/0.png"},
		{store.KindImage, false, "t1", "1.webp", "images/t1/1.webp"},
		{store.KindModel, false, "t2", "model.glb", "models/t2/model.glb"},
		{store.KindModel, false, "t2", "preview.png", "models/t2/preview.png"},
		{store.KindImage, true, "t3", "0.jpeg", "test_outputs/images/t3/0.jpeg"},
		{store.KindModel, true, "t4", "model.obj", "test_outputs/models/t4/model.obj"},
	}
	for _, c := range cases {
		if got := Key(c.kind, c.testMode, c.task, c.name); got != c.want {
			t.Errorf("Key(%s, %v, %s, %s) = %q, want %q", c.kind, c.testMode, c.task, c.name, got, c.want)
		}
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer ts.Close()

	f := NewFetcher()
	got, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "image-bytes" {
		t.Fatalf("unexpected body %q", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetch_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), ts.URL)
	if !fault.IsKind(err, fault.KindInputFetch) {
		t.Fatalf("expected input_fetch_failed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("404 must not be retried, got %d attempts", calls)
	}
}

func TestContentTypeFor(t *testing.T) {
	if ContentTypeFor("model.glb") != "model/gltf-binary" {
		t.Fatal("glb content type")
	}
	if ContentTypeFor("0.png") != "image/png" {
		t.Fatal("png content type")
	}
	if ContentTypeFor("weird.bin") != "application/octet-stream" {
		t.Fatal("fallback content type")
	}
}
