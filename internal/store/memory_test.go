package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/craftscale/genbridge/internal/fault"
)

func pendingRow(kind Kind) *Row {
	return &Row{
		ID:             uuid.New(),
		InternalTaskID: "01HTESTTASK" + uuid.NewString()[:8],
		ClientTaskID:   "task-" + uuid.NewString()[:8],
		TenantID:       uuid.New(),
		Kind:           kind,
		Provider:       "provider_a",
		RequestHash:    "abc",
	}
}

func TestCreatePending_DuplicateReturnsExisting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row := pendingRow(KindImage)
	created, _, err := m.CreatePending(ctx, row)
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create")
	}

	dup := *row
	dup.ID = uuid.New()
	dup.InternalTaskID = "other"
	created, existing, err := m.CreatePending(ctx, &dup)
	if err != nil {
		t.Fatalf("CreatePending dup: %v", err)
	}
	if created {
		t.Fatal("duplicate client_task_id must not create a second row")
	}
	if existing == nil || existing.InternalTaskID != row.InternalTaskID {
		t.Fatalf("expected existing row with original internal task id, got %+v", existing)
	}
}

func TestStatusTransitions_Monotonic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row := pendingRow(KindModel)
	if _, _, err := m.CreatePending(ctx, row); err != nil {
		t.Fatal(err)
	}

	// complete before processing must be rejected
	if _, _, err := m.SetComplete(ctx, KindModel, row.ID, "url"); err == nil {
		t.Fatal("SetComplete on pending row should fail")
	}

	if err := m.SetProcessing(ctx, KindModel, row.ID); err != nil {
		t.Fatalf("SetProcessing: %v", err)
	}

	// second SetProcessing is a duplicate delivery
	if err := m.SetProcessing(ctx, KindModel, row.ID); !fault.IsKind(err, fault.KindDBConflict) {
		t.Fatalf("expected db_conflict on double processing, got %v", err)
	}

	won, url, err := m.SetComplete(ctx, KindModel, row.ID, "https://store/models/t/model.glb")
	if err != nil || !won {
		t.Fatalf("SetComplete: won=%v err=%v", won, err)
	}
	if url != "https://store/models/t/model.glb" {
		t.Fatalf("unexpected url %q", url)
	}

	// terminal rows never change again
	if err := m.SetFailed(ctx, KindModel, row.ID, "late failure"); err != nil {
		t.Fatalf("SetFailed on terminal row should be a no-op, got %v", err)
	}
	got, err := m.Get(ctx, KindModel, row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusComplete {
		t.Fatalf("status regressed to %s", got.Status)
	}
}

func TestSetComplete_ConcurrentCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row := pendingRow(KindModel)
	if _, _, err := m.CreatePending(ctx, row); err != nil {
		t.Fatal(err)
	}
	if err := m.SetProcessing(ctx, KindModel, row.ID); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	urls := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, url, err := m.SetComplete(ctx, KindModel, row.ID, "https://store/models/t/model.glb")
			if err != nil {
				t.Errorf("SetComplete: %v", err)
				return
			}
			wins <- won
			urls <- url
		}(i)
	}
	wg.Wait()
	close(wins)
	close(urls)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", winners)
	}
	for u := range urls {
		if u != "https://store/models/t/model.glb" {
			t.Fatalf("all finalizers must observe the same asset url, got %q", u)
		}
	}
}

func TestKindPlural(t *testing.T) {
	if KindImage.Plural() != "images" || KindModel.Plural() != "models" {
		t.Fatal("kind plural mapping broken")
	}
}
