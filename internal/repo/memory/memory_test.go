package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flockline/flockline/internal/model"
)

func TestUpsert_ConcurrentSameHandle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	convs := s.Conversations()
	ctx := context.Background()

	const workers = 50
	ids := make([]int64, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := convs.Upsert(ctx, tenant.ID, "+254711000001", nil)
			if err != nil {
				t.Errorf("Upsert: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got conversation %d, worker 0 got %d", i, ids[i], ids[0])
		}
	}
}

func TestInsert_ConcurrentDistinctMessages(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	msgs := s.Messages()
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := msgs.Insert(ctx, model.Message{
				TenantID:          tenant.ID,
				Handle:            "+254711000001",
				Direction:         model.Inbound,
				Body:              fmt.Sprintf("msg %d", i),
				ProviderMessageID: fmt.Sprintf("wamid.%03d", i),
				Status:            model.StatusSent,
			})
			if err != nil || !created {
				t.Errorf("Insert %d: created=%v err=%v", i, created, err)
			}
		}(i)
	}
	wg.Wait()

	c, err := s.Conversations().Upsert(ctx, tenant.ID, "+254711000001", nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if c.MessageCount != workers {
		t.Fatalf("MessageCount = %d, want %d", c.MessageCount, workers)
	}
	if c.UnreadCount != workers {
		t.Fatalf("UnreadCount = %d, want %d", c.UnreadCount, workers)
	}
}

func TestInsert_DuplicateProviderID(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	msgs := s.Messages()
	ctx := context.Background()

	m := model.Message{
		TenantID:          tenant.ID,
		Handle:            "+254711000001",
		Direction:         model.Inbound,
		Body:              "hello",
		ProviderMessageID: "wamid.ABC123",
		Status:            model.StatusSent,
	}

	first, created, err := msgs.Insert(ctx, m)
	if err != nil || !created {
		t.Fatalf("first Insert: created=%v err=%v", created, err)
	}

	second, created, err := msgs.Insert(ctx, m)
	if err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if created {
		t.Fatalf("second Insert reported created=true")
	}
	if second.ID != first.ID {
		t.Fatalf("second Insert returned message %d, want %d", second.ID, first.ID)
	}

	c, _ := s.Conversations().GetByID(ctx, first.ConversationID)
	if c.MessageCount != 1 || c.UnreadCount != 1 {
		t.Fatalf("counters = (%d, %d), want (1, 1)", c.MessageCount, c.UnreadCount)
	}
}

func TestInsert_CounterDirections(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	msgs := s.Messages()
	ctx := context.Background()

	in, _, err := msgs.Insert(ctx, model.Message{
		TenantID: tenant.ID, Handle: "+254711000001",
		Direction: model.Inbound, Body: "hi",
		ProviderMessageID: "wamid.IN1", Status: model.StatusSent,
	})
	if err != nil {
		t.Fatalf("inbound Insert: %v", err)
	}
	if _, _, err := msgs.Insert(ctx, model.Message{
		TenantID: tenant.ID, Handle: "+254711000001",
		Direction: model.Outbound, Body: "welcome",
		ProviderMessageID: "wamid.OUT1", Status: model.StatusSent,
	}); err != nil {
		t.Fatalf("outbound Insert: %v", err)
	}

	c, _ := s.Conversations().GetByID(ctx, in.ConversationID)
	if c.MessageCount != 2 {
		t.Fatalf("MessageCount = %d, want 2", c.MessageCount)
	}
	if c.UnreadCount != 1 {
		t.Fatalf("UnreadCount = %d, want 1 (outbound must not increment)", c.UnreadCount)
	}
	if c.LastMessage != "welcome" {
		t.Fatalf("LastMessage = %q, want %q", c.LastMessage, "welcome")
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	ctx := context.Background()

	m, _, err := s.Messages().Insert(ctx, model.Message{
		TenantID: tenant.ID, Handle: "+254711000001",
		Direction: model.Inbound, Body: "hi",
		ProviderMessageID: "wamid.R1", Status: model.StatusSent,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	convs := s.Conversations()
	for i := 0; i < 3; i++ {
		if err := convs.MarkRead(ctx, m.ConversationID); err != nil {
			t.Fatalf("MarkRead run %d: %v", i, err)
		}
	}
	c, _ := convs.GetByID(ctx, m.ConversationID)
	if c.UnreadCount != 0 {
		t.Fatalf("UnreadCount = %d, want 0", c.UnreadCount)
	}
}

func TestSetStatus_TerminalIsNoop(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	convs := s.Conversations()
	ctx := context.Background()

	c, err := convs.Upsert(ctx, tenant.ID, "+254711000001", nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := convs.SetStatus(ctx, c.ID, model.ConversationClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Archiving a closed conversation is a no-op, not an error.
	if err := convs.SetStatus(ctx, c.ID, model.ConversationArchived); err != nil {
		t.Fatalf("archive after close: %v", err)
	}
	got, _ := convs.GetByID(ctx, c.ID)
	if got.Status != model.ConversationClosed {
		t.Fatalf("status = %q, want CLOSED", got.Status)
	}
}

func TestSweepInactive(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	convs := s.Conversations()
	ctx := context.Background()

	stale, _ := convs.Upsert(ctx, tenant.ID, "+254711000001", nil)
	fresh, _ := convs.Upsert(ctx, tenant.ID, "+254711000002", nil)

	// Backdate the stale conversation past the cutoff.
	s.mu.Lock()
	c := s.conversations[stale.ID]
	c.LastMessageAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	s.conversations[stale.ID] = c
	s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	n, err := convs.SweepInactive(ctx, tenant.ID, cutoff)
	if err != nil {
		t.Fatalf("SweepInactive: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived %d conversations, want 1", n)
	}

	got, _ := convs.GetByID(ctx, stale.ID)
	if got.Status != model.ConversationArchived {
		t.Fatalf("stale status = %q, want ARCHIVED", got.Status)
	}
	got, _ = convs.GetByID(ctx, fresh.ID)
	if got.Status != model.ConversationActive {
		t.Fatalf("fresh status = %q, want ACTIVE", got.Status)
	}
}

func TestQueue_EnqueueIfAbsent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	queue := s.Queue()
	ctx := context.Background()

	item := model.QueueItem{
		TenantID:  tenant.ID,
		MessageID: 99,
		Handle:    "+254711000001",
		Category:  model.CategoryPrayer,
		Priority:  model.PriorityMedium,
	}

	first, created, err := queue.EnqueueIfAbsent(ctx, item)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	second, created, err := queue.EnqueueIfAbsent(ctx, item)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("second enqueue: created=%v id=%d, want existing item %d", created, second.ID, first.ID)
	}
}

func TestQueue_UpdateTransition_ClosedIsTerminal(t *testing.T) {
	t.Parallel()

	s := NewStore()
	tenant := s.AddTenant("Grace Chapel", "+254700000001")
	queue := s.Queue()
	ctx := context.Background()

	item, _, err := queue.EnqueueIfAbsent(ctx, model.QueueItem{
		TenantID: tenant.ID, MessageID: 7, Handle: "+254711000001",
		Category: model.CategoryOther, Priority: model.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	item.Status = model.QueueClosed
	if err := queue.UpdateTransition(ctx, item); err != nil {
		t.Fatalf("close: %v", err)
	}

	item.Status = model.QueueAssigned
	err = queue.UpdateTransition(ctx, item)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on closed item, got %v", err)
	}
}
