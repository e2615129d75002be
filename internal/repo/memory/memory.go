// Package memory holds map-backed implementations of the repo interfaces.
// They serve the service and pipeline tests, and double as the keyed-mutex
// rendition of the conversation upsert: a per-(tenant, handle) lock is held
// for the whole upsert-and-append, so concurrent deliveries for one handle
// can never create two conversations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flockline/flockline/internal/model"
)

type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	tenants       []model.Tenant
	participants  map[int64]model.Participant
	conversations map[int64]model.Conversation
	messages      map[int64]model.Message
	queueItems    map[int64]model.QueueItem
	audit         []model.AuditEntry

	participantByKey  map[string]int64
	conversationByKey map[string]int64
	messageByProvider map[string]int64
	queueByMessage    map[int64]int64

	nextID int64
}

func NewStore() *Store {
	return &Store{
		locks:             make(map[string]*sync.Mutex),
		participants:      make(map[int64]model.Participant),
		conversations:     make(map[int64]model.Conversation),
		messages:          make(map[int64]model.Message),
		queueItems:        make(map[int64]model.QueueItem),
		participantByKey:  make(map[string]int64),
		conversationByKey: make(map[string]int64),
		messageByProvider: make(map[string]int64),
		queueByMessage:    make(map[int64]int64),
	}
}

func (s *Store) Tenants() *TenantRepo             { return &TenantRepo{s: s} }
func (s *Store) Participants() *ParticipantRepo   { return &ParticipantRepo{s: s} }
func (s *Store) Conversations() *ConversationRepo { return &ConversationRepo{s: s} }
func (s *Store) Messages() *MessageRepo           { return &MessageRepo{s: s} }
func (s *Store) Queue() *QueueRepo                { return &QueueRepo{s: s} }
func (s *Store) Audit() *AuditRepo                { return &AuditRepo{s: s} }

// AddTenant seeds a tenant; test setup helper.
func (s *Store) AddTenant(name, channelNumber string) model.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := model.Tenant{
		ID:            s.id(),
		Name:          name,
		ChannelNumber: channelNumber,
		CreatedAt:     time.Now().UTC(),
	}
	s.tenants = append(s.tenants, t)
	return t
}

// id allocates the next identifier. Callers hold s.mu.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func key(tenantID int64, handle string) string {
	return fmt.Sprintf("%d/%s", tenantID, handle)
}

// handleLock returns the mutex serializing upsert-or-create for one
// (tenant, handle) pair.
func (s *Store) handleLock(tenantID int64, handle string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, handle)
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// upsertConversationLocked creates or returns the conversation for the pair.
// Callers hold both the handle lock and s.mu.
func (s *Store) upsertConversationLocked(tenantID int64, handle string, participantID *int64) model.Conversation {
	k := key(tenantID, handle)
	if id, ok := s.conversationByKey[k]; ok {
		c := s.conversations[id]
		if c.ParticipantID == nil && participantID != nil {
			c.ParticipantID = participantID
			c.UpdatedAt = time.Now().UTC()
			s.conversations[id] = c
		}
		return c
	}

	now := time.Now().UTC()
	c := model.Conversation{
		ID:            s.id(),
		TenantID:      tenantID,
		ParticipantID: participantID,
		Handle:        handle,
		Status:        model.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.conversations[c.ID] = c
	s.conversationByKey[k] = c.ID
	return c
}

type TenantRepo struct{ s *Store }

func (r *TenantRepo) ResolveByChannelNumber(_ context.Context, channelNumber string) (model.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenants {
		if t.ChannelNumber == channelNumber {
			return t, nil
		}
	}
	return model.Tenant{}, fmt.Errorf("tenant for channel %q: %w", channelNumber, model.ErrNotFound)
}

func (r *TenantRepo) List(_ context.Context) ([]model.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Tenant, len(r.s.tenants))
	copy(out, r.s.tenants)
	return out, nil
}

type ParticipantRepo struct{ s *Store }

func (r *ParticipantRepo) FindByHandle(_ context.Context, tenantID int64, handle string) (model.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.participantByKey[key(tenantID, handle)]; ok {
		return r.s.participants[id], nil
	}
	return model.Participant{}, fmt.Errorf("participant %q: %w", handle, model.ErrNotFound)
}

func (r *ParticipantRepo) Register(_ context.Context, tenantID int64, handle, fullName string) (model.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := r.s.participantByKey[key(tenantID, handle)]; ok {
		p := r.s.participants[id]
		p.FullName = fullName
		p.Status = model.ParticipantActive
		p.LastActiveAt = now
		r.s.participants[id] = p
		return p, nil
	}

	p := model.Participant{
		ID:           r.s.id(),
		TenantID:     tenantID,
		Handle:       handle,
		FullName:     fullName,
		Status:       model.ParticipantActive,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	r.s.participants[p.ID] = p
	r.s.participantByKey[key(tenantID, handle)] = p.ID
	return p, nil
}

func (r *ParticipantRepo) SetStatus(_ context.Context, id int64, status model.ParticipantStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[id]
	if !ok {
		return fmt.Errorf("participant %d: %w", id, model.ErrNotFound)
	}
	p.Status = status
	p.LastActiveAt = time.Now().UTC()
	r.s.participants[id] = p
	return nil
}

func (r *ParticipantRepo) TouchLastActive(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.participants[id]; ok {
		p.LastActiveAt = time.Now().UTC()
		r.s.participants[id] = p
	}
	return nil
}

type ConversationRepo struct{ s *Store }

func (r *ConversationRepo) Upsert(_ context.Context, tenantID int64, handle string, participantID *int64) (model.Conversation, error) {
	l := r.s.handleLock(tenantID, handle)
	l.Lock()
	defer l.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.upsertConversationLocked(tenantID, handle, participantID), nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id int64) (model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (r *ConversationRepo) ListByStatus(_ context.Context, tenantID int64, status model.ConversationStatus, limit, offset int) ([]model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Conversation
	for _, c := range r.s.conversations {
		if c.TenantID == tenantID && c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return paginate(out, limit, offset), nil
}

func (r *ConversationRepo) ListUnread(_ context.Context, tenantID int64) ([]model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Conversation
	for _, c := range r.s.conversations {
		if c.TenantID == tenantID && c.UnreadCount > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *ConversationRepo) MarkRead(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	c.UnreadCount = 0
	c.UpdatedAt = time.Now().UTC()
	r.s.conversations[id] = c
	return nil
}

func (r *ConversationRepo) SetStatus(_ context.Context, id int64, status model.ConversationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	if c.Status != model.ConversationActive {
		return nil
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	r.s.conversations[id] = c
	return nil
}

func (r *ConversationRepo) SweepInactive(_ context.Context, tenantID int64, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, c := range r.s.conversations {
		if c.TenantID == tenantID && c.Status == model.ConversationActive && c.LastMessageAt.Before(cutoff) {
			c.Status = model.ConversationArchived
			c.UpdatedAt = time.Now().UTC()
			r.s.conversations[id] = c
			n++
		}
	}
	return n, nil
}

type MessageRepo struct{ s *Store }

func (r *MessageRepo) Insert(_ context.Context, m model.Message) (model.Message, bool, error) {
	l := r.s.handleLock(m.TenantID, m.Handle)
	l.Lock()
	defer l.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.messageByProvider[m.ProviderMessageID]; ok {
		return r.s.messages[id], false, nil
	}

	conv := r.s.upsertConversationLocked(m.TenantID, m.Handle, m.ParticipantID)

	now := time.Now().UTC()
	m.ID = r.s.id()
	m.ConversationID = conv.ID
	m.CreatedAt = now
	m.UpdatedAt = now
	r.s.messages[m.ID] = m
	r.s.messageByProvider[m.ProviderMessageID] = m.ID

	conv.LastMessage = m.Body
	conv.LastMessageAt = now
	conv.MessageCount++
	if m.Direction == model.Inbound {
		conv.UnreadCount++
	}
	conv.UpdatedAt = now
	r.s.conversations[conv.ID] = conv

	return m, true, nil
}

func (r *MessageRepo) GetByID(_ context.Context, id int64) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %d: %w", id, model.ErrNotFound)
	}
	return m, nil
}

func (r *MessageRepo) GetByProviderID(_ context.Context, providerMessageID string) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.messageByProvider[providerMessageID]; ok {
		return r.s.messages[id], nil
	}
	return model.Message{}, fmt.Errorf("message %q: %w", providerMessageID, model.ErrNotFound)
}

func (r *MessageRepo) MarkProcessed(_ context.Context, id int64, label *model.CommandLabel, escalated bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return fmt.Errorf("message %d: %w", id, model.ErrNotFound)
	}
	m.Command = label
	m.Escalated = escalated
	m.Processed = true
	m.UpdatedAt = time.Now().UTC()
	r.s.messages[id] = m
	return nil
}

func (r *MessageRepo) UpdateStatus(_ context.Context, providerMessageID string, status model.DeliveryStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.messageByProvider[providerMessageID]
	if !ok {
		return fmt.Errorf("message %q: %w", providerMessageID, model.ErrNotFound)
	}
	m := r.s.messages[id]
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	r.s.messages[id] = m
	return nil
}

func (r *MessageRepo) ListByConversation(_ context.Context, conversationID int64, limit, offset int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Message
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

type QueueRepo struct{ s *Store }

func (r *QueueRepo) EnqueueIfAbsent(_ context.Context, item model.QueueItem) (model.QueueItem, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.queueByMessage[item.MessageID]; ok {
		return r.s.queueItems[id], false, nil
	}

	now := time.Now().UTC()
	item.ID = r.s.id()
	item.Status = model.QueuePending
	item.CreatedAt = now
	item.UpdatedAt = now
	r.s.queueItems[item.ID] = item
	r.s.queueByMessage[item.MessageID] = item.ID
	return item, true, nil
}

func (r *QueueRepo) GetByID(_ context.Context, id int64) (model.QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.queueItems[id]
	if !ok {
		return model.QueueItem{}, fmt.Errorf("queue item %d: %w", id, model.ErrNotFound)
	}
	return q, nil
}

func (r *QueueRepo) ListByStatus(_ context.Context, tenantID int64, status model.QueueStatus, limit, offset int) ([]model.QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.QueueItem
	for _, q := range r.s.queueItems {
		if q.TenantID == tenantID && q.Status == status {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *QueueRepo) CountByStatus(_ context.Context, tenantID int64, status model.QueueStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, q := range r.s.queueItems {
		if q.TenantID == tenantID && q.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *QueueRepo) UpdateTransition(_ context.Context, item model.QueueItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.queueItems[item.ID]
	if !ok {
		return fmt.Errorf("queue item %d: %w", item.ID, model.ErrNotFound)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("queue item %d is closed: %w", item.ID, model.ErrInvalidTransition)
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	r.s.queueItems[item.ID] = item
	return nil
}

type AuditRepo struct{ s *Store }

func (r *AuditRepo) Insert(_ context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	e.CreatedAt = time.Now().UTC()
	r.s.audit = append(r.s.audit, e)
	return e, nil
}

func (r *AuditRepo) ListRecent(_ context.Context, tenantID int64, limit, offset int) ([]model.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if r.s.audit[i].TenantID == tenantID {
			out = append(out, r.s.audit[i])
		}
	}
	return paginate(out, limit, offset), nil
}

func paginate[T any](in []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
