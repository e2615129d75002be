package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flockline/flockline/internal/cache"
	"github.com/flockline/flockline/internal/channel"
	"github.com/flockline/flockline/internal/command"
	"github.com/flockline/flockline/internal/escalate"
	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo"
)

// Pipeline drives one inbound delivery end to end: persist, classify, decide
// escalation, enqueue, reply, persist the reply, audit. Everything up to the
// outbound send is committed before the send runs; a transport failure is
// recorded in the audit entry and never rolls the inbound side back.
type Pipeline struct {
	participants repo.ParticipantRepository
	messages     repo.MessageRepository
	audit        repo.AuditRepository
	queue        *Queue
	responder    *Responder
	out          channel.SendClient
	dedupe       cache.DedupeCache // optional fast path, may be nil
	now          func() time.Time
}

func NewPipeline(
	participants repo.ParticipantRepository,
	messages repo.MessageRepository,
	audit repo.AuditRepository,
	queue *Queue,
	responder *Responder,
	out channel.SendClient,
	dedupe cache.DedupeCache,
) *Pipeline {
	return &Pipeline{
		participants: participants,
		messages:     messages,
		audit:        audit,
		queue:        queue,
		responder:    responder,
		out:          out,
		dedupe:       dedupe,
		now:          time.Now,
	}
}

type Result struct {
	Message   model.Message
	Duplicate bool
	Label     model.CommandLabel
	HasLabel  bool
	Decision  escalate.Decision
	QueueItem *model.QueueItem
	Reply     string
	SendError string
}

// HandleInbound processes one (handle, text, providerMessageID) delivery for
// the resolved tenant. Safe to call again with the same provider message id:
// the duplicate short-circuits before classification with no side effects.
func (p *Pipeline) HandleInbound(ctx context.Context, tenant model.Tenant, handle, text, providerMessageID string) (Result, error) {
	start := p.now()
	log := slog.With("tenant_id", tenant.ID, "handle", handle, "provider_message_id", providerMessageID)

	if p.dedupe != nil {
		if seen, err := p.dedupe.Seen(ctx, providerMessageID); err == nil && seen {
			if existing, err := p.messages.GetByProviderID(ctx, providerMessageID); err == nil {
				log.Info("duplicate delivery short-circuited", "stage", "cache")
				return Result{Message: existing, Duplicate: true}, nil
			}
		}
	}

	var participantID *int64
	participant, err := p.participants.FindByHandle(ctx, tenant.ID, handle)
	switch {
	case err == nil:
		participantID = &participant.ID
	case errors.Is(err, model.ErrNotFound):
		// Unregistered handles still get a conversation and a reply.
	default:
		return Result{}, fmt.Errorf("find participant: %w", err)
	}

	msg, created, err := p.messages.Insert(ctx, model.Message{
		TenantID:          tenant.ID,
		ParticipantID:     participantID,
		Handle:            handle,
		Direction:         model.Inbound,
		Body:              text,
		ProviderMessageID: providerMessageID,
		Status:            model.StatusSent,
	})
	if err != nil {
		return Result{}, fmt.Errorf("record inbound: %w", err)
	}
	if !created {
		p.markSeen(ctx, providerMessageID)
		log.Info("duplicate delivery short-circuited", "stage", "store")
		return Result{Message: msg, Duplicate: true}, nil
	}

	if participantID != nil {
		if err := p.participants.TouchLastActive(ctx, *participantID); err != nil {
			log.Warn("touch last active failed", "error", err)
		}
	}

	label, hasLabel := command.Classify(text)
	decision := escalate.Decide(text, label)

	var labelPtr *model.CommandLabel
	if hasLabel {
		labelPtr = &label
	}
	if err := p.messages.MarkProcessed(ctx, msg.ID, labelPtr, decision.Escalate); err != nil {
		return Result{}, fmt.Errorf("mark processed: %w", err)
	}

	res := Result{Message: msg, Label: label, HasLabel: hasLabel, Decision: decision}

	if decision.Escalate {
		item, _, err := p.queue.Enqueue(ctx, msg, decision)
		if err != nil {
			return Result{}, fmt.Errorf("enqueue escalation: %w", err)
		}
		res.QueueItem = &item
	}

	var participantPtr *model.Participant
	if participantID != nil {
		participantPtr = &participant
	}
	reply, err := p.responder.Compose(ctx, ReplyInput{
		Tenant:      tenant,
		Participant: participantPtr,
		Handle:      handle,
		Text:        text,
		Label:       label,
		HasLabel:    hasLabel,
		Escalated:   decision.Escalate,
	})
	if err != nil {
		return Result{}, fmt.Errorf("compose reply: %w", err)
	}
	res.Reply = reply

	// Inbound-side state is committed; the send is a best-effort side effect
	// with its own failure handling.
	outboundID, sendErr := p.out.Send(ctx, handle, reply)
	if sendErr != nil {
		res.SendError = sendErr.Error()
		log.Error("outbound send failed", "stage", "send", "error", sendErr)
	} else {
		if _, _, err := p.messages.Insert(ctx, model.Message{
			TenantID:          tenant.ID,
			ParticipantID:     participantID,
			Handle:            handle,
			Direction:         model.Outbound,
			Body:              reply,
			ProviderMessageID: outboundID,
			Status:            model.StatusSent,
		}); err != nil {
			log.Error("record outbound failed", "stage", "persist-outbound", "error", err)
		}
	}

	p.markSeen(ctx, providerMessageID)
	p.writeAudit(ctx, tenant.ID, handle, text, labelPtr, reply, sendErr, p.now().Sub(start))

	log.Info("inbound processed",
		"label", string(label), "escalated", decision.Escalate,
		"duplicate", false, "send_failed", sendErr != nil,
		"latency_ms", p.now().Sub(start).Milliseconds())
	return res, nil
}

func (p *Pipeline) markSeen(ctx context.Context, providerMessageID string) {
	if p.dedupe == nil {
		return
	}
	if err := p.dedupe.MarkSeen(ctx, providerMessageID); err != nil {
		slog.Warn("dedupe cache write failed", "provider_message_id", providerMessageID, "error", err)
	}
}

func (p *Pipeline) writeAudit(ctx context.Context, tenantID int64, handle, text string, label *model.CommandLabel, reply string, sendErr error, latency time.Duration) {
	entry := model.AuditEntry{
		TenantID:     tenantID,
		Handle:       handle,
		Command:      label,
		CommandText:  text,
		Success:      sendErr == nil,
		ResponseSent: reply,
		LatencyMS:    latency.Milliseconds(),
	}
	if sendErr != nil {
		detail := sendErr.Error()
		entry.ErrorDetail = &detail
	}
	if _, err := p.audit.Insert(ctx, entry); err != nil {
		slog.Error("audit insert failed", "handle", handle, "error", err)
	}
}
