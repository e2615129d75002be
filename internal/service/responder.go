package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/flockline/flockline/internal/model"
	"github.com/flockline/flockline/internal/repo"
)

var (
	registerNameRe = regexp.MustCompile(`(?i)^register\s+(.+)$`)
	giveAmountRe   = regexp.MustCompile(`(?i)give\s+(\d+)`)
	unsubscribeRe  = regexp.MustCompile(`(?i)\b(cancel|stop|unsubscribe)\b`)
)

// Responder turns a classified, possibly escalated inbound message into the
// reply text. It also applies the participant side effects that belong to the
// reply itself: registration on REGISTER from an unknown handle, and the
// ACTIVE→INACTIVE transition on an unsubscribe.
type Responder struct {
	participants repo.ParticipantRepository
}

func NewResponder(participants repo.ParticipantRepository) *Responder {
	return &Responder{participants: participants}
}

type ReplyInput struct {
	Tenant      model.Tenant
	Participant *model.Participant
	Handle      string
	Text        string
	Label       model.CommandLabel
	HasLabel    bool
	Escalated   bool
}

func (r *Responder) Compose(ctx context.Context, in ReplyInput) (string, error) {
	if in.Participant == nil {
		if in.HasLabel && in.Label == model.LabelRegister {
			return r.register(ctx, in)
		}
		return onboardingPrompt(in.Tenant), nil
	}

	if unsubscribeRe.MatchString(in.Text) {
		if err := r.participants.SetStatus(ctx, in.Participant.ID, model.ParticipantInactive); err != nil {
			return "", fmt.Errorf("unsubscribe: %w", err)
		}
		return fmt.Sprintf(
			"We're sorry to see you go %s. You've been unsubscribed from automated messages. Type REGISTER anytime to reactivate.",
			in.Participant.FullName), nil
	}

	if in.Escalated {
		if in.HasLabel && in.Label == model.LabelPrayer {
			return fmt.Sprintf(
				"Prayer request received. Dear %s, your request has been forwarded to our prayer team. We are standing with you in faith.",
				in.Participant.FullName), nil
		}
		return fmt.Sprintf(
			"Message received. Thank you %s, your message has been forwarded to our staff and someone will get back to you soon.",
			in.Participant.FullName), nil
	}

	if !in.HasLabel {
		return notUnderstood(in.Participant.FullName), nil
	}

	switch in.Label {
	case model.LabelRegister:
		return fmt.Sprintf("You're already registered as %s. Type INFO to view your details.", in.Participant.FullName), nil
	case model.LabelGive:
		if m := giveAmountRe.FindStringSubmatch(in.Text); m != nil {
			return fmt.Sprintf(
				"Offering of %s received, %s. Check your phone for the payment prompt to confirm. Thank you for your generous giving!",
				m[1], in.Participant.FullName), nil
		}
		return "To make an offering, type GIVE followed by the amount. Example: GIVE 1000", nil
	case model.LabelBalance:
		return fmt.Sprintf(
			"Hi %s, your giving summary is on its way. Thank you for your faithful giving!",
			in.Participant.FullName), nil
	case model.LabelInfo:
		return memberInfo(in.Tenant, *in.Participant), nil
	case model.LabelHelp:
		return helpMenu(), nil
	default:
		return notUnderstood(in.Participant.FullName), nil
	}
}

func (r *Responder) register(ctx context.Context, in ReplyInput) (string, error) {
	m := registerNameRe.FindStringSubmatch(strings.TrimSpace(in.Text))
	if m == nil {
		return "Invalid format. Please use: REGISTER [Your Full Name]. Example: REGISTER John Doe", nil
	}

	fullName := strings.TrimSpace(m[1])
	if len(strings.Fields(fullName)) < 2 {
		return "Please provide your full name (first and last name). Example: REGISTER John Doe", nil
	}

	p, err := r.participants.Register(ctx, in.Tenant.ID, participantHandle(in), fullName)
	if err != nil {
		return "", fmt.Errorf("register participant: %w", err)
	}

	return fmt.Sprintf(
		"Welcome to %s, %s! Registration complete. Type HELP to see what you can do.",
		in.Tenant.Name, p.FullName), nil
}

// participantHandle returns the handle the reply goes to. For registration
// the participant row does not exist yet, so the handle rides on the input.
func participantHandle(in ReplyInput) string {
	if in.Participant != nil {
		return in.Participant.Handle
	}
	return in.Handle
}

func onboardingPrompt(t model.Tenant) string {
	return fmt.Sprintf(
		"Welcome to %s! It looks like you're new here. Register by typing: REGISTER [Your Full Name]. Example: REGISTER John Doe",
		t.Name)
}

func memberInfo(t model.Tenant, p model.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your membership details: Name: %s, Phone: %s, Status: %s, Member since: %s.",
		p.FullName, p.Handle, p.Status, p.JoinedAt.Format("02 Jan 2006"))
	if t.Location != "" {
		fmt.Fprintf(&b, " %s, %s.", t.Name, t.Location)
	} else {
		fmt.Fprintf(&b, " %s.", t.Name)
	}
	return b.String()
}

func helpMenu() string {
	return strings.Join([]string{
		"Available commands:",
		"REGISTER [Name] - join",
		"GIVE [amount] - make an offering",
		"BALANCE - giving summary",
		"PRAYER - request prayer",
		"INFO - membership details",
		"HELP - show this menu",
	}, "\n")
}

func notUnderstood(name string) string {
	return fmt.Sprintf(
		"Sorry %s, I didn't quite understand that. Try: HELP, BALANCE, GIVE [amount], PRAYER, INFO. Or just type your question.",
		name)
}
