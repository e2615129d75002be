// Package escalate decides whether an inbound message is routed to the human
// work queue. The decision is a pure function of (text, label): rules are
// evaluated top to bottom and the first match fixes category and priority.
package escalate

import (
	"strings"

	"github.com/flockline/flockline/internal/model"
)

// longMessageThreshold is the length past which unmatched free-form text is
// treated as a concern that deserves a human reader.
const longMessageThreshold = 200

type Decision struct {
	Escalate bool
	Category model.QueueCategory
	Priority model.QueuePriority
}

var (
	urgencyKeywords    = []string{"urgent", "emergency", "asap", "right now"}
	counselingKeywords = []string{"counseling", "counsel", "advice", "problem", "help me", "confused", "difficult", "struggling"}
	complaintKeywords  = []string{"complaint", "complain", "issue", "disappointed"}
)

// Decide routes (text, label) to an escalation decision. label is the
// classifier result, empty when unclassified. The zero Decision means no
// escalation.
func Decide(text string, label model.CommandLabel) Decision {
	lower := strings.ToLower(text)

	// Prayer requests always reach the staff queue.
	if label == model.LabelPrayer {
		priority := model.PriorityMedium
		if containsAny(lower, urgencyKeywords) {
			priority = model.PriorityHigh
		}
		return Decision{Escalate: true, Category: model.CategoryPrayer, Priority: priority}
	}

	if len(text) > longMessageThreshold {
		return Decision{Escalate: true, Category: model.CategoryOther, Priority: model.PriorityMedium}
	}

	if containsAny(lower, counselingKeywords) {
		return Decision{Escalate: true, Category: model.CategoryCounseling, Priority: model.PriorityMedium}
	}

	if containsAny(lower, urgencyKeywords) {
		return Decision{Escalate: true, Category: model.CategoryInquiry, Priority: model.PriorityHigh}
	}

	if containsAny(lower, complaintKeywords) {
		return Decision{Escalate: true, Category: model.CategoryComplaint, Priority: model.PriorityHigh}
	}

	return Decision{}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
