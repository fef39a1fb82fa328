package model

import "github.com/ppiankov/busgate/internal/catalog"

// Verdict is the recorded outcome of one policy check.
type Verdict string

const (
	Allowed            Verdict = "allowed"
	Forbidden          Verdict = "forbidden"
	InsufficientLevel  Verdict = "insufficient_safety_level"
	RateLimited        Verdict = "rate_limited"
	ProfileUnavailable Verdict = "not_available_in_profile"
	Uncategorized      Verdict = "uncategorized_denied"
)

// Verdicts lists every verdict, allowed first.
var Verdicts = []Verdict{Allowed, Forbidden, InsufficientLevel, RateLimited, ProfileUnavailable, Uncategorized}

// Denied reports whether the verdict refuses the operation.
func (v Verdict) Denied() bool {
	return v != Allowed
}

// InteractionInfo tells the caller that an allowed operation will block on
// a human at the desktop.
type InteractionInfo struct {
	Category string                  `json:"category"`
	Kind     catalog.InteractionKind `json:"kind"`
	Message  string                  `json:"message"`
}

// NewInteractionInfo builds the advisory for an interactive category.
// ok is false when the category needs no interaction.
func NewInteractionInfo(cat catalog.Category) (InteractionInfo, bool) {
	if !cat.RequiresInteraction {
		return InteractionInfo{}, false
	}
	info := InteractionInfo{Category: cat.Name, Kind: cat.Interaction}
	switch cat.Interaction {
	case catalog.InteractionSelection:
		info.Message = "This operation requires user interaction: click on the target when prompted."
	case catalog.InteractionConfirmation:
		info.Message = "This operation requires user confirmation."
	default:
		info.Message = "This operation requires user interaction."
	}
	return info, true
}

// Decision is the answer to a policy check. Denials are ordinary values:
// a refused operation never surfaces as an error.
type Decision struct {
	Allowed     bool             `json:"allowed"`
	Verdict     Verdict          `json:"verdict"`
	Reason      string           `json:"reason"`
	Category    string           `json:"category,omitempty"`
	Tier        string           `json:"tier,omitempty"`
	Interaction *InteractionInfo `json:"interaction,omitempty"`
}

// Allow builds an allowing decision.
func Allow(reason string) Decision {
	return Decision{Allowed: true, Verdict: Allowed, Reason: reason}
}

// Deny builds a denying decision with the given verdict.
func Deny(v Verdict, reason string) Decision {
	return Decision{Verdict: v, Reason: reason}
}
