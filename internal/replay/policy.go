package replay

import (
	"strings"

	"journey-replay/internal/geo"
	"journey-replay/internal/journey"
)

// DefaultAlertLabel is the journey label that stops a member in place.
const DefaultAlertLabel = "sudden halt"

type Outcome int

const (
	Advancing Outcome = iota
	Frozen
)

func (o Outcome) String() string {
	if o == Frozen {
		return "frozen"
	}
	return "advancing"
}

// Decision says whether a member keeps following its journey. FrozenAt is
// only set for Frozen; Newly marks the tick the freeze began.
type Decision struct {
	Outcome  Outcome
	FrozenAt geo.LatLng
	Newly    bool
}

type freeze struct {
	at  geo.LatLng
	key string
}

// Policy holds members still on an alert until someone dismisses it. A
// dismissed alert stays dismissed until the member's label moves on, so the
// same halt does not refreeze on the next tick.
type Policy struct {
	alertLabel string
	frozen     map[string]freeze
	dismissed  map[string]string
}

func NewPolicy(alertLabel string) *Policy {
	if strings.TrimSpace(alertLabel) == "" {
		alertLabel = DefaultAlertLabel
	}
	return &Policy{
		alertLabel: alertLabel,
		frozen:     make(map[string]freeze),
		dismissed:  make(map[string]string),
	}
}

func (p *Policy) AlertLabel() string { return p.alertLabel }

func (p *Policy) IsAlert(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), p.alertLabel)
}

func (p *Policy) Decide(memberID string, s journey.Sample) Decision {
	if f, ok := p.frozen[memberID]; ok {
		return Decision{Outcome: Frozen, FrozenAt: f.at}
	}
	if !p.IsAlert(s.Label) {
		delete(p.dismissed, memberID)
		return Decision{Outcome: Advancing}
	}
	key := alertKey(s)
	if p.dismissed[memberID] == key {
		return Decision{Outcome: Advancing}
	}
	p.frozen[memberID] = freeze{at: s.Position, key: key}
	return Decision{Outcome: Frozen, FrozenAt: s.Position, Newly: true}
}

// Dismiss releases a frozen member. It reports whether the member was frozen.
func (p *Policy) Dismiss(memberID string) bool {
	f, ok := p.frozen[memberID]
	if !ok {
		return false
	}
	delete(p.frozen, memberID)
	p.dismissed[memberID] = f.key
	return true
}

func (p *Policy) FrozenAt(memberID string) (geo.LatLng, bool) {
	f, ok := p.frozen[memberID]
	return f.at, ok
}

func (p *Policy) Count() int { return len(p.frozen) }

func (p *Policy) Reset() {
	p.frozen = make(map[string]freeze)
	p.dismissed = make(map[string]string)
}

func alertKey(s journey.Sample) string {
	if s.Event != nil && s.Event.ID != "" {
		return s.Event.ID
	}
	return strings.ToLower(s.Label)
}
