// Package identity derives the customer key and acquisition channel of a room.
package identity

import (
	"strings"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

// ChannelStrategy inspects a room and reports a channel, or ok=false to defer
// to the next strategy.
type ChannelStrategy func(models.Room) (channel string, ok bool)

type Resolver struct {
	operatorDomains []string
	operatorIDs     map[string]struct{}
	channels        []ChannelStrategy
}

type Options struct {
	// OperatorDomains are email domains of the business's own accounts.
	OperatorDomains []string
	// OperatorAccounts are exact identifiers to never treat as customers.
	OperatorAccounts []string
	// Rules feed the room-name fallback; nil means DefaultRules.
	Rules []Rule
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{operatorIDs: map[string]struct{}{}}
	for _, d := range opts.OperatorDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d != "" {
			r.operatorDomains = append(r.operatorDomains, "@"+d)
		}
	}
	for _, a := range opts.OperatorAccounts {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			r.operatorIDs[a] = struct{}{}
		}
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules
	}
	r.channels = []ChannelStrategy{FromRoomOptions, FromName(rules)}
	return r
}

// Resolve returns the customer identifier (empty when none qualifies) and the
// room's channel, which is never empty.
func (r *Resolver) Resolve(room models.Room) (string, string) {
	return r.Customer(room), r.Channel(room)
}

// Customer returns the first participant, in listed order, that is neither an
// agent/system account nor one of the operator's own accounts.
func (r *Resolver) Customer(room models.Room) string {
	for _, p := range room.Participants {
		if IsStaffType(p.Type) || r.isOperator(p) {
			continue
		}
		if id := p.Identifier(); id != "" {
			return id
		}
	}
	return ""
}

func (r *Resolver) isOperator(p models.Participant) bool {
	for _, v := range []string{p.Email, p.UserID} {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := r.operatorIDs[v]; ok {
			return true
		}
		for _, d := range r.operatorDomains {
			if strings.Contains(v, d) {
				return true
			}
		}
	}
	return false
}

// IsStaffType reports whether a platform participant type marks an agent or
// system account.
func IsStaffType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "agent") || strings.Contains(t, "system")
}

// Channel applies the strategies in order; the first match wins.
func (r *Resolver) Channel(room models.Room) string {
	for _, s := range r.channels {
		if c, ok := s(room); ok {
			return c
		}
	}
	return models.ChannelUnknown
}

// FromRoomOptions uses the explicit channel tag from room options. An
// "Unknown" tag counts as absent.
func FromRoomOptions(room models.Room) (string, bool) {
	c := strings.TrimSpace(room.Channel)
	if c == "" || strings.EqualFold(c, models.ChannelUnknown) {
		return "", false
	}
	return c, true
}

// FromName infers the channel from the room display name.
func FromName(rules []Rule) ChannelStrategy {
	return func(room models.Room) (string, bool) {
		name := strings.ToLower(room.Name)
		if name == "" {
			return "", false
		}
		for _, rl := range rules {
			if rl.matches(name) {
				return rl.Channel, true
			}
		}
		return "", false
	}
}
