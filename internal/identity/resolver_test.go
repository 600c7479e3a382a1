package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

func newResolver() *Resolver {
	return NewResolver(Options{OperatorDomains: []string{"qismo.com"}, OperatorAccounts: []string{"bot@sparks.id"}})
}

func TestCustomerSkipsAgents(t *testing.T) {
	room := models.Room{ID: "1", Participants: []models.Participant{
		{Email: "agent@qismo.com", Type: "agent"},
		{Email: "cust1@x.com"},
	}}
	id, ch := newResolver().Resolve(room)
	assert.Equal(t, "cust1@x.com", id)
	assert.Equal(t, models.ChannelUnknown, ch)
}

func TestCustomerSkipsOperatorAccounts(t *testing.T) {
	tests := []struct {
		name string
		ps   []models.Participant
		want string
	}{
		{"operator domain without type", []models.Participant{{Email: "cs@QISMO.com"}, {Email: "c@x.com"}}, "c@x.com"},
		{"explicit account", []models.Participant{{Email: "bot@sparks.id"}, {Email: "c@x.com"}}, "c@x.com"},
		{"system type", []models.Participant{{Email: "s@x.com", Type: "system"}, {UserID: "6281234"}}, "6281234"},
		{"agent variant type", []models.Participant{{Email: "a@x.com", Type: "super_agent"}, {Email: "c@x.com"}}, "c@x.com"},
		{"first customer wins", []models.Participant{{Email: "c1@x.com"}, {Email: "c2@x.com"}}, "c1@x.com"},
		{"none qualifies", []models.Participant{{Email: "a@qismo.com", Type: "agent"}}, ""},
		{"blank identifiers skipped", []models.Participant{{}, {Email: "c@x.com"}}, "c@x.com"},
		{"no participants", nil, ""},
	}
	r := newResolver()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Customer(models.Room{Participants: tc.ps}))
		})
	}
}

func TestChannelChain(t *testing.T) {
	tests := []struct {
		name string
		room models.Room
		want string
	}{
		{"structured tag wins", models.Room{Channel: "Instagram", Name: "WhatsApp lead"}, "Instagram"},
		{"unknown tag falls through", models.Room{Channel: "unknown", Name: "Whatsapp - Budi"}, "WhatsApp"},
		{"name web", models.Room{Name: "Website visitor"}, "Web Chat"},
		{"whatsapp before web", models.Room{Name: "whatsapp web"}, "WhatsApp"},
		{"sentinel", models.Room{Name: "Telegram"}, models.ChannelUnknown},
		{"empty room", models.Room{}, models.ChannelUnknown},
	}
	r := newResolver()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Channel(tc.room))
		})
	}
}

func TestLoadRulesAppends(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("rules:\n  - contains: Telegram\n    channel: Telegram\n"), 0o644))
	rules, err := LoadRules(p)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	r := NewResolver(Options{Rules: rules})
	assert.Equal(t, "Telegram", r.Channel(models.Room{Name: "telegram: andi"}))
	assert.Equal(t, "WhatsApp", r.Channel(models.Room{Name: "WhatsApp"}))
}

func TestLoadRulesReplace(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("replace: true\nrules: []\n"), 0o644))
	rules, err := LoadRules(p)
	require.NoError(t, err)
	r := NewResolver(Options{Rules: rules})
	assert.Equal(t, models.ChannelUnknown, r.Channel(models.Room{Name: "whatsapp"}))
}

func TestLoadRulesRejectsIncomplete(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("rules:\n  - contains: line\n"), 0o644))
	_, err := LoadRules(p)
	assert.Error(t, err)
}

func TestShippedRules(t *testing.T) {
	rules, err := LoadRules(filepath.Join("..", "..", "channel_rules.yaml"))
	require.NoError(t, err)
	r := NewResolver(Options{Rules: rules})

	tests := []struct {
		name string
		want string
	}{
		{"LINE@ - Budi", "LINE"},
		{"Line Official Account: Sari", "LINE"},
		{"Online booking", models.ChannelUnknown},
		{"Airline promo", models.ChannelUnknown},
		{"Deadline follow-up", models.ChannelUnknown},
		{"Instagram DM", "Instagram"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Channel(models.Room{Name: tc.name}))
		})
	}
}
