package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a case-insensitive substring of the room name to a channel.
type Rule struct {
	Contains string `yaml:"contains"`
	Channel  string `yaml:"channel"`
}

func (r Rule) matches(lowerName string) bool {
	return r.Contains != "" && strings.Contains(lowerName, r.Contains)
}

var DefaultRules = []Rule{
	{Contains: "whatsapp", Channel: "WhatsApp"},
	{Contains: "web", Channel: "Web Chat"},
}

type rulesFile struct {
	// Replace drops the built-in table instead of appending to it.
	Replace bool   `yaml:"replace"`
	Rules   []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule table. File rules are appended after the
// built-in ones unless the file sets replace: true.
//
//	replace: false
//	rules:
//	  - contains: telegram
//	    channel: Telegram
func LoadRules(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	out := []Rule{}
	if !f.Replace {
		out = append(out, DefaultRules...)
	}
	for i, r := range f.Rules {
		r.Contains = strings.ToLower(strings.TrimSpace(r.Contains))
		r.Channel = strings.TrimSpace(r.Channel)
		if r.Contains == "" || r.Channel == "" {
			return nil, fmt.Errorf("rules %s: entry %d needs contains and channel", path, i)
		}
		out = append(out, r)
	}
	return out, nil
}
