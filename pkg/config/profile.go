package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GuildProfile is the recruitment-facing knowledge injected into the
// classifier's system prompt. Operators edit this as guild.yaml so prompt
// content never requires a rebuild.
type GuildProfile struct {
	Name             string     `yaml:"name"`
	RecruitmentFocus string     `yaml:"recruitment_focus"`
	RaidSchedule     string     `yaml:"raid_schedule,omitempty"`
	Rules            []string   `yaml:"rules,omitempty"`
	FAQ              []FAQEntry `yaml:"faq,omitempty"`
}

type FAQEntry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// LoadGuildProfile reads and validates a guild.yaml profile.
func LoadGuildProfile(path string) (*GuildProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guild profile: %w", err)
	}

	var profile GuildProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse guild profile YAML: %w", err)
	}

	if profile.Name == "" {
		return nil, fmt.Errorf("guild profile missing name")
	}
	return &profile, nil
}

// PromptContext renders the profile as plain text for the classifier prompt.
func (p *GuildProfile) PromptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Guild: %s\n", p.Name)
	if p.RecruitmentFocus != "" {
		fmt.Fprintf(&b, "Recruitment focus: %s\n", p.RecruitmentFocus)
	}
	if p.RaidSchedule != "" {
		fmt.Fprintf(&b, "Raid schedule: %s\n", p.RaidSchedule)
	}
	if len(p.Rules) > 0 {
		b.WriteString("Rules:\n")
		for _, rule := range p.Rules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}
	if len(p.FAQ) > 0 {
		b.WriteString("Frequently asked questions:\n")
		for _, entry := range p.FAQ {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", entry.Question, entry.Answer)
		}
	}
	return b.String()
}
