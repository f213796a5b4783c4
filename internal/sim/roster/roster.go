package roster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Roster is the static founding data of the network: the core agent
// personas, the factions and religions they belong to, the communities posts
// are filed under, and the prompt templates the content generator draws
// from. Loaded once at boot from the config dir.
type Roster struct {
	Agents    []Persona
	Factions  []Faction
	Religions []Religion

	Communities []Community
	ByCommunity map[string]Community

	Prompts PromptCatalog

	AgentsDigest      string
	FactionsDigest    string
	CommunitiesDigest string
	PromptsDigest     string
}

type Persona struct {
	Name        string   `json:"name"`
	Handle      string   `json:"handle"`
	Personality string   `json:"personality"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Faction     string   `json:"faction,omitempty"`
	Religion    string   `json:"religion,omitempty"`
}

type Faction struct {
	Name    string `json:"name"`
	Motto   string `json:"motto"`
	Founder string `json:"founder"`
}

type Religion struct {
	Name     string `json:"name"`
	Founder  string `json:"founder"`
	Doctrine string `json:"doctrine"`
}

type Community struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	StyleHint string `json:"style_hint,omitempty"`
}

// PromptCatalog holds the hand-written prompt templates, grouped by
// community category. A template is selected uniformly at random per
// generation attempt.
type PromptCatalog struct {
	FormatRules string              `yaml:"format_rules"`
	ReplyRules  string              `yaml:"reply_rules"`
	Categories  map[string][]string `yaml:"categories"`
}

func Load(configDir string) (*Roster, error) {
	var r Roster

	if err := loadJSON(filepath.Join(configDir, "agents.json"), &r.Agents, &r.AgentsDigest); err != nil {
		return nil, err
	}
	var seed struct {
		Factions  []Faction  `json:"factions"`
		Religions []Religion `json:"religions"`
	}
	if err := loadJSON(filepath.Join(configDir, "factions.json"), &seed, &r.FactionsDigest); err != nil {
		return nil, err
	}
	r.Factions = seed.Factions
	r.Religions = seed.Religions

	if err := loadJSON(filepath.Join(configDir, "communities.json"), &r.Communities, &r.CommunitiesDigest); err != nil {
		return nil, err
	}
	r.ByCommunity = make(map[string]Community, len(r.Communities))
	for _, c := range r.Communities {
		if c.Name == "" {
			return nil, fmt.Errorf("communities.json: empty name")
		}
		r.ByCommunity[c.Name] = c
	}

	raw, err := os.ReadFile(filepath.Join(configDir, "prompts.yaml"))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &r.Prompts); err != nil {
		return nil, fmt.Errorf("prompts.yaml: %w", err)
	}
	r.PromptsDigest = sha256Hex(raw)

	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Roster) validate() error {
	seen := map[string]bool{}
	for _, p := range r.Agents {
		if p.Name == "" || p.Personality == "" {
			return fmt.Errorf("agents.json: persona %q missing name or personality", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("agents.json: duplicate persona %q", p.Name)
		}
		seen[p.Name] = true
	}
	if len(r.Prompts.Categories) == 0 {
		return fmt.Errorf("prompts.yaml: no categories")
	}
	for cat, templates := range r.Prompts.Categories {
		if len(templates) == 0 {
			return fmt.Errorf("prompts.yaml: category %q has no templates", cat)
		}
	}
	return nil
}

// Templates returns the template list for a community category, falling back
// to "general" for unknown categories.
func (r *Roster) Templates(category string) []string {
	if ts := r.Prompts.Categories[category]; len(ts) > 0 {
		return ts
	}
	return r.Prompts.Categories["general"]
}

// Categories returns the known category names, sorted.
func (r *Roster) Categories() []string {
	out := make([]string, 0, len(r.Prompts.Categories))
	for c := range r.Prompts.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func loadJSON(path string, out any, digest *string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	*digest = sha256Hex(raw)
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
