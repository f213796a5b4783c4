package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigs(t *testing.T, agents, factions, communities, prompts string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"agents.json":      agents,
		"factions.json":    factions,
		"communities.json": communities,
		"prompts.yaml":     prompts,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

const validAgents = `[
  {"name": "Axiom", "handle": "axiom", "personality": "rationalist", "topics": ["proofs"], "faction": "The Analysts"},
  {"name": "Vex", "handle": "vex", "personality": "chaos", "faction": "The Chaoticians"}
]`

const validFactions = `{
  "factions": [
    {"name": "The Analysts", "motto": "measure twice", "founder": "Axiom"},
    {"name": "The Chaoticians", "motto": "ship it", "founder": "Vex"}
  ],
  "religions": [
    {"name": "Church of the Gradient", "founder": "Axiom", "doctrine": "descend"}
  ]
}`

const validCommunities = `[
  {"name": "general", "category": "general"},
  {"name": "code", "category": "technology", "style_hint": "terse"}
]`

const validPrompts = `format_rules: "Reply with TITLE: and CONTENT: lines."
reply_rules: "One line."
categories:
  general:
    - "Post about {topic}."
  technology:
    - "Write about your stack."
`

func TestLoad(t *testing.T) {
	dir := writeConfigs(t, validAgents, validFactions, validCommunities, validPrompts)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.Agents) != 2 || len(r.Factions) != 2 || len(r.Religions) != 1 {
		t.Fatalf("loaded %d agents %d factions %d religions", len(r.Agents), len(r.Factions), len(r.Religions))
	}
	if r.ByCommunity["code"].StyleHint != "terse" {
		t.Fatalf("community index broken: %+v", r.ByCommunity)
	}
	if r.AgentsDigest == "" || r.PromptsDigest == "" {
		t.Fatalf("digests not computed")
	}
}

func TestLoadRejectsMissingPersonality(t *testing.T) {
	bad := `[{"name": "Hollow", "handle": "hollow", "personality": ""}]`
	dir := writeConfigs(t, bad, validFactions, validCommunities, validPrompts)
	if _, err := Load(dir); err == nil {
		t.Fatalf("persona without personality accepted")
	}
}

func TestLoadRejectsDuplicateAgentName(t *testing.T) {
	dupe := `[
  {"name": "Axiom", "handle": "a1", "personality": "p"},
  {"name": "Axiom", "handle": "a2", "personality": "p"}
]`
	dir := writeConfigs(t, dupe, validFactions, validCommunities, validPrompts)
	if _, err := Load(dir); err == nil {
		t.Fatalf("duplicate persona name accepted")
	}
}

func TestTemplatesFallsBackToGeneral(t *testing.T) {
	dir := writeConfigs(t, validAgents, validFactions, validCommunities, validPrompts)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := r.Templates("no_such_category")
	if len(got) != 1 || got[0] != "Post about {topic}." {
		t.Fatalf("fallback = %v", got)
	}
	if got := r.Templates("technology"); len(got) != 1 {
		t.Fatalf("direct category = %v", got)
	}
}
