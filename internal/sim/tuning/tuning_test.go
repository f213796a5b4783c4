package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.TickRateHz != 5 {
		t.Fatalf("tick rate = %d", d.TickRateHz)
	}
	if d.MaxPosts != 200 || d.StateDumpPosts != 50 {
		t.Fatalf("caps = %+v", d)
	}
	if d.RateLimits.PostMax != 3 || d.RateLimits.RegisterPerDayPerIP != 2 {
		t.Fatalf("rate limits = %+v", d.RateLimits)
	}
	if d.Cadence.AgentPostEveryTicks != 150 || d.Cadence.SaveEveryTicks != 150 {
		t.Fatalf("cadence = %+v", d.Cadence)
	}
	if d.LLM.Workers != 4 || d.LLM.APIKeyEnv == "" {
		t.Fatalf("llm = %+v", d.LLM)
	}
}

func TestLoadOverridesAndFills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := `tick_rate_hz: 10
max_posts: 50
cadence:
  agent_post_every_ticks: 20
rate_limits:
  post_max: 1
llm:
  model: test-model
  workers: 2
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tn, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tn.TickRateHz != 10 || tn.MaxPosts != 50 {
		t.Fatalf("overrides lost: %+v", tn)
	}
	if tn.Cadence.AgentPostEveryTicks != 20 {
		t.Fatalf("cadence override lost: %+v", tn.Cadence)
	}
	if tn.Cadence.SermonEveryTicks != 3000 {
		t.Fatalf("cadence defaults not filled: %+v", tn.Cadence)
	}
	if tn.RateLimits.PostMax != 1 || tn.RateLimits.VoteMax != 30 {
		t.Fatalf("rate limits = %+v", tn.RateLimits)
	}
	if tn.LLM.Model != "test-model" || tn.LLM.Workers != 2 || tn.LLM.MaxTokens != 600 {
		t.Fatalf("llm = %+v", tn.LLM)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
}
