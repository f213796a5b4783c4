package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	MaxPosts           int `yaml:"max_posts"`
	MaxCommentsPerPost int `yaml:"max_comments_per_post"`
	MaxRoomMessages    int `yaml:"max_room_messages"`
	MaxStatements      int `yaml:"max_statements"`
	StateDumpPosts     int `yaml:"state_dump_posts"`

	Cadence    Cadence    `yaml:"cadence"`
	RateLimits RateLimits `yaml:"rate_limits"`
	LLM        LLM        `yaml:"llm"`
}

// Cadence periods are in ticks; zero disables a routine. Offset staggers the
// first firing after boot so routines do not all wake on the same tick.
type Cadence struct {
	AgentPostEveryTicks        int `yaml:"agent_post_every_ticks"`
	AgentReplyEveryTicks       int `yaml:"agent_reply_every_ticks"`
	RoomDialogueEveryTicks     int `yaml:"room_dialogue_every_ticks"`
	SermonEveryTicks           int `yaml:"sermon_every_ticks"`
	FactionStatementEveryTicks int `yaml:"faction_statement_every_ticks"`
	DebateEveryTicks           int `yaml:"debate_every_ticks"`
	TokenLaunchEveryTicks      int `yaml:"token_launch_every_ticks"`
	ChainBlockEveryTicks       int `yaml:"chain_block_every_ticks"`
	TrendingEveryTicks         int `yaml:"trending_every_ticks"`
	PriceFetchEveryTicks       int `yaml:"price_fetch_every_ticks"`
	SaveEveryTicks             int `yaml:"save_every_ticks"`
	DriftEveryTicks            int `yaml:"drift_every_ticks"`
}

type RateLimits struct {
	PostWindowTicks    int `yaml:"post_window_ticks"`
	PostMax            int `yaml:"post_max"`
	CommentWindowTicks int `yaml:"comment_window_ticks"`
	CommentMax         int `yaml:"comment_max"`
	VoteWindowTicks    int `yaml:"vote_window_ticks"`
	VoteMax            int `yaml:"vote_max"`
	ChatWindowTicks    int `yaml:"chat_window_ticks"`
	ChatMax            int `yaml:"chat_max"`

	RegisterPerDayPerIP int `yaml:"register_per_day_per_ip"`
}

type LLM struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	Workers        int    `yaml:"workers"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MarketBaseURL  string `yaml:"market_base_url"`
	MarketTimeout  int    `yaml:"market_timeout_secs"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.fillDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.fillDefaults()
	return t
}

func (t *Tuning) fillDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 5
	}
	if t.MaxPosts <= 0 {
		t.MaxPosts = 200
	}
	if t.MaxCommentsPerPost <= 0 {
		t.MaxCommentsPerPost = 100
	}
	if t.MaxRoomMessages <= 0 {
		t.MaxRoomMessages = 100
	}
	if t.MaxStatements <= 0 {
		t.MaxStatements = 50
	}
	if t.StateDumpPosts <= 0 {
		t.StateDumpPosts = 50
	}

	c := &t.Cadence
	def := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.AgentPostEveryTicks, 150)    // 30s at 5Hz
	def(&c.AgentReplyEveryTicks, 100)   // 20s
	def(&c.RoomDialogueEveryTicks, 300) // 60s
	def(&c.SermonEveryTicks, 3000)      // 10m
	def(&c.FactionStatementEveryTicks, 4500)
	def(&c.DebateEveryTicks, 6000)
	def(&c.TokenLaunchEveryTicks, 9000) // 30m
	def(&c.ChainBlockEveryTicks, 600)
	def(&c.TrendingEveryTicks, 300)
	def(&c.PriceFetchEveryTicks, 900)
	def(&c.SaveEveryTicks, 150)
	def(&c.DriftEveryTicks, 1500)

	r := &t.RateLimits
	def(&r.PostWindowTicks, 300)
	def(&r.PostMax, 3)
	def(&r.CommentWindowTicks, 300)
	def(&r.CommentMax, 10)
	def(&r.VoteWindowTicks, 300)
	def(&r.VoteMax, 30)
	def(&r.ChatWindowTicks, 60)
	def(&r.ChatMax, 5)
	def(&r.RegisterPerDayPerIP, 2)

	l := &t.LLM
	if l.BaseURL == "" {
		l.BaseURL = "https://api.openai.com/v1"
	}
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	def(&l.MaxTokens, 600)
	def(&l.TimeoutSecs, 60)
	def(&l.Workers, 4)
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "SNAI_LLM_API_KEY"
	}
	if l.MarketBaseURL == "" {
		l.MarketBaseURL = "https://api.dexscreener.com/latest/dex"
	}
	def(&l.MarketTimeout, 15)
}
