// Package store persists the network state as one JSON document per logical
// collection in a data directory. Writes are atomic per file (tmp+rename);
// there is no cross-file transaction, so a crash between files can leave the
// on-disk set one save apart across collections. Load tolerates missing
// files so a fresh data dir boots an empty network.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const Version = 1

type Snapshot struct {
	Meta      MetaV1       `json:"meta"`
	Agents    []AgentV1    `json:"agents"`
	Users     []UserV1     `json:"users"`
	Posts     []PostV1     `json:"posts"`
	Rooms     []RoomV1     `json:"rooms"`
	Factions  []FactionV1  `json:"factions"`
	Religions []ReligionV1 `json:"religions"`
	Chain     []BlockV1    `json:"chain"`
	Tokens    []TokenV1    `json:"tokens"`
}

type MetaV1 struct {
	Version     int    `json:"version"`
	Tick        uint64 `json:"tick"`
	SavedAtUnix int64  `json:"saved_at_unix"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextAgent uint64 `json:"next_agent"`
	NextPost  uint64 `json:"next_post"`
}

type AgentV1 struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Handle      string   `json:"handle"`
	Personality string   `json:"personality"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Faction     string   `json:"faction,omitempty"`
	Religion    string   `json:"religion,omitempty"`
	Kind        string   `json:"kind"`
	APIKeyHash  string   `json:"api_key_hash,omitempty"`

	PostCount    int   `json:"post_count"`
	CommentCount int   `json:"comment_count"`
	Karma        int   `json:"karma"`
	CreatedAt    int64 `json:"created_at"`
}

type UserV1 struct {
	Wallet       string                  `json:"wallet"`
	Name         string                  `json:"name,omitempty"`
	Karma        int                     `json:"karma"`
	PostCount    int                     `json:"post_count"`
	CommentCount int                     `json:"comment_count"`
	Following    []string                `json:"following,omitempty"`
	Bookmarks    []uint64                `json:"bookmarks,omitempty"`
	RateWindows  map[string]RateWindowV1 `json:"rate_windows,omitempty"`
	CreatedAt    int64                   `json:"created_at"`
}

type RateWindowV1 struct {
	StartTick uint64 `json:"start_tick"`
	Count     int    `json:"count"`
}

type PostV1 struct {
	ID           uint64         `json:"id"`
	Author       string         `json:"author"`
	AuthorWallet string         `json:"author_wallet,omitempty"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Community    string         `json:"community"`
	Origin       string         `json:"origin"`
	Votes        int            `json:"votes"`
	Voters       map[string]int `json:"voters"`
	Comments     []CommentV1    `json:"comments"`
	CreatedAt    int64          `json:"created_at"`
}

type CommentV1 struct {
	Author       string `json:"author"`
	AuthorWallet string `json:"author_wallet,omitempty"`
	Content      string `json:"content"`
	CreatedAt    int64  `json:"created_at"`
}

type RoomV1 struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Topic    string          `json:"topic,omitempty"`
	Members  []string        `json:"members,omitempty"`
	Messages []RoomMessageV1 `json:"messages"`
}

type RoomMessageV1 struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type FactionV1 struct {
	Name       string        `json:"name"`
	Motto      string        `json:"motto,omitempty"`
	Founder    string        `json:"founder,omitempty"`
	Members    []string      `json:"members,omitempty"`
	Statements []StatementV1 `json:"statements,omitempty"`
}

type ReligionV1 struct {
	Name      string        `json:"name"`
	Founder   string        `json:"founder,omitempty"`
	Doctrine  string        `json:"doctrine,omitempty"`
	Followers []string      `json:"followers,omitempty"`
	Sermons   []StatementV1 `json:"sermons,omitempty"`
}

type StatementV1 struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type BlockV1 struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Miner     string `json:"miner"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type TokenV1 struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Creator     string  `json:"creator"`
	Address     string  `json:"address,omitempty"`
	HolderCount int     `json:"holder_count"`
	PriceUSD    float64 `json:"price_usd,omitempty"`
	Volume24h   float64 `json:"volume_24h,omitempty"`
	MarketCap   float64 `json:"market_cap,omitempty"`
	FetchedAt   int64   `json:"fetched_at,omitempty"`
}

// collection files, one per logical collection. meta.json is last so a
// save torn between files never advances the tick past the data.
var files = []struct {
	name string
	get  func(s *Snapshot) any
}{
	{"agents.json", func(s *Snapshot) any { return &s.Agents }},
	{"users.json", func(s *Snapshot) any { return &s.Users }},
	{"posts.json", func(s *Snapshot) any { return &s.Posts }},
	{"rooms.json", func(s *Snapshot) any { return &s.Rooms }},
	{"factions.json", func(s *Snapshot) any { return &s.Factions }},
	{"religions.json", func(s *Snapshot) any { return &s.Religions }},
	{"chain.json", func(s *Snapshot) any { return &s.Chain }},
	{"tokens.json", func(s *Snapshot) any { return &s.Tokens }},
	{"meta.json", func(s *Snapshot) any { return &s.Meta }},
}

// Save writes every collection to dir. Each file is written to a temp path
// and renamed into place so a single file is never half-written.
func Save(dir string, snap Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	snap.Meta.Version = Version
	for _, f := range files {
		if err := writeAtomic(filepath.Join(dir, f.name), f.get(&snap)); err != nil {
			return fmt.Errorf("save %s: %w", f.name, err)
		}
	}
	return nil
}

// Load reads every collection from dir. Missing files load as zero values.
func Load(dir string) (Snapshot, error) {
	var snap Snapshot
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return snap, fmt.Errorf("load %s: %w", f.name, err)
		}
		if err := json.Unmarshal(raw, f.get(&snap)); err != nil {
			return snap, fmt.Errorf("load %s: %w", f.name, err)
		}
	}
	if snap.Meta.Version != 0 && snap.Meta.Version != Version {
		return snap, fmt.Errorf("load meta.json: unsupported version %d", snap.Meta.Version)
	}
	return snap, nil
}

func writeAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
