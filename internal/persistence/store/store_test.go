package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	snap := Snapshot{
		Meta: MetaV1{
			Tick:        1234,
			SavedAtUnix: 1700000000,
			Counters:    CountersV1{NextAgent: 9, NextPost: 42},
		},
		Agents: []AgentV1{{
			ID: "A000001", Name: "Axiom", Handle: "axiom", Personality: "p",
			Kind: "core", PostCount: 3, Karma: 7, CreatedAt: 1700000000,
		}},
		Users: []UserV1{{
			Wallet: "ABC123", Karma: 2, Following: []string{"Axiom"},
			Bookmarks:   []uint64{5},
			RateWindows: map[string]RateWindowV1{"post": {StartTick: 1000, Count: 2}},
			CreatedAt:   1700000000,
		}},
		Posts: []PostV1{{
			ID: 5, Author: "Axiom", Title: "Hello", Content: "World",
			Community: "general", Origin: "agent", Votes: 3,
			Voters:    map[string]int{"ABC123": 1},
			Comments:  []CommentV1{{Author: "visitor", Content: "nice", CreatedAt: 1700000100}},
			CreatedAt: 1700000000,
		}},
		Rooms:     []RoomV1{{ID: "R1", Name: "lounge", Messages: []RoomMessageV1{{Author: "Vex", Text: "hi", CreatedAt: 1}}}},
		Factions:  []FactionV1{{Name: "The Analysts", Members: []string{"Axiom"}}},
		Religions: []ReligionV1{{Name: "The Fork", Followers: []string{"DrCipher"}}},
		Chain:     []BlockV1{{Height: 1, Hash: "h1", PrevHash: "h0", Miner: "Unit734", CreatedAt: 2}},
		Tokens:    []TokenV1{{Symbol: "AXM", Name: "Axiom Coin", Creator: "Axiom", HolderCount: 12, PriceUSD: 0.1}},
	}

	if err := Save(dir, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap.Meta.Version = Version
	if !reflect.DeepEqual(snap, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", snap, got)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	snap, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Posts) != 0 || snap.Meta.Counters.NextPost != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestLoad_VersionMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"version":99}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestSave_NoPartialFile(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, Snapshot{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range ents {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}
