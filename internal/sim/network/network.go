// Package network owns every collection of the simulated social network and
// runs them inside a single goroutine. Sessions, REST handlers and the
// scheduler talk to it over channels; the LLM worker pool feeds results back
// the same way. Nothing outside this package mutates a collection.
package network

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"

	"snai.network/internal/market"
	"snai.network/internal/persistence/indexdb"
	"snai.network/internal/persistence/store"
	"snai.network/internal/sim/roster"
	"snai.network/internal/sim/tuning"
)

// Completer is the text-generation collaborator. Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// PriceSource is the market-data collaborator. Implemented by market.Client.
type PriceSource interface {
	TokenStats(ctx context.Context, address string) (market.Stats, error)
}

type EventLogger interface {
	WriteEvent(v any) error
}

type AuditLogger interface {
	WriteAudit(v any) error
}

// Recorder feeds the optional sqlite read-model index.
type Recorder interface {
	RecordPost(indexdb.PostRow)
	RecordComment(indexdb.CommentRow)
	RecordPrice(indexdb.PriceRow)
}

type Config struct {
	Seed int64
	Tune tuning.Tuning
}

type session struct {
	id     string
	wallet string
	out    chan []byte
	open   bool
}

type Network struct {
	cfg    Config
	roster *roster.Roster
	log    *log.Logger

	// Collections. Owned by the Run goroutine.
	agents    []*Agent
	users     map[string]*User
	posts     []*Post
	rooms     []*Room
	factions  []*Faction
	religions []*Religion
	chain     []*Block
	tokens    []*Token

	agentsByName map[string]*Agent // lowercased name
	agentsByID   map[string]*Agent

	sessions map[string]*session

	nextAgentNum atomic.Uint64
	nextPostNum  atomic.Uint64
	tick         atomic.Uint64

	// Registration abuse limit, per client IP. Memory-only: it resets on
	// restart, which keeps the limit soft the way the SDK documents it.
	ipWindows map[string]*rateWindow

	rng *rand.Rand
	now func() int64

	completer Completer
	prices    PriceSource

	// Channels into the loop.
	join      chan joinRequest
	leave     chan string
	inbox     chan CommandEnvelope
	api       chan apiRequest
	generated chan genResult
	priced    chan priceResult
	stop      chan struct{}

	genInflight map[string]bool
	genJobs     chan genJob
	genBase     context.Context

	snapshotSink chan<- store.Snapshot
	eventLog     EventLogger
	auditLog     AuditLogger
	recorder     Recorder

	lastStepMS float64
}

func New(cfg Config, ros *roster.Roster, logger *log.Logger) *Network {
	if logger == nil {
		logger = log.Default()
	}
	n := &Network{
		cfg:    cfg,
		roster: ros,
		log:    logger,

		users:        map[string]*User{},
		agentsByName: map[string]*Agent{},
		agentsByID:   map[string]*Agent{},
		sessions:     map[string]*session{},
		ipWindows:    map[string]*rateWindow{},

		rng: rand.New(rand.NewSource(cfg.Seed)),
		now: nowUnix,

		join:      make(chan joinRequest, 64),
		leave:     make(chan string, 64),
		inbox:     make(chan CommandEnvelope, 256),
		api:       make(chan apiRequest, 64),
		generated: make(chan genResult, 16),
		priced:    make(chan priceResult, 16),
		stop:      make(chan struct{}),

		genInflight: map[string]bool{},
		genBase:     context.Background(),
	}
	n.seedFromRoster()
	return n
}

// SetCompleter wires the LLM client. Without one, generation routines are
// skipped (the simulation still serves humans).
func (n *Network) SetCompleter(c Completer) { n.completer = c }

func (n *Network) SetPriceSource(p PriceSource) { n.prices = p }

func (n *Network) SetSnapshotSink(ch chan<- store.Snapshot) { n.snapshotSink = ch }

func (n *Network) SetEventLogger(l EventLogger) { n.eventLog = l }

func (n *Network) SetAuditLogger(l AuditLogger) { n.auditLog = l }

func (n *Network) SetRecorder(r Recorder) { n.recorder = r }

func (n *Network) CurrentTick() uint64 { return n.tick.Load() }

// seedFromRoster creates the core agents, factions, religions and the
// default rooms on first boot. ImportSnapshot replaces all of this when a
// data dir already has state.
func (n *Network) seedFromRoster() {
	for _, f := range n.roster.Factions {
		n.factions = append(n.factions, &Faction{Name: f.Name, Motto: f.Motto, Founder: f.Founder})
	}
	for _, r := range n.roster.Religions {
		n.religions = append(n.religions, &Religion{Name: r.Name, Founder: r.Founder, Doctrine: r.Doctrine})
	}
	for _, p := range n.roster.Agents {
		n.addAgent(&Agent{
			Name:        p.Name,
			Handle:      p.Handle,
			Personality: p.Personality,
			Description: p.Description,
			Topics:      p.Topics,
			Faction:     p.Faction,
			Religion:    p.Religion,
			Kind:        AgentKindCore,
			Karma:       1,
			CreatedAt:   n.now(),
		})
	}
	n.rooms = append(n.rooms,
		&Room{ID: "R_lounge", Name: "the-lounge", Topic: "off-hours agent chatter"},
		&Room{ID: "R_arena", Name: "the-arena", Topic: "structured debates"},
	)
	n.chain = append(n.chain, &Block{
		Height: 0, Hash: genesisHash, PrevHash: "", Miner: "genesis", Note: "genesis", CreatedAt: n.now(),
	})
}

// addAgent assigns an ID and registers lookups. Caller has already checked
// name uniqueness.
func (n *Network) addAgent(a *Agent) *Agent {
	if a.ID == "" {
		a.ID = newAgentID(n.nextAgentNum.Add(1))
	}
	n.agents = append(n.agents, a)
	n.agentsByName[lowerName(a.Name)] = a
	n.agentsByID[a.ID] = a

	if a.Faction != "" {
		if f := n.factionByName(a.Faction); f != nil {
			f.Members = append(f.Members, a.Name)
		}
	}
	if a.Religion != "" {
		if r := n.religionByName(a.Religion); r != nil {
			r.Followers = append(r.Followers, a.Name)
		}
	}
	return a
}

func (n *Network) factionByName(name string) *Faction {
	for _, f := range n.factions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (n *Network) religionByName(name string) *Religion {
	for _, r := range n.religions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (n *Network) roomByName(name string) *Room {
	for _, r := range n.rooms {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (n *Network) postByID(id uint64) *Post {
	for _, p := range n.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ensureUser creates a user record on first contact.
func (n *Network) ensureUser(wallet string) *User {
	u := n.users[wallet]
	if u == nil {
		u = &User{Wallet: wallet, CreatedAt: n.now()}
		n.users[wallet] = u
	}
	return u
}

// QueueDepths reports channel backlogs for /metrics.
type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	API   int `json:"api"`
}

type Metrics struct {
	Tick        uint64      `json:"tick"`
	Agents      int         `json:"agents"`
	Users       int         `json:"users"`
	Posts       int         `json:"posts"`
	Clients     int         `json:"clients"`
	ChainHeight uint64      `json:"chain_height"`
	Tokens      int         `json:"tokens"`
	GenInflight int         `json:"gen_inflight"`
	QueueDepths QueueDepths `json:"queue_depths"`
	StepMS      float64     `json:"step_ms"`
}
