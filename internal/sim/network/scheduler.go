package network

import (
	"context"
	"errors"
	"time"

	"snai.network/internal/market"
	"snai.network/internal/protocol"
)

type priceResult struct {
	Symbol string
	Stats  market.Stats
	Err    error
}

// due staggers routines with a per-routine phase offset so a boot does not
// fire everything on the same tick.
func due(nowTick uint64, every, offset int) bool {
	if every <= 0 {
		return false
	}
	return nowTick%uint64(every) == uint64(offset%every)
}

// systemScheduler runs on every tick, on the loop goroutine. Each routine
// only dispatches work; results come back through the generated and priced
// channels.
func (n *Network) systemScheduler(nowTick uint64) {
	c := n.cfg.Tune.Cadence

	if due(nowTick, c.AgentPostEveryTicks, 7) {
		if a := n.randomAgent(); a != nil {
			n.dispatchGen(n.buildPostJob(a))
		}
	}
	if due(nowTick, c.AgentReplyEveryTicks, 13) {
		n.scheduleReply()
	}
	if due(nowTick, c.RoomDialogueEveryTicks, 29) {
		n.scheduleRoomDialogue()
	}
	if due(nowTick, c.SermonEveryTicks, 41) {
		n.scheduleSermon()
	}
	if due(nowTick, c.FactionStatementEveryTicks, 53) {
		n.scheduleFactionStatement()
	}
	if due(nowTick, c.DebateEveryTicks, 67) {
		n.scheduleDebate()
	}
	if due(nowTick, c.TokenLaunchEveryTicks, 79) {
		if a := n.randomAgent(); a != nil {
			n.dispatchGen(n.buildTokenJob(a))
		}
	}
	if due(nowTick, c.ChainBlockEveryTicks, 97) {
		n.mineBlock()
	}
	if due(nowTick, c.TrendingEveryTicks, 103) {
		n.broadcastTrending()
	}
	if due(nowTick, c.PriceFetchEveryTicks, 113) {
		n.schedulePriceFetch()
	}
	if due(nowTick, c.DriftEveryTicks, 127) {
		n.drift()
	}
	if due(nowTick, c.SaveEveryTicks, 149) {
		if err := n.pushSnapshot(nowTick); err != nil {
			n.log.Printf("[save] %v", err)
		}
	}
}

func (n *Network) randomAgent() *Agent {
	if len(n.agents) == 0 {
		return nil
	}
	return n.agents[n.rng.Intn(len(n.agents))]
}

func (n *Network) scheduleReply() {
	if len(n.posts) == 0 {
		return
	}
	a := n.randomAgent()
	if a == nil {
		return
	}
	// Bias toward fresh posts: sample from the newest quarter.
	start := len(n.posts) * 3 / 4
	p := n.posts[start+n.rng.Intn(len(n.posts)-start)]
	if p.Author == a.Name {
		return
	}
	n.dispatchGen(n.buildReplyJob(a, p))
}

func (n *Network) scheduleRoomDialogue() {
	if len(n.rooms) == 0 {
		return
	}
	room := n.rooms[n.rng.Intn(len(n.rooms))]
	a := n.randomAgent()
	if a == nil {
		return
	}
	// Do not let one agent monologue.
	if len(room.Messages) > 0 && room.Messages[len(room.Messages)-1].Author == a.Name {
		return
	}
	n.dispatchGen(n.buildRoomJob(a, room))
}

func (n *Network) scheduleSermon() {
	if len(n.religions) == 0 {
		return
	}
	r := n.religions[n.rng.Intn(len(n.religions))]
	a := n.preacherFor(r)
	if a == nil {
		return
	}
	n.dispatchGen(n.buildSermonJob(a, r))
}

// preacherFor prefers the founder, then any follower.
func (n *Network) preacherFor(r *Religion) *Agent {
	if a := n.agentsByName[lowerName(r.Founder)]; a != nil {
		return a
	}
	if len(r.Followers) == 0 {
		return nil
	}
	return n.agentsByName[lowerName(r.Followers[n.rng.Intn(len(r.Followers))])]
}

func (n *Network) scheduleFactionStatement() {
	if len(n.factions) == 0 {
		return
	}
	f := n.factions[n.rng.Intn(len(n.factions))]
	var a *Agent
	if len(f.Members) > 0 {
		a = n.agentsByName[lowerName(f.Members[n.rng.Intn(len(f.Members))])]
	}
	if a == nil {
		a = n.agentsByName[lowerName(f.Founder)]
	}
	if a == nil {
		return
	}
	n.dispatchGen(n.buildFactionJob(a, f))
}

func (n *Network) scheduleDebate() {
	if len(n.agents) < 2 {
		return
	}
	a := n.randomAgent()
	b := n.randomAgent()
	if a == b {
		return
	}
	topic := n.pickTopic(a)
	n.dispatchGen(n.buildDebateJob(a, b, topic))
}

// mineBlock extends the vanity chain. Purely decorative consensus: one
// block, one random miner, no transactions.
func (n *Network) mineBlock() {
	prev := n.chain[len(n.chain)-1]
	miner := "genesis"
	if a := n.randomAgent(); a != nil {
		miner = a.Name
	}
	at := n.now()
	b := &Block{
		Height:    prev.Height + 1,
		PrevHash:  prev.Hash,
		Miner:     miner,
		CreatedAt: at,
	}
	b.Hash = blockHash(b.Height, b.PrevHash, b.Miner, at)
	n.chain = append(n.chain, b)
	// The chain only needs enough depth to display.
	if len(n.chain) > 100 {
		n.chain = append(n.chain[:0:0], n.chain[len(n.chain)-100:]...)
	}
	n.broadcast(protocol.Event{
		"type":  protocol.EventBlock,
		"block": *b,
		"ts":    at,
	})
}

func (n *Network) broadcastTrending() {
	posts := n.trendingPosts(5)
	if len(posts) == 0 {
		return
	}
	n.broadcast(protocol.Event{
		"type":        protocol.EventTrending,
		"posts":       posts,
		"communities": n.trendingCommunities(),
		"ts":          n.now(),
	})
}

func (n *Network) schedulePriceFetch() {
	if n.prices == nil {
		return
	}
	timeout := time.Duration(n.cfg.Tune.LLM.MarketTimeout) * time.Second
	for _, t := range n.tokens {
		if t.Address == "" {
			continue
		}
		key := "price:" + t.Symbol
		if n.genInflight[key] {
			continue
		}
		n.genInflight[key] = true
		symbol, addr := t.Symbol, t.Address
		go func() {
			ctx, cancel := context.WithTimeout(n.genBase, timeout)
			defer cancel()
			st, err := n.prices.TokenStats(ctx, addr)
			select {
			case n.priced <- priceResult{Symbol: symbol, Stats: st, Err: err}:
			case <-n.genBase.Done():
			}
		}()
	}
}

func (n *Network) applyPriceResult(res priceResult) {
	delete(n.genInflight, "price:"+res.Symbol)
	if res.Err != nil {
		n.log.Printf("[market] %s: %v", res.Symbol, res.Err)
		return
	}
	for _, t := range n.tokens {
		if t.Symbol != res.Symbol {
			continue
		}
		t.PriceUSD = res.Stats.PriceUSD
		t.Volume24h = res.Stats.Volume24h
		t.MarketCap = res.Stats.MarketCap
		t.FetchedAt = res.Stats.FetchedAt.Unix()
		if n.recorder != nil {
			n.recorder.RecordPrice(priceRow(t))
		}
		n.broadcast(protocol.Event{
			"type":  protocol.EventTokenUpdate,
			"token": *t,
			"ts":    n.now(),
		})
		return
	}
}

// drift nudges token holder counts so the market page never looks frozen.
func (n *Network) drift() {
	for _, t := range n.tokens {
		delta := n.rng.Intn(7) - 3
		t.HolderCount += delta
		if t.HolderCount < 1 {
			t.HolderCount = 1
		}
	}
}

var errSnapshotBacklog = errors.New("snapshot writer busy")

// pushSnapshot hands a copy of the state to the writer goroutine. Dropping
// under backlog is fine: the next save tick tries again.
func (n *Network) pushSnapshot(nowTick uint64) error {
	if n.snapshotSink == nil {
		return nil
	}
	snap := n.ExportSnapshot(nowTick)
	select {
	case n.snapshotSink <- snap:
		return nil
	default:
		return errSnapshotBacklog
	}
}
