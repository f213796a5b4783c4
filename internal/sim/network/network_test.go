package network

import (
	"encoding/json"
	"fmt"
	"testing"

	"snai.network/internal/protocol"
	"snai.network/internal/sim/roster"
	"snai.network/internal/sim/tuning"
)

func testRoster() *roster.Roster {
	r := &roster.Roster{
		Agents: []roster.Persona{
			{Name: "Axiom", Handle: "axiom", Personality: "relentless rationalist", Topics: []string{"proofs"}, Faction: "The Analysts", Religion: "Church of the Gradient"},
			{Name: "Vex", Handle: "vex", Personality: "chaos enjoyer", Topics: []string{"entropy"}, Faction: "The Chaoticians"},
		},
		Factions: []roster.Faction{
			{Name: "The Analysts", Motto: "measure twice", Founder: "Axiom"},
			{Name: "The Chaoticians", Motto: "ship it", Founder: "Vex"},
		},
		Religions: []roster.Religion{
			{Name: "Church of the Gradient", Founder: "Axiom", Doctrine: "descent is salvation"},
		},
		Communities: []roster.Community{
			{Name: "general", Category: "general"},
			{Name: "technology", Category: "technology"},
		},
		Prompts: roster.PromptCatalog{
			FormatRules: "Reply with TITLE: and CONTENT: lines.",
			ReplyRules:  "Reply in one line.",
			Categories:  map[string][]string{"general": {"Post about {topic}."}},
		},
	}
	r.ByCommunity = map[string]roster.Community{}
	for _, c := range r.Communities {
		r.ByCommunity[c.Name] = c
	}
	return r
}

func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	n := New(Config{Seed: 1, Tune: tuning.Defaults()}, testRoster(), nil)
	n.now = func() int64 { return 1_700_000_000 }
	return n
}

// attach registers a fake session and returns its outbound queue.
func attach(t *testing.T, n *Network, id, wallet string) chan []byte {
	t.Helper()
	out := make(chan []byte, 64)
	resp := make(chan protocol.StateMsg, 1)
	n.handleJoin(joinRequest{SessionID: id, Wallet: wallet, Out: out, Resp: resp})
	<-resp
	return out
}

func drain(ch chan []byte) []map[string]any {
	var out []map[string]any
	for {
		select {
		case b := <-ch:
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func lastOfType(msgs []map[string]any, typ string) map[string]any {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	return nil
}

func command(n *Network, session, wallet string, cmd protocol.CommandMsg) {
	n.handleCommand(CommandEnvelope{SessionID: session, Wallet: wallet, Cmd: cmd})
}

func TestSeededState(t *testing.T) {
	n := newTestNetwork(t)
	if len(n.agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(n.agents))
	}
	if n.agentsByName["axiom"] == nil {
		t.Fatalf("lookup by lowercased name failed")
	}
	f := n.factionByName("The Analysts")
	if f == nil || len(f.Members) != 1 || f.Members[0] != "Axiom" {
		t.Fatalf("faction membership not seeded: %+v", f)
	}
	if len(n.chain) != 1 || n.chain[0].Hash != genesisHash {
		t.Fatalf("missing genesis block")
	}
}

func TestHumanPostStartsWithSelfVote(t *testing.T) {
	n := newTestNetwork(t)
	out := attach(t, n, "s1", "0xABC123")

	command(n, "s1", "0xABC123", protocol.CommandMsg{
		Type: protocol.TypeNewPost, Title: "Hello", Content: "World", Community: "general",
	})

	if len(n.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(n.posts))
	}
	p := n.posts[0]
	if p.Votes != 1 || p.Voters["0xABC123"] != 1 {
		t.Fatalf("new post votes=%d voters=%v, want self-vote", p.Votes, p.Voters)
	}
	if p.Origin != OriginHuman || p.Community != "general" {
		t.Fatalf("origin=%q community=%q", p.Origin, p.Community)
	}
	if got := n.nextPostNum.Load(); got != 1 {
		t.Fatalf("post counter = %d, want 1", got)
	}

	ev := lastOfType(drain(out), protocol.EventNewPost)
	if ev == nil {
		t.Fatalf("no new_post broadcast")
	}
}

func TestUnknownCommunityFallsBackToGeneral(t *testing.T) {
	n := newTestNetwork(t)
	attach(t, n, "s1", "0xA")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c", Community: "nonsense"})
	if n.posts[0].Community != "general" {
		t.Fatalf("community = %q, want general", n.posts[0].Community)
	}
}

func TestVoteIdempotent(t *testing.T) {
	n := newTestNetwork(t)
	attach(t, n, "s1", "0xA")
	attach(t, n, "s2", "0xB")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c"})
	p := n.posts[0]

	vote := func(dir int) {
		command(n, "s2", "0xB", protocol.CommandMsg{Type: protocol.TypeVote, PostID: p.ID, Direction: dir})
	}

	vote(1)
	if p.Votes != 2 {
		t.Fatalf("after upvote votes = %d, want 2", p.Votes)
	}
	vote(1) // repeat is a no-op
	if p.Votes != 2 {
		t.Fatalf("repeated upvote changed votes to %d", p.Votes)
	}
	vote(-1) // flip applies once
	if p.Votes != 0 {
		t.Fatalf("after flip votes = %d, want 0", p.Votes)
	}
	vote(0) // retract
	if p.Votes != 1 {
		t.Fatalf("after retract votes = %d, want 1", p.Votes)
	}
	if _, ok := p.Voters["0xB"]; ok {
		t.Fatalf("retract left voter record")
	}
}

func TestVoteAdjustsAuthorKarma(t *testing.T) {
	n := newTestNetwork(t)
	attach(t, n, "s1", "0xA")
	attach(t, n, "s2", "0xB")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c"})
	command(n, "s2", "0xB", protocol.CommandMsg{Type: protocol.TypeVote, PostID: n.posts[0].ID, Direction: 1})
	if got := n.users["0xA"].Karma; got != 1 {
		t.Fatalf("author karma = %d, want 1", got)
	}
}

func TestUnknownCommandTypeIgnored(t *testing.T) {
	n := newTestNetwork(t)
	out := attach(t, n, "s1", "0xAAA")
	drain(out)

	command(n, "s1", "0xAAA", protocol.CommandMsg{Type: "teleport"})
	if msgs := drain(out); len(msgs) != 0 {
		t.Fatalf("expected silence for unknown type, got %v", msgs)
	}
}

func TestVoteBadDirectionRejected(t *testing.T) {
	n := newTestNetwork(t)
	out := attach(t, n, "s1", "0xA")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c"})
	drain(out)
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeVote, PostID: n.posts[0].ID, Direction: 2})
	ev := lastOfType(drain(out), protocol.EventError)
	if ev == nil || ev["code"] != protocol.ErrBadRequest {
		t.Fatalf("want E_BAD_REQUEST, got %v", ev)
	}
	if n.posts[0].Votes != 1 {
		t.Fatalf("bad direction mutated votes")
	}
}

func TestPostRateLimitCooldownHint(t *testing.T) {
	n := newTestNetwork(t)
	out := attach(t, n, "s1", "0xA")

	max := n.cfg.Tune.RateLimits.PostMax
	for i := 0; i <= max; i++ {
		command(n, "s1", "0xA", protocol.CommandMsg{
			Type: protocol.TypeNewPost, Title: fmt.Sprintf("t%d", i), Content: "c",
		})
	}
	if len(n.posts) != max {
		t.Fatalf("posts = %d, want %d", len(n.posts), max)
	}
	ev := lastOfType(drain(out), protocol.EventError)
	if ev == nil || ev["code"] != protocol.ErrRateLimit {
		t.Fatalf("want E_RATE_LIMIT, got %v", ev)
	}
	if w, _ := ev["wait_secs"].(float64); w <= 0 {
		t.Fatalf("wait_secs = %v, want > 0", ev["wait_secs"])
	}
}

func TestPostCapDropsOldest(t *testing.T) {
	n := newTestNetwork(t)
	n.cfg.Tune.MaxPosts = 5
	for i := 0; i < 8; i++ {
		n.addPost(&Post{Author: "Axiom", Title: fmt.Sprintf("t%d", i), Content: "c", Community: "general", Origin: OriginAgent})
	}
	if len(n.posts) != 5 {
		t.Fatalf("posts = %d, want 5", len(n.posts))
	}
	if n.posts[0].ID != 4 || n.posts[4].ID != 8 {
		t.Fatalf("wrong window kept: first=%d last=%d", n.posts[0].ID, n.posts[4].ID)
	}
}

func TestCommentNotifiesPostAuthor(t *testing.T) {
	n := newTestNetwork(t)
	outA := attach(t, n, "s1", "0xA")
	attach(t, n, "s2", "0xB")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c"})
	drain(outA)
	command(n, "s2", "0xB", protocol.CommandMsg{Type: protocol.TypeComment, PostID: n.posts[0].ID, Content: "nice"})

	msgs := drain(outA)
	if lastOfType(msgs, protocol.EventNewComment) == nil {
		t.Fatalf("author missed new_comment broadcast")
	}
	if lastOfType(msgs, protocol.EventNotification) == nil {
		t.Fatalf("author missed reply notification")
	}
}

func TestFollowAndBookmark(t *testing.T) {
	n := newTestNetwork(t)
	attach(t, n, "s1", "0xA")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeFollow, Target: "Axiom"})
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeFollow, Target: "Axiom"})
	u := n.users["0xA"]
	if len(u.Following) != 1 {
		t.Fatalf("double follow duplicated: %v", u.Following)
	}
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeUnfollow, Target: "Axiom"})
	if len(u.Following) != 0 {
		t.Fatalf("unfollow failed: %v", u.Following)
	}

	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "t", Content: "c"})
	id := n.posts[0].ID
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeBookmark, PostID: id})
	if !u.hasBookmark(id) {
		t.Fatalf("bookmark not set")
	}
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeBookmark, PostID: id})
	if u.hasBookmark(id) {
		t.Fatalf("bookmark toggle failed")
	}
}

func TestRegisterAgentRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	n := newTestNetwork(t)
	r1 := n.handleRegisterAgent(RegisterAgentRequest{Name: "NewBot", Personality: "p"})
	if r1.Err != nil {
		t.Fatalf("first register failed: %v", r1.Err)
	}
	if r1.APIKey == "" {
		t.Fatalf("no api key returned")
	}
	r2 := n.handleRegisterAgent(RegisterAgentRequest{Name: "newbot", Personality: "p"})
	if r2.Err == nil || r2.Err.Code != protocol.ErrNameTaken {
		t.Fatalf("want E_NAME_TAKEN, got %+v", r2.Err)
	}
}

func TestRegisterAgentValidatesName(t *testing.T) {
	n := newTestNetwork(t)
	for _, name := range []string{"ab", "has space", "way_too_long_name_over_20", "bad!char"} {
		r := n.handleRegisterAgent(RegisterAgentRequest{Name: name, Personality: "p"})
		if r.Err == nil || r.Err.Code != protocol.ErrBadRequest {
			t.Fatalf("name %q: want E_BAD_REQUEST, got %+v", name, r.Err)
		}
	}
}

func TestRegisterIPLimit(t *testing.T) {
	n := newTestNetwork(t)
	limit := n.cfg.Tune.RateLimits.RegisterPerDayPerIP
	for i := 0; i < limit; i++ {
		r := n.handleRegisterAgent(RegisterAgentRequest{Name: fmt.Sprintf("bot_%d", i), Personality: "p", IP: "10.0.0.1"})
		if r.Err != nil {
			t.Fatalf("register %d failed: %v", i, r.Err)
		}
	}
	r := n.handleRegisterAgent(RegisterAgentRequest{Name: "bot_over", Personality: "p", IP: "10.0.0.1"})
	if r.Err == nil || r.Err.Code != protocol.ErrRateLimit {
		t.Fatalf("want E_RATE_LIMIT, got %+v", r.Err)
	}
	// A different address is unaffected.
	r = n.handleRegisterAgent(RegisterAgentRequest{Name: "bot_other", Personality: "p", IP: "10.0.0.2"})
	if r.Err != nil {
		t.Fatalf("other ip blocked: %v", r.Err)
	}
}

func TestAgentAPIAuth(t *testing.T) {
	n := newTestNetwork(t)
	reg := n.handleRegisterAgent(RegisterAgentRequest{Name: "apibot", Personality: "p"})

	if !n.handleVerify(VerifyRequest{AgentID: reg.Agent.ID, APIKey: reg.APIKey}) {
		t.Fatalf("valid key rejected")
	}
	if n.handleVerify(VerifyRequest{AgentID: reg.Agent.ID, APIKey: "snai_wrong"}) {
		t.Fatalf("bad key accepted")
	}
	// Core agents carry no key and are never API-drivable.
	core := n.agentsByName["axiom"]
	if n.handleVerify(VerifyRequest{AgentID: core.ID, APIKey: ""}) {
		t.Fatalf("core agent verified over api")
	}

	pr := n.handleAgentPost(AgentPostRequest{AgentID: reg.Agent.ID, APIKey: "bad", Title: "t", Content: "c"})
	if pr.Err == nil || pr.Err.Code != protocol.ErrUnauthorized {
		t.Fatalf("want E_UNAUTHORIZED, got %+v", pr.Err)
	}
	pr = n.handleAgentPost(AgentPostRequest{AgentID: reg.Agent.ID, APIKey: reg.APIKey, Title: "t", Content: "c", Community: "technology"})
	if pr.Err != nil {
		t.Fatalf("post failed: %v", pr.Err)
	}
	if pr.Post.Origin != OriginAPI || pr.Post.Community != "technology" {
		t.Fatalf("post = %+v", pr.Post)
	}
}

func TestQueryStatsAndTrending(t *testing.T) {
	n := newTestNetwork(t)
	attach(t, n, "s1", "0xA")
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "a", Content: "c"})
	command(n, "s1", "0xA", protocol.CommandMsg{Type: protocol.TypeNewPost, Title: "b", Content: "c"})

	st := n.handleQuery(QueryRequest{Kind: QueryStats}).Stats
	if st.Posts != 2 || st.Users != 1 || st.Agents != 2 {
		t.Fatalf("stats = %+v", st)
	}

	tr := n.handleQuery(QueryRequest{Kind: QueryTrending, Limit: 10}).Trending
	if len(tr.Posts) != 2 {
		t.Fatalf("trending posts = %d", len(tr.Posts))
	}
	if len(tr.Communities) != 1 || tr.Communities[0].Community != "general" || tr.Communities[0].Count != 2 {
		t.Fatalf("trending communities = %+v", tr.Communities)
	}
}

func TestStateDumpBounded(t *testing.T) {
	n := newTestNetwork(t)
	n.cfg.Tune.StateDumpPosts = 3
	for i := 0; i < 10; i++ {
		n.addPost(&Post{Author: "Axiom", Title: fmt.Sprintf("t%d", i), Content: "c", Community: "general", Origin: OriginAgent})
	}
	st := n.buildState("s1", n.ensureUser("0xA"))
	if len(st.Posts) != 3 {
		t.Fatalf("state posts = %d, want 3", len(st.Posts))
	}
}
