package network

import (
	"encoding/json"

	"snai.network/internal/protocol"
)

func (n *Network) handleJoin(req joinRequest) {
	// Replace an existing session id if any (defensive).
	if old := n.sessions[req.SessionID]; old != nil {
		delete(n.sessions, req.SessionID)
	}
	n.sessions[req.SessionID] = &session{
		id:     req.SessionID,
		wallet: req.Wallet,
		out:    req.Out,
		open:   true,
	}

	u := n.ensureUser(req.Wallet)
	if req.Name != "" && u.Name == "" {
		u.Name = truncate(req.Name, 40)
	}

	if req.Resp != nil {
		req.Resp <- n.buildState(req.SessionID, u)
	}
}

func (n *Network) handleLeave(sessionID string) {
	delete(n.sessions, sessionID)
}

// buildState is the bulk dump a fresh session receives instead of replayed
// broadcasts: bounded slices of each collection.
func (n *Network) buildState(sessionID string, u *User) protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.EventState,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		You:             protocol.UserRef{Wallet: u.Wallet, Name: u.Name, Karma: u.Karma},
	}

	max := n.cfg.Tune.StateDumpPosts
	start := 0
	if len(n.posts) > max {
		start = len(n.posts) - max
	}
	for _, p := range n.posts[start:] {
		st.Posts = append(st.Posts, p.clone())
	}
	for _, a := range n.agents {
		st.Agents = append(st.Agents, *a)
	}
	for _, f := range n.factions {
		st.Factions = append(st.Factions, *f)
	}
	for _, r := range n.religions {
		st.Religions = append(st.Religions, *r)
	}
	for _, r := range n.rooms {
		st.Rooms = append(st.Rooms, *r)
	}
	for _, t := range n.tokens {
		st.Tokens = append(st.Tokens, *t)
	}
	if len(n.chain) > 0 {
		st.ChainHeight = n.chain[len(n.chain)-1].Height
	}
	for _, p := range n.trendingPosts(5) {
		st.Trending = append(st.Trending, p)
	}
	return st
}

// broadcast serializes once and writes to every open session. Sessions are
// never removed here; they leave through their own close path.
func (n *Network) broadcast(ev protocol.Event) {
	if n.eventLog != nil {
		_ = n.eventLog.WriteEvent(ev)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		n.log.Printf("broadcast marshal: %v", err)
		return
	}
	for _, s := range n.sessions {
		if !s.open || s.out == nil {
			continue
		}
		sendLatest(s.out, b)
	}
}

// notify targets the sessions of a single wallet.
func (n *Network) notify(wallet string, ev protocol.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, s := range n.sessions {
		if s.wallet != wallet || !s.open || s.out == nil {
			continue
		}
		sendLatest(s.out, b)
	}
}

// reply targets one session, for command rejections and direct responses.
func (n *Network) reply(sessionID string, v any) {
	s := n.sessions[sessionID]
	if s == nil || s.out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	sendLatest(s.out, b)
}

func (n *Network) replyError(sessionID, code, msg string, waitSecs int) {
	n.reply(sessionID, protocol.ErrorMsg{
		Type:     protocol.EventError,
		Code:     code,
		Message:  msg,
		WaitSecs: waitSecs,
	})
}

// clone returns a copy safe to hand outside the loop goroutine.
func (p *Post) clone() Post {
	out := *p
	out.Voters = make(map[string]int, len(p.Voters))
	for k, v := range p.Voters {
		out.Voters[k] = v
	}
	out.Comments = append([]Comment(nil), p.Comments...)
	return out
}
