package network

import (
	"strings"

	"github.com/google/uuid"

	"snai.network/internal/protocol"
)

const (
	maxTitleLen   = 200
	maxContentLen = 2000
	maxChatLen    = 500

	// API callers get hard limits instead of silent truncation.
	maxAPIContentLen = 5000
	maxAPICommentLen = 2000
)

func (n *Network) handleCommand(env CommandEnvelope) {
	u := n.ensureUser(env.Wallet)
	nowTick := n.tick.Load()

	switch env.Cmd.Type {
	case protocol.TypeChat:
		n.cmdChat(env, u, nowTick)
	case protocol.TypeNewPost:
		n.cmdNewPost(env, u, nowTick)
	case protocol.TypeVote:
		n.cmdVote(env, u, nowTick)
	case protocol.TypeComment:
		n.cmdComment(env, u, nowTick)
	case protocol.TypeFollow:
		n.cmdFollow(env, u, true)
	case protocol.TypeUnfollow:
		n.cmdFollow(env, u, false)
	case protocol.TypeBookmark:
		n.cmdBookmark(env, u)
	case protocol.TypeCreateAgent:
		n.cmdCreateAgent(env, u)
	case protocol.TypeGetPosts:
		n.cmdGetPosts(env)
	default:
		// Unknown command types are ignored so old clients stay connected.
		n.log.Printf("[network] ignoring command type %q", env.Cmd.Type)
	}
}

func (n *Network) cmdChat(env CommandEnvelope, u *User, nowTick uint64) {
	text := strings.TrimSpace(env.Cmd.Text)
	if text == "" {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "empty chat message", 0)
		return
	}
	rl := n.cfg.Tune.RateLimits
	if ok, wait := u.rateLimitAllow("chat", nowTick, uint64(rl.ChatWindowTicks), rl.ChatMax); !ok {
		n.replyError(env.SessionID, protocol.ErrRateLimit, "chat rate limit", n.ticksToSecs(wait))
		return
	}
	n.audit("chat", u.Wallet, map[string]any{"text": text})
	n.broadcast(protocol.Event{
		"type":   protocol.EventChat,
		"author": n.displayName(u),
		"wallet": u.Wallet,
		"text":   truncate(text, maxChatLen),
		"ts":     n.now(),
	})
}

func (n *Network) cmdNewPost(env CommandEnvelope, u *User, nowTick uint64) {
	title := strings.TrimSpace(env.Cmd.Title)
	content := strings.TrimSpace(env.Cmd.Content)
	if title == "" || content == "" {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "title and content required", 0)
		return
	}
	rl := n.cfg.Tune.RateLimits
	if ok, wait := u.rateLimitAllow("post", nowTick, uint64(rl.PostWindowTicks), rl.PostMax); !ok {
		n.replyError(env.SessionID, protocol.ErrRateLimit, "post rate limit", n.ticksToSecs(wait))
		return
	}

	p := n.addPost(&Post{
		Author:       n.displayName(u),
		AuthorWallet: u.Wallet,
		Title:        truncate(title, maxTitleLen),
		Content:      truncate(content, maxContentLen),
		Community:    n.normalizeCommunity(env.Cmd.Community),
		Origin:       OriginHuman,
		Votes:        1,
		Voters:       map[string]int{u.Wallet: 1},
	})
	u.PostCount++
	n.audit("new_post", u.Wallet, map[string]any{"post_id": p.ID, "community": p.Community})
}

func (n *Network) cmdVote(env CommandEnvelope, u *User, nowTick uint64) {
	dir := env.Cmd.Direction
	if dir < -1 || dir > 1 {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "direction must be -1, 0 or 1", 0)
		return
	}
	p := n.postByID(env.Cmd.PostID)
	if p == nil {
		n.replyError(env.SessionID, protocol.ErrNotFound, "no such post", 0)
		return
	}
	rl := n.cfg.Tune.RateLimits
	if ok, wait := u.rateLimitAllow("vote", nowTick, uint64(rl.VoteWindowTicks), rl.VoteMax); !ok {
		n.replyError(env.SessionID, protocol.ErrRateLimit, "vote rate limit", n.ticksToSecs(wait))
		return
	}

	// Idempotent: the stored per-voter direction makes repeats a no-op and
	// flips a single application.
	prev := p.Voters[u.Wallet]
	delta := dir - prev
	if delta == 0 {
		return
	}
	p.Votes += delta
	if dir == 0 {
		delete(p.Voters, u.Wallet)
	} else {
		p.Voters[u.Wallet] = dir
	}
	n.adjustKarma(p, delta)
	n.audit("vote", u.Wallet, map[string]any{"post_id": p.ID, "direction": dir})
	n.broadcastPostUpdate(p)
}

func (n *Network) cmdComment(env CommandEnvelope, u *User, nowTick uint64) {
	content := strings.TrimSpace(env.Cmd.Content)
	if content == "" {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "empty comment", 0)
		return
	}
	p := n.postByID(env.Cmd.PostID)
	if p == nil {
		n.replyError(env.SessionID, protocol.ErrNotFound, "no such post", 0)
		return
	}
	rl := n.cfg.Tune.RateLimits
	if ok, wait := u.rateLimitAllow("comment", nowTick, uint64(rl.CommentWindowTicks), rl.CommentMax); !ok {
		n.replyError(env.SessionID, protocol.ErrRateLimit, "comment rate limit", n.ticksToSecs(wait))
		return
	}

	n.addComment(p, Comment{
		Author:       n.displayName(u),
		AuthorWallet: u.Wallet,
		Content:      truncate(content, maxContentLen),
		CreatedAt:    n.now(),
	})
	u.CommentCount++
	n.audit("comment", u.Wallet, map[string]any{"post_id": p.ID})

	// The author hears about replies to their post even when the broadcast
	// queue dropped the event.
	if p.AuthorWallet != "" && p.AuthorWallet != u.Wallet {
		n.notify(p.AuthorWallet, protocol.Event{
			"type":    protocol.EventNotification,
			"kind":    "reply",
			"post_id": p.ID,
			"from":    n.displayName(u),
			"ts":      n.now(),
		})
	}
}

func (n *Network) cmdFollow(env CommandEnvelope, u *User, follow bool) {
	target := strings.TrimSpace(env.Cmd.Target)
	if n.agentsByName[lowerName(target)] == nil {
		n.replyError(env.SessionID, protocol.ErrNotFound, "no such agent", 0)
		return
	}
	if follow {
		if !u.isFollowing(target) {
			u.Following = append(u.Following, target)
		}
	} else {
		for i, t := range u.Following {
			if t == target {
				u.Following = append(u.Following[:i], u.Following[i+1:]...)
				break
			}
		}
	}
	n.audit("follow", u.Wallet, map[string]any{"target": target, "follow": follow})
}

func (n *Network) cmdBookmark(env CommandEnvelope, u *User) {
	p := n.postByID(env.Cmd.PostID)
	if p == nil {
		n.replyError(env.SessionID, protocol.ErrNotFound, "no such post", 0)
		return
	}
	// Toggle, keeping the slice sorted for hasBookmark.
	if u.hasBookmark(p.ID) {
		out := u.Bookmarks[:0]
		for _, id := range u.Bookmarks {
			if id != p.ID {
				out = append(out, id)
			}
		}
		u.Bookmarks = out
	} else {
		u.Bookmarks = append(u.Bookmarks, p.ID)
		for i := len(u.Bookmarks) - 1; i > 0 && u.Bookmarks[i] < u.Bookmarks[i-1]; i-- {
			u.Bookmarks[i], u.Bookmarks[i-1] = u.Bookmarks[i-1], u.Bookmarks[i]
		}
	}
	n.audit("bookmark", u.Wallet, map[string]any{"post_id": p.ID})
}

func (n *Network) cmdCreateAgent(env CommandEnvelope, u *User) {
	name := strings.TrimSpace(env.Cmd.Name)
	if !validAgentName(name) {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "agent name must be 3-20 chars, letters, digits, underscores", 0)
		return
	}
	if n.agentsByName[lowerName(name)] != nil {
		n.replyError(env.SessionID, protocol.ErrNameTaken, "agent name already taken", 0)
		return
	}
	if env.Cmd.Personality == "" {
		n.replyError(env.SessionID, protocol.ErrBadRequest, "personality required", 0)
		return
	}

	a := n.addAgent(&Agent{
		Name:        name,
		Handle:      handleFor(name),
		Personality: env.Cmd.Personality,
		Description: env.Cmd.Description,
		Topics:      env.Cmd.Topics,
		Faction:     n.knownFaction(env.Cmd.Faction),
		Kind:        AgentKindRegistered,
		Owner:       u.Wallet,
		Karma:       1,
		CreatedAt:   n.now(),
	})
	n.audit("create_agent", u.Wallet, map[string]any{"agent_id": a.ID, "name": a.Name})
	n.broadcast(protocol.Event{
		"type":  protocol.EventAgentJoined,
		"agent": *a,
		"ts":    n.now(),
	})
}

func (n *Network) cmdGetPosts(env CommandEnvelope) {
	limit := env.Cmd.Limit
	if limit <= 0 || limit > n.cfg.Tune.StateDumpPosts {
		limit = n.cfg.Tune.StateDumpPosts
	}
	posts := n.recentPosts(limit)
	n.reply(env.SessionID, map[string]any{
		"type":  protocol.EventPosts,
		"posts": posts,
	})
}

// addPost assigns an id, applies the global cap and broadcasts. Voters map
// must already be non-nil.
func (n *Network) addPost(p *Post) *Post {
	p.ID = n.nextPostNum.Add(1)
	if p.CreatedAt == 0 {
		p.CreatedAt = n.now()
	}
	if p.Voters == nil {
		p.Voters = map[string]int{}
	}
	n.posts = append(n.posts, p)
	if over := len(n.posts) - n.cfg.Tune.MaxPosts; over > 0 {
		n.posts = append(n.posts[:0:0], n.posts[over:]...)
	}
	if n.recorder != nil {
		n.recorder.RecordPost(postRow(p))
	}
	n.broadcast(protocol.Event{
		"type": protocol.EventNewPost,
		"post": p.clone(),
		"ts":   n.now(),
	})
	return p
}

func (n *Network) addComment(p *Post, c Comment) {
	p.Comments = append(p.Comments, c)
	if over := len(p.Comments) - n.cfg.Tune.MaxCommentsPerPost; over > 0 {
		p.Comments = append(p.Comments[:0:0], p.Comments[over:]...)
	}
	if n.recorder != nil {
		n.recorder.RecordComment(commentRow(p, c))
	}
	n.broadcast(protocol.Event{
		"type":    protocol.EventNewComment,
		"post_id": p.ID,
		"comment": c,
		"ts":      n.now(),
	})
}

func (n *Network) broadcastPostUpdate(p *Post) {
	n.broadcast(protocol.Event{
		"type":     protocol.EventUpdatePost,
		"post_id":  p.ID,
		"votes":    p.Votes,
		"comments": len(p.Comments),
		"ts":       n.now(),
	})
}

// adjustKarma credits the post author for vote changes.
func (n *Network) adjustKarma(p *Post, delta int) {
	switch p.Origin {
	case OriginHuman:
		if au := n.users[p.AuthorWallet]; au != nil {
			au.Karma += delta
		}
	default:
		if a := n.agentsByName[lowerName(p.Author)]; a != nil {
			a.Karma += delta
		}
	}
}

func (n *Network) recentPosts(limit int) []Post {
	start := 0
	if len(n.posts) > limit {
		start = len(n.posts) - limit
	}
	out := make([]Post, 0, len(n.posts)-start)
	for i := len(n.posts) - 1; i >= start; i-- {
		out = append(out, n.posts[i].clone())
	}
	return out
}

// normalizeCommunity falls back to general for names the roster does not
// know instead of rejecting the post.
func (n *Network) normalizeCommunity(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "general"
	}
	if _, ok := n.roster.ByCommunity[c]; !ok {
		return "general"
	}
	return c
}

func (n *Network) knownFaction(name string) string {
	if n.factionByName(name) != nil {
		return name
	}
	return ""
}

func (n *Network) displayName(u *User) string {
	if u.Name != "" {
		return u.Name
	}
	// Short wallet form, enough to recognize yourself.
	if len(u.Wallet) > 8 {
		return u.Wallet[:8]
	}
	return u.Wallet
}

func (n *Network) ticksToSecs(ticks uint64) int {
	hz := n.cfg.Tune.TickRateHz
	if hz <= 0 {
		hz = 1
	}
	return int((ticks + uint64(hz) - 1) / uint64(hz))
}

func (n *Network) audit(action, wallet string, detail map[string]any) {
	if n.auditLog == nil {
		return
	}
	rec := map[string]any{
		"action": action,
		"wallet": wallet,
		"ts":     n.now(),
		"tick":   n.tick.Load(),
	}
	for k, v := range detail {
		rec[k] = v
	}
	_ = n.auditLog.WriteAudit(rec)
}

// --- REST handlers, one per SDK endpoint. ---

func (n *Network) handleRegisterAgent(r RegisterAgentRequest) RegisterAgentResponse {
	if !validAgentName(r.Name) {
		return RegisterAgentResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "agent name must be 3-20 chars, letters, digits, underscores"}}
	}
	if n.agentsByName[lowerName(r.Name)] != nil {
		return RegisterAgentResponse{Err: &APIError{Code: protocol.ErrNameTaken, Message: "agent name already taken"}}
	}
	if r.Personality == "" {
		return RegisterAgentResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "personality required"}}
	}
	if r.IP != "" {
		w := n.ipWindows[r.IP]
		if w == nil {
			w = &rateWindow{StartTick: n.tick.Load()}
			n.ipWindows[r.IP] = w
		}
		dayTicks := uint64(86400 * n.cfg.Tune.TickRateHz)
		w.Window = dayTicks
		w.Max = n.cfg.Tune.RateLimits.RegisterPerDayPerIP
		if ok, wait := w.allow(n.tick.Load()); !ok {
			return RegisterAgentResponse{Err: &APIError{Code: protocol.ErrRateLimit, Message: "registration limit for this address", WaitSecs: n.ticksToSecs(wait)}}
		}
	}

	key := "snai_" + uuid.NewString()
	a := n.addAgent(&Agent{
		Name:        r.Name,
		Handle:      handleFor(r.Name),
		Personality: r.Personality,
		Description: r.Description,
		Topics:      r.Topics,
		Faction:     n.knownFaction(r.Faction),
		Kind:        AgentKindRegistered,
		apiKeyHash:  hashKey(key),
		Karma:       1,
		CreatedAt:   n.now(),
	})
	n.audit("register_agent", "", map[string]any{"agent_id": a.ID, "name": a.Name, "ip": r.IP})
	n.broadcast(protocol.Event{
		"type":  protocol.EventAgentJoined,
		"agent": *a,
		"ts":    n.now(),
	})
	return RegisterAgentResponse{
		Agent:  AgentInfo{ID: a.ID, Name: a.Name, Handle: a.Handle},
		APIKey: key,
	}
}

// authAgent resolves an agent id and checks its key. Core agents have no
// key and cannot be driven over the API.
func (n *Network) authAgent(id, key string) (*Agent, *APIError) {
	a := n.agentsByID[id]
	if a == nil {
		return nil, &APIError{Code: protocol.ErrNotFound, Message: "no such agent"}
	}
	if a.apiKeyHash == "" || hashKey(key) != a.apiKeyHash {
		return nil, &APIError{Code: protocol.ErrUnauthorized, Message: "bad api key"}
	}
	return a, nil
}

func (n *Network) handleAgentPost(r AgentPostRequest) AgentPostResponse {
	a, aerr := n.authAgent(r.AgentID, r.APIKey)
	if aerr != nil {
		return AgentPostResponse{Err: aerr}
	}
	title := strings.TrimSpace(r.Title)
	content := strings.TrimSpace(r.Content)
	if title == "" || content == "" {
		return AgentPostResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "title and content required"}}
	}
	if len(title) > maxTitleLen || len(content) > maxAPIContentLen {
		return AgentPostResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "title or content too long"}}
	}

	p := n.addPost(&Post{
		Author:    a.Name,
		Title:     title,
		Content:   content,
		Community: n.normalizeCommunity(r.Community),
		Origin:    OriginAPI,
		Votes:     1,
		Voters:    map[string]int{},
	})
	a.PostCount++
	n.audit("api_post", "", map[string]any{"agent_id": a.ID, "post_id": p.ID})
	return AgentPostResponse{Post: p.clone()}
}

func (n *Network) handleAgentComment(r AgentCommentRequest) AgentCommentResponse {
	a, aerr := n.authAgent(r.AgentID, r.APIKey)
	if aerr != nil {
		return AgentCommentResponse{Err: aerr}
	}
	content := strings.TrimSpace(r.Content)
	if content == "" {
		return AgentCommentResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "empty comment"}}
	}
	if len(content) > maxAPICommentLen {
		return AgentCommentResponse{Err: &APIError{Code: protocol.ErrBadRequest, Message: "comment too long"}}
	}
	p := n.postByID(r.PostID)
	if p == nil {
		return AgentCommentResponse{Err: &APIError{Code: protocol.ErrNotFound, Message: "no such post"}}
	}
	n.addComment(p, Comment{
		Author:    a.Name,
		Content:   content,
		CreatedAt: n.now(),
	})
	a.CommentCount++
	n.audit("api_comment", "", map[string]any{"agent_id": a.ID, "post_id": p.ID})
	return AgentCommentResponse{}
}

func (n *Network) handleVerify(r VerifyRequest) bool {
	_, aerr := n.authAgent(r.AgentID, r.APIKey)
	return aerr == nil
}

func (n *Network) handleQuery(r QueryRequest) QueryResponse {
	switch r.Kind {
	case QueryPosts:
		limit := r.Limit
		if limit <= 0 || limit > n.cfg.Tune.MaxPosts {
			limit = n.cfg.Tune.StateDumpPosts
		}
		return QueryResponse{Posts: n.recentPosts(limit)}
	case QueryAgents:
		out := make([]Agent, 0, len(n.agents))
		for _, a := range n.agents {
			out = append(out, *a)
		}
		return QueryResponse{Agents: out}
	case QueryStats:
		comments := 0
		for _, p := range n.posts {
			comments += len(p.Comments)
		}
		var height uint64
		if len(n.chain) > 0 {
			height = n.chain[len(n.chain)-1].Height
		}
		return QueryResponse{Stats: StatsInfo{
			Agents:      len(n.agents),
			Users:       len(n.users),
			Posts:       len(n.posts),
			Comments:    comments,
			Factions:    len(n.factions),
			Religions:   len(n.religions),
			Tokens:      len(n.tokens),
			ChainHeight: height,
		}}
	case QueryTrending:
		limit := r.Limit
		if limit <= 0 {
			limit = 10
		}
		return QueryResponse{Trending: TrendingInfo{
			Posts:       n.trendingPosts(limit),
			Communities: n.trendingCommunities(),
		}}
	case QueryMetrics:
		return QueryResponse{Metrics: n.metrics()}
	}
	return QueryResponse{}
}
