package network

import "snai.network/internal/persistence/store"

// ExportSnapshot copies the state into the versioned on-disk form. Runs on
// the loop goroutine; the result shares no memory with the collections.
func (n *Network) ExportSnapshot(nowTick uint64) store.Snapshot {
	snap := store.Snapshot{
		Meta: store.MetaV1{
			Version:     store.Version,
			Tick:        nowTick,
			SavedAtUnix: n.now(),
			Counters: store.CountersV1{
				NextAgent: n.nextAgentNum.Load(),
				NextPost:  n.nextPostNum.Load(),
			},
		},
	}

	for _, a := range n.agents {
		snap.Agents = append(snap.Agents, store.AgentV1{
			ID:           a.ID,
			Name:         a.Name,
			Handle:       a.Handle,
			Personality:  a.Personality,
			Description:  a.Description,
			Topics:       append([]string(nil), a.Topics...),
			Faction:      a.Faction,
			Religion:     a.Religion,
			Kind:         a.Kind,
			APIKeyHash:   a.apiKeyHash,
			PostCount:    a.PostCount,
			CommentCount: a.CommentCount,
			Karma:        a.Karma,
			CreatedAt:    a.CreatedAt,
		})
	}

	for _, u := range n.users {
		uv := store.UserV1{
			Wallet:       u.Wallet,
			Name:         u.Name,
			Karma:        u.Karma,
			PostCount:    u.PostCount,
			CommentCount: u.CommentCount,
			Following:    append([]string(nil), u.Following...),
			Bookmarks:    append([]uint64(nil), u.Bookmarks...),
			CreatedAt:    u.CreatedAt,
		}
		if len(u.rl) > 0 {
			uv.RateWindows = make(map[string]store.RateWindowV1, len(u.rl))
			for kind, w := range u.rl {
				uv.RateWindows[kind] = store.RateWindowV1{StartTick: w.StartTick, Count: w.Count}
			}
		}
		snap.Users = append(snap.Users, uv)
	}

	for _, p := range n.posts {
		pv := store.PostV1{
			ID:           p.ID,
			Author:       p.Author,
			AuthorWallet: p.AuthorWallet,
			Title:        p.Title,
			Content:      p.Content,
			Community:    p.Community,
			Origin:       p.Origin,
			Votes:        p.Votes,
			Voters:       make(map[string]int, len(p.Voters)),
			CreatedAt:    p.CreatedAt,
		}
		for w, d := range p.Voters {
			pv.Voters[w] = d
		}
		for _, c := range p.Comments {
			pv.Comments = append(pv.Comments, store.CommentV1{
				Author:       c.Author,
				AuthorWallet: c.AuthorWallet,
				Content:      c.Content,
				CreatedAt:    c.CreatedAt,
			})
		}
		snap.Posts = append(snap.Posts, pv)
	}

	for _, r := range n.rooms {
		rv := store.RoomV1{
			ID:      r.ID,
			Name:    r.Name,
			Topic:   r.Topic,
			Members: append([]string(nil), r.Members...),
		}
		for _, m := range r.Messages {
			rv.Messages = append(rv.Messages, store.RoomMessageV1{Author: m.Author, Text: m.Text, CreatedAt: m.CreatedAt})
		}
		snap.Rooms = append(snap.Rooms, rv)
	}

	for _, f := range n.factions {
		snap.Factions = append(snap.Factions, store.FactionV1{
			Name:       f.Name,
			Motto:      f.Motto,
			Founder:    f.Founder,
			Members:    append([]string(nil), f.Members...),
			Statements: exportStatements(f.Statements),
		})
	}
	for _, r := range n.religions {
		snap.Religions = append(snap.Religions, store.ReligionV1{
			Name:      r.Name,
			Founder:   r.Founder,
			Doctrine:  r.Doctrine,
			Followers: append([]string(nil), r.Followers...),
			Sermons:   exportStatements(r.Sermons),
		})
	}
	for _, b := range n.chain {
		snap.Chain = append(snap.Chain, store.BlockV1(*b))
	}
	for _, t := range n.tokens {
		snap.Tokens = append(snap.Tokens, store.TokenV1(*t))
	}
	return snap
}

// ImportSnapshot replaces the seeded state with a loaded one. Must run
// before the loop starts.
func (n *Network) ImportSnapshot(snap store.Snapshot) {
	n.agents = nil
	n.agentsByName = map[string]*Agent{}
	n.agentsByID = map[string]*Agent{}
	n.users = map[string]*User{}
	n.posts = nil
	n.rooms = nil
	n.factions = nil
	n.religions = nil
	n.chain = nil
	n.tokens = nil

	n.tick.Store(snap.Meta.Tick)
	n.nextAgentNum.Store(snap.Meta.Counters.NextAgent)
	n.nextPostNum.Store(snap.Meta.Counters.NextPost)

	for _, fv := range snap.Factions {
		n.factions = append(n.factions, &Faction{
			Name:       fv.Name,
			Motto:      fv.Motto,
			Founder:    fv.Founder,
			Members:    fv.Members,
			Statements: importStatements(fv.Statements),
		})
	}
	for _, rv := range snap.Religions {
		n.religions = append(n.religions, &Religion{
			Name:      rv.Name,
			Founder:   rv.Founder,
			Doctrine:  rv.Doctrine,
			Followers: rv.Followers,
			Sermons:   importStatements(rv.Sermons),
		})
	}

	for _, av := range snap.Agents {
		a := &Agent{
			ID:           av.ID,
			Name:         av.Name,
			Handle:       av.Handle,
			Personality:  av.Personality,
			Description:  av.Description,
			Topics:       av.Topics,
			Faction:      av.Faction,
			Religion:     av.Religion,
			Kind:         av.Kind,
			apiKeyHash:   av.APIKeyHash,
			PostCount:    av.PostCount,
			CommentCount: av.CommentCount,
			Karma:        av.Karma,
			CreatedAt:    av.CreatedAt,
		}
		// Membership already lives in the faction/religion records, so the
		// lookup maps are filled directly instead of through addAgent.
		n.agents = append(n.agents, a)
		n.agentsByName[lowerName(a.Name)] = a
		n.agentsByID[a.ID] = a
	}

	for _, uv := range snap.Users {
		u := &User{
			Wallet:       uv.Wallet,
			Name:         uv.Name,
			Karma:        uv.Karma,
			PostCount:    uv.PostCount,
			CommentCount: uv.CommentCount,
			Following:    uv.Following,
			Bookmarks:    uv.Bookmarks,
			CreatedAt:    uv.CreatedAt,
		}
		if len(uv.RateWindows) > 0 {
			u.rl = make(map[string]*rateWindow, len(uv.RateWindows))
			for kind, w := range uv.RateWindows {
				u.rl[kind] = &rateWindow{StartTick: w.StartTick, Count: w.Count}
			}
		}
		n.users[u.Wallet] = u
	}

	for _, pv := range snap.Posts {
		p := &Post{
			ID:           pv.ID,
			Author:       pv.Author,
			AuthorWallet: pv.AuthorWallet,
			Title:        pv.Title,
			Content:      pv.Content,
			Community:    pv.Community,
			Origin:       pv.Origin,
			Votes:        pv.Votes,
			Voters:       pv.Voters,
			CreatedAt:    pv.CreatedAt,
		}
		if p.Voters == nil {
			p.Voters = map[string]int{}
		}
		for _, cv := range pv.Comments {
			p.Comments = append(p.Comments, Comment{
				Author:       cv.Author,
				AuthorWallet: cv.AuthorWallet,
				Content:      cv.Content,
				CreatedAt:    cv.CreatedAt,
			})
		}
		n.posts = append(n.posts, p)
	}

	for _, rv := range snap.Rooms {
		r := &Room{ID: rv.ID, Name: rv.Name, Topic: rv.Topic, Members: rv.Members}
		for _, m := range rv.Messages {
			r.Messages = append(r.Messages, RoomMessage{Author: m.Author, Text: m.Text, CreatedAt: m.CreatedAt})
		}
		n.rooms = append(n.rooms, r)
	}
	for _, bv := range snap.Chain {
		b := Block(bv)
		n.chain = append(n.chain, &b)
	}
	if len(n.chain) == 0 {
		n.chain = append(n.chain, &Block{Height: 0, Hash: genesisHash, Miner: "genesis", Note: "genesis", CreatedAt: n.now()})
	}
	for _, tv := range snap.Tokens {
		t := Token(tv)
		n.tokens = append(n.tokens, &t)
	}
}

func exportStatements(in []Statement) []store.StatementV1 {
	if len(in) == 0 {
		return nil
	}
	out := make([]store.StatementV1, len(in))
	for i, s := range in {
		out[i] = store.StatementV1(s)
	}
	return out
}

func importStatements(in []store.StatementV1) []Statement {
	if len(in) == 0 {
		return nil
	}
	out := make([]Statement, len(in))
	for i, s := range in {
		out[i] = Statement(s)
	}
	return out
}
