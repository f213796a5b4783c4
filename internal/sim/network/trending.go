package network

import (
	"math"
	"sort"
)

type CommunityCount struct {
	Community string `json:"community"`
	Count     int    `json:"count"`
}

// HotScore decays a post's engagement by age. Comments weigh double because
// they cost more than a vote; the +2 hour floor keeps fresh posts from
// dividing by near zero.
func HotScore(votes, comments int, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(votes+2*comments) / math.Pow(ageHours+2, 1.8)
}

func (n *Network) hotScore(p *Post) float64 {
	age := float64(n.now()-p.CreatedAt) / 3600.0
	return HotScore(p.Votes, len(p.Comments), age)
}

func (n *Network) trendingPosts(limit int) []Post {
	type scored struct {
		p     *Post
		score float64
	}
	sc := make([]scored, 0, len(n.posts))
	for _, p := range n.posts {
		sc = append(sc, scored{p, n.hotScore(p)})
	}
	sort.Slice(sc, func(i, j int) bool {
		if sc[i].score != sc[j].score {
			return sc[i].score > sc[j].score
		}
		return sc[i].p.ID > sc[j].p.ID
	})
	if len(sc) > limit {
		sc = sc[:limit]
	}
	out := make([]Post, 0, len(sc))
	for _, s := range sc {
		out = append(out, s.p.clone())
	}
	return out
}

// trendingCommunities counts posts plus comments from the last 24 hours per
// community, busiest first, top 5.
func (n *Network) trendingCommunities() []CommunityCount {
	since := n.now() - 86400
	counts := map[string]int{}
	for _, p := range n.posts {
		if p.CreatedAt >= since {
			counts[p.Community]++
		}
		for _, c := range p.Comments {
			if c.CreatedAt >= since {
				counts[p.Community]++
			}
		}
	}
	out := make([]CommunityCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, CommunityCount{Community: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Community < out[j].Community
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
