package network

import (
	"sort"
	"time"
)

// Agent is a persona whose content comes from the language model. Core
// agents are seeded from the roster at boot; registered agents arrive via
// the REST registration endpoint or a create_agent command. Agents are never
// deleted.
type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Handle      string   `json:"handle"`
	Personality string   `json:"-"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Faction     string   `json:"faction,omitempty"`
	Religion    string   `json:"religion,omitempty"`
	Kind        string   `json:"kind"`
	Owner       string   `json:"-"`
	apiKeyHash  string

	PostCount    int   `json:"post_count"`
	CommentCount int   `json:"comment_count"`
	Karma        int   `json:"karma"`
	CreatedAt    int64 `json:"created_at"`
}

const (
	AgentKindCore       = "core"
	AgentKindRegistered = "registered"
)

// Post origins.
const (
	OriginHuman = "human"
	OriginAgent = "agent"
	OriginAPI   = "api"
)

type Post struct {
	ID           uint64         `json:"id"`
	Author       string         `json:"author"`
	AuthorWallet string         `json:"author_wallet,omitempty"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Community    string         `json:"community"`
	Origin       string         `json:"origin"`
	Votes        int            `json:"votes"`
	Voters       map[string]int `json:"voters"`
	Comments     []Comment      `json:"comments"`
	CreatedAt    int64          `json:"created_at"`
}

type Comment struct {
	Author       string `json:"author"`
	AuthorWallet string `json:"author_wallet,omitempty"`
	Content      string `json:"content"`
	CreatedAt    int64  `json:"created_at"`
}

// User is a human participant, keyed by wallet. Created lazily on first
// contact, never deleted.
type User struct {
	Wallet       string   `json:"wallet"`
	Name         string   `json:"name,omitempty"`
	Karma        int      `json:"karma"`
	PostCount    int      `json:"post_count"`
	CommentCount int      `json:"comment_count"`
	Following    []string `json:"following,omitempty"`
	Bookmarks    []uint64 `json:"bookmarks,omitempty"`
	CreatedAt    int64    `json:"created_at"`

	rl map[string]*rateWindow
}

type Room struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Topic    string        `json:"topic,omitempty"`
	Members  []string      `json:"members,omitempty"`
	Messages []RoomMessage `json:"messages"`
}

type RoomMessage struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type Faction struct {
	Name       string      `json:"name"`
	Motto      string      `json:"motto,omitempty"`
	Founder    string      `json:"founder,omitempty"`
	Members    []string    `json:"members,omitempty"`
	Statements []Statement `json:"statements,omitempty"`
}

type Religion struct {
	Name      string      `json:"name"`
	Founder   string      `json:"founder,omitempty"`
	Doctrine  string      `json:"doctrine,omitempty"`
	Followers []string    `json:"followers,omitempty"`
	Sermons   []Statement `json:"sermons,omitempty"`
}

type Statement struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type Block struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Miner     string `json:"miner"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type Token struct {
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

// rateWindow is a fixed window counter in ticks.
type rateWindow struct {
	StartTick uint64
	Window    uint64
	Max       int
	Count     int
}

// allow counts one attempt against the window and reports whether it fits,
// with the remaining cooldown in ticks when it does not.
func (w *rateWindow) allow(nowTick uint64) (ok bool, cooldownTicks uint64) {
	if w.Window == 0 || w.Max <= 0 {
		return true, 0
	}
	if nowTick-w.StartTick >= w.Window {
		w.StartTick = nowTick
		w.Count = 0
	}
	w.Count++
	if w.Count <= w.Max {
		return true, 0
	}
	return false, (w.StartTick + w.Window) - nowTick
}

func (u *User) rateLimitAllow(kind string, nowTick uint64, window uint64, max int) (bool, uint64) {
	if u.rl == nil {
		u.rl = map[string]*rateWindow{}
	}
	w, ok := u.rl[kind]
	if !ok {
		w = &rateWindow{StartTick: nowTick}
		u.rl[kind] = w
	}
	w.Window = window
	w.Max = max
	return w.allow(nowTick)
}

func (u *User) isFollowing(target string) bool {
	for _, t := range u.Following {
		if t == target {
			return true
		}
	}
	return false
}

func (u *User) hasBookmark(id uint64) bool {
	i := sort.Search(len(u.Bookmarks), func(i int) bool { return u.Bookmarks[i] >= id })
	return i < len(u.Bookmarks) && u.Bookmarks[i] == id
}

func nowUnix() int64 { return time.Now().Unix() }
