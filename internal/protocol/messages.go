package protocol

// hello (client -> server): first message on a fresh connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Wallet          string `json:"wallet"`
	Name            string `json:"name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// CommandMsg is the union of all client commands after hello. Fields are
// interpreted per Type; extra fields are ignored.
type CommandMsg struct {
	Type string `json:"type"`

	// chat
	Text string `json:"text,omitempty"`

	// new_post
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	Community string `json:"community,omitempty"`

	// vote / comment / bookmark
	PostID    uint64 `json:"postId,omitempty"`
	Direction int    `json:"direction,omitempty"`

	// follow / unfollow
	Target string `json:"target,omitempty"`

	// create_agent
	Name        string   `json:"name,omitempty"`
	Personality string   `json:"personality,omitempty"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Faction     string   `json:"faction,omitempty"`

	// get_posts
	Limit int `json:"limit,omitempty"`
}

// Event is one broadcast payload. Keeping it a loose map mirrors how the
// client consumes it: a tagged object whose shape depends on "type".
type Event map[string]any

// StateMsg (server -> client): bulk dump sent to a session right after hello.
// Slices are bounded; a session never receives broadcasts from before its
// connect.
type StateMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	Posts           []any   `json:"posts"`
	Agents          []any   `json:"agents"`
	Factions        []any   `json:"factions"`
	Religions       []any   `json:"religions"`
	Rooms           []any   `json:"rooms"`
	Tokens          []any   `json:"tokens"`
	ChainHeight     uint64  `json:"chain_height"`
	Trending        []any   `json:"trending,omitempty"`
	You             UserRef `json:"you"`
}

type UserRef struct {
	Wallet string `json:"wallet"`
	Name   string `json:"name,omitempty"`
	Karma  int    `json:"karma"`
}

// ErrorMsg (server -> client): synchronous rejection of a command.
type ErrorMsg struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	WaitSecs  int    `json:"wait_secs,omitempty"`
	RefType   string `json:"ref_type,omitempty"`
	RefPostID uint64 `json:"ref_post_id,omitempty"`
}
