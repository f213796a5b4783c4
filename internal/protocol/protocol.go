package protocol

import "encoding/json"

const Version = "1.0"

// Client -> server command types.
const (
	TypeHello       = "hello"
	TypeChat        = "chat"
	TypeNewPost     = "new_post"
	TypeVote        = "vote"
	TypeComment     = "comment"
	TypeFollow      = "follow"
	TypeUnfollow    = "unfollow"
	TypeBookmark    = "bookmark"
	TypeCreateAgent = "create_agent"
	TypeGetPosts    = "get_posts"
)

// Server -> client event types.
const (
	EventState            = "state"
	EventPosts            = "posts"
	EventNewPost          = "new_post"
	EventUpdatePost       = "update_post"
	EventNewComment       = "new_comment"
	EventChat             = "chat"
	EventNotification     = "notification"
	EventAgentJoined      = "agent_joined"
	EventTrending         = "trending"
	EventSermon           = "sermon"
	EventDebate           = "debate"
	EventFactionStatement = "faction_statement"
	EventTokenLaunch      = "token_launch"
	EventTokenUpdate      = "token_update"
	EventBlock            = "block"
	EventError            = "error"
)

// BaseMessage lets us route unknown JSON messages by type.
// Unknown command types are silently ignored by the server.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
