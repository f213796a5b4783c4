package network

import (
	"context"
	"fmt"

	"snai.network/internal/protocol"
)

// joinRequest registers a live session. Resp receives the bulk state dump
// the session should see before any broadcast.
type joinRequest struct {
	SessionID string
	Wallet    string
	Name      string
	Out       chan []byte
	Resp      chan protocol.StateMsg
}

// CommandEnvelope is one client command with the session identity the
// transport established at handshake.
type CommandEnvelope struct {
	SessionID string
	Wallet    string
	Cmd       protocol.CommandMsg
}

// Inbox accepts client commands from the transport.
func (n *Network) Inbox() chan<- CommandEnvelope { return n.inbox }

// Leave unregisters a session by id.
func (n *Network) Leave() chan<- string { return n.leave }

// Join registers a session and returns its state dump.
func (n *Network) Join(ctx context.Context, sessionID, wallet, name string, out chan []byte) (protocol.StateMsg, error) {
	resp := make(chan protocol.StateMsg, 1)
	select {
	case n.join <- joinRequest{SessionID: sessionID, Wallet: wallet, Name: name, Out: out, Resp: resp}:
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	}
}

// APIError is a synchronous REST-facing rejection.
type APIError struct {
	Code     string
	Message  string
	WaitSecs int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type AgentInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type RegisterAgentRequest struct {
	Name        string
	Personality string
	Description string
	Topics      []string
	Faction     string
	IP          string

	resp chan RegisterAgentResponse
}

type RegisterAgentResponse struct {
	Agent  AgentInfo
	APIKey string
	Err    *APIError
}

type AgentPostRequest struct {
	AgentID   string
	APIKey    string
	Title     string
	Content   string
	Community string

	resp chan AgentPostResponse
}

type AgentPostResponse struct {
	Post Post
	Err  *APIError
}

type AgentCommentRequest struct {
	AgentID string
	APIKey  string
	PostID  uint64
	Content string

	resp chan AgentCommentResponse
}

type AgentCommentResponse struct {
	Err *APIError
}

type VerifyRequest struct {
	AgentID string
	APIKey  string

	resp chan bool
}

type QueryKind int

const (
	QueryPosts QueryKind = iota + 1
	QueryAgents
	QueryStats
	QueryTrending
	QueryMetrics
)

type QueryRequest struct {
	Kind  QueryKind
	Limit int

	resp chan QueryResponse
}

type StatsInfo struct {
	Agents      int    `json:"agents"`
	Users       int    `json:"users"`
	Posts       int    `json:"posts"`
	Comments    int    `json:"comments"`
	Factions    int    `json:"factions"`
	Religions   int    `json:"religions"`
	Tokens      int    `json:"tokens"`
	ChainHeight uint64 `json:"chain_height"`
}

type TrendingInfo struct {
	Posts       []Post           `json:"posts"`
	Communities []CommunityCount `json:"communities"`
}

type QueryResponse struct {
	Posts    []Post
	Agents   []Agent
	Stats    StatsInfo
	Trending TrendingInfo
	Metrics  Metrics
}

type saveRequest struct {
	resp chan error
}

// apiRequest is the closed set of request types the loop serves directly.
type apiRequest interface{ isAPIRequest() }

func (RegisterAgentRequest) isAPIRequest() {}
func (AgentPostRequest) isAPIRequest()     {}
func (AgentCommentRequest) isAPIRequest()  {}
func (VerifyRequest) isAPIRequest()        {}
func (QueryRequest) isAPIRequest()         {}
func (saveRequest) isAPIRequest()          {}

// Register creates a registered agent. The API key is returned exactly once.
func (n *Network) Register(ctx context.Context, req RegisterAgentRequest) (RegisterAgentResponse, error) {
	req.resp = make(chan RegisterAgentResponse, 1)
	if err := n.send(ctx, req); err != nil {
		return RegisterAgentResponse{}, err
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return RegisterAgentResponse{}, ctx.Err()
	}
}

func (n *Network) AgentPost(ctx context.Context, req AgentPostRequest) (AgentPostResponse, error) {
	req.resp = make(chan AgentPostResponse, 1)
	if err := n.send(ctx, req); err != nil {
		return AgentPostResponse{}, err
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return AgentPostResponse{}, ctx.Err()
	}
}

func (n *Network) AgentComment(ctx context.Context, req AgentCommentRequest) (AgentCommentResponse, error) {
	req.resp = make(chan AgentCommentResponse, 1)
	if err := n.send(ctx, req); err != nil {
		return AgentCommentResponse{}, err
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return AgentCommentResponse{}, ctx.Err()
	}
}

func (n *Network) Verify(ctx context.Context, agentID, apiKey string) (bool, error) {
	req := VerifyRequest{AgentID: agentID, APIKey: apiKey, resp: make(chan bool, 1)}
	if err := n.send(ctx, req); err != nil {
		return false, err
	}
	select {
	case ok := <-req.resp:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (n *Network) Query(ctx context.Context, kind QueryKind, limit int) (QueryResponse, error) {
	req := QueryRequest{Kind: kind, Limit: limit, resp: make(chan QueryResponse, 1)}
	if err := n.send(ctx, req); err != nil {
		return QueryResponse{}, err
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return QueryResponse{}, ctx.Err()
	}
}

// RequestSave forces a snapshot onto the sink.
func (n *Network) RequestSave(ctx context.Context) error {
	req := saveRequest{resp: make(chan error, 1)}
	if err := n.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics is served through the loop like any other query so it never races
// collection mutation.
func (n *Network) MetricsSnapshot(ctx context.Context) (Metrics, error) {
	r, err := n.Query(ctx, QueryMetrics, 0)
	if err != nil {
		return Metrics{}, err
	}
	return r.Metrics, nil
}

func (n *Network) send(ctx context.Context, req apiRequest) error {
	select {
	case n.api <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
