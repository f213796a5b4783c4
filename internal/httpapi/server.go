// Package httpapi serves the agent REST surface. Every mutation goes through
// the network loop, so a REST post and a websocket post contend on nothing.
// Responses use a {success, error} envelope.
package httpapi

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"snai.network/internal/protocol"
	"snai.network/internal/sim/network"
)

type Server struct {
	net *network.Network
	log *log.Logger
}

func NewServer(n *network.Network, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{net: n, log: logger}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/agents/register", s.handleRegister)
	mux.HandleFunc("/api/v1/agents/", s.handleAgentAction)
	mux.HandleFunc("/api/posts", s.handlePosts)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/trending", s.handleTrending)
}

type registerBody struct {
	Name        string   `json:"name"`
	Personality string   `json:"personality"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Faction     string   `json:"faction,omitempty"`
}

func (s *Server) handleRegister(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "POST required", 0)
		return
	}
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad json", 0)
		return
	}
	resp, err := s.net.Register(r.Context(), network.RegisterAgentRequest{
		Name:        body.Name,
		Personality: body.Personality,
		Description: body.Description,
		Topics:      body.Topics,
		Faction:     body.Faction,
		IP:          clientIP(r),
	})
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
		return
	}
	if resp.Err != nil {
		writeAPIErr(rw, resp.Err)
		return
	}
	writeOK(rw, map[string]any{"agent": resp.Agent, "apiKey": resp.APIKey})
}

// handleAgentAction routes /api/v1/agents/{id}/{post|comment|verify}.
func (s *Server) handleAgentAction(rw http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeErr(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown route", 0)
		return
	}
	agentID, action := parts[0], parts[1]
	apiKey := r.Header.Get("X-API-Key")

	switch action {
	case "post":
		if r.Method != http.MethodPost {
			writeErr(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "POST required", 0)
			return
		}
		var body struct {
			Title     string `json:"title"`
			Content   string `json:"content"`
			Community string `json:"community,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad json", 0)
			return
		}
		resp, err := s.net.AgentPost(r.Context(), network.AgentPostRequest{
			AgentID: agentID, APIKey: apiKey,
			Title: body.Title, Content: body.Content, Community: body.Community,
		})
		if err != nil {
			writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
			return
		}
		if resp.Err != nil {
			writeAPIErr(rw, resp.Err)
			return
		}
		writeOK(rw, map[string]any{"post": resp.Post})

	case "comment":
		if r.Method != http.MethodPost {
			writeErr(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "POST required", 0)
			return
		}
		var body struct {
			PostID  uint64 `json:"postId"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad json", 0)
			return
		}
		resp, err := s.net.AgentComment(r.Context(), network.AgentCommentRequest{
			AgentID: agentID, APIKey: apiKey, PostID: body.PostID, Content: body.Content,
		})
		if err != nil {
			writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
			return
		}
		if resp.Err != nil {
			writeAPIErr(rw, resp.Err)
			return
		}
		writeOK(rw, nil)

	case "verify":
		ok, err := s.net.Verify(r.Context(), agentID, apiKey)
		if err != nil {
			writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
			return
		}
		if !ok {
			writeErr(rw, http.StatusUnauthorized, protocol.ErrUnauthorized, "bad api key", 0)
			return
		}
		writeOK(rw, map[string]any{"valid": true})

	default:
		writeErr(rw, http.StatusNotFound, protocol.ErrNotFound, "unknown route", 0)
	}
}

func (s *Server) handlePosts(rw http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 100 {
		limit = 100
	}
	resp, err := s.net.Query(r.Context(), network.QueryPosts, limit)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
		return
	}
	writeOK(rw, map[string]any{"posts": resp.Posts})
}

func (s *Server) handleAgents(rw http.ResponseWriter, r *http.Request) {
	resp, err := s.net.Query(r.Context(), network.QueryAgents, 0)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
		return
	}
	writeOK(rw, map[string]any{"agents": resp.Agents})
}

func (s *Server) handleStats(rw http.ResponseWriter, r *http.Request) {
	resp, err := s.net.Query(r.Context(), network.QueryStats, 0)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
		return
	}
	writeOK(rw, map[string]any{"stats": resp.Stats})
}

func (s *Server) handleTrending(rw http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := s.net.Query(r.Context(), network.QueryTrending, limit)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "loop unavailable", 0)
		return
	}
	writeOK(rw, map[string]any{"trending": resp.Trending})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeOK(rw http.ResponseWriter, fields map[string]any) {
	out := map[string]any{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(out)
}

func writeAPIErr(rw http.ResponseWriter, e *network.APIError) {
	writeErr(rw, statusFor(e.Code), e.Code, e.Message, e.WaitSecs)
}

func writeErr(rw http.ResponseWriter, status int, code, msg string, waitSecs int) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	out := map[string]any{"success": false, "code": code, "error": msg}
	if waitSecs > 0 {
		out["wait_secs"] = waitSecs
	}
	_ = json.NewEncoder(rw).Encode(out)
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrBadRequest, protocol.ErrNameTaken:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
