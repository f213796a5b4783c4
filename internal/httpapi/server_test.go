package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snai.network/internal/sim/network"
	"snai.network/internal/sim/roster"
	"snai.network/internal/sim/tuning"
)

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ros := &roster.Roster{
		Agents:      []roster.Persona{{Name: "Axiom", Handle: "axiom", Personality: "p"}},
		Communities: []roster.Community{{Name: "general", Category: "general"}},
		ByCommunity: map[string]roster.Community{"general": {Name: "general", Category: "general"}},
		Prompts:     roster.PromptCatalog{Categories: map[string][]string{"general": {"post"}}},
	}
	n := network.New(network.Config{Seed: 1, Tune: tuning.Defaults()}, ros, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = n.Run(ctx) }()

	mux := http.NewServeMux()
	NewServer(n, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, apiKey string, body any) (int, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func register(t *testing.T, srv *httptest.Server, name string) (id, key string) {
	t.Helper()
	code, out := postJSON(t, srv.URL+"/api/v1/agents/register", "", map[string]any{
		"name": name, "personality": "testy",
	})
	if code != http.StatusOK || out["success"] != true {
		t.Fatalf("register: %d %v", code, out)
	}
	agent := out["agent"].(map[string]any)
	key, ok := out["apiKey"].(string)
	if !ok || !strings.HasPrefix(key, "snai_") {
		t.Fatalf("register envelope missing apiKey: %v", out)
	}
	return agent["id"].(string), key
}

func TestRegisterAndPostFlow(t *testing.T) {
	srv := startAPI(t)
	id, key := register(t, srv, "restbot")

	code, out := postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/post", srv.URL, id), key, map[string]any{
		"title": "over rest", "content": "body", "community": "general",
	})
	if code != http.StatusOK || out["success"] != true {
		t.Fatalf("post: %d %v", code, out)
	}
	post := out["post"].(map[string]any)
	if post["title"] != "over rest" || post["origin"] != "api" {
		t.Fatalf("post = %v", post)
	}

	code, out = postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/comment", srv.URL, id), key, map[string]any{
		"postId": post["id"], "content": "replying to myself",
	})
	if code != http.StatusOK {
		t.Fatalf("comment: %d %v", code, out)
	}

	code, out = getJSON(t, srv.URL+"/api/posts?limit=10")
	if code != http.StatusOK {
		t.Fatalf("posts: %d", code)
	}
	posts := out["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("posts = %v", posts)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	srv := startAPI(t)
	id, key := register(t, srv, "longbot")

	code, out := postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/post", srv.URL, id), key, map[string]any{
		"title": strings.Repeat("t", 201), "content": "c",
	})
	if code != http.StatusBadRequest || out["code"] != "E_BAD_REQUEST" {
		t.Fatalf("long title: %d %v", code, out)
	}

	code, out = postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/post", srv.URL, id), key, map[string]any{
		"title": "t", "content": strings.Repeat("c", 5001),
	})
	if code != http.StatusBadRequest {
		t.Fatalf("long content: %d %v", code, out)
	}

	code, out = postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/comment", srv.URL, id), key, map[string]any{
		"postId": 1, "content": strings.Repeat("c", 2001),
	})
	if code != http.StatusBadRequest {
		t.Fatalf("long comment: %d %v", code, out)
	}
}

func TestAuthFailures(t *testing.T) {
	srv := startAPI(t)
	id, _ := register(t, srv, "authbot")

	code, out := postJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/post", srv.URL, id), "snai_wrong", map[string]any{
		"title": "t", "content": "c",
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("bad key: %d %v", code, out)
	}
	if out["success"] != false || out["code"] != "E_UNAUTHORIZED" {
		t.Fatalf("envelope = %v", out)
	}

	code, _ = postJSON(t, srv.URL+"/api/v1/agents/A999999/post", "snai_x", map[string]any{"title": "t", "content": "c"})
	if code != http.StatusNotFound {
		t.Fatalf("missing agent: %d", code)
	}

	code, out = getJSON(t, fmt.Sprintf("%s/api/v1/agents/%s/verify", srv.URL, id))
	if code != http.StatusUnauthorized {
		t.Fatalf("verify without key: %d %v", code, out)
	}
}

func TestVerify(t *testing.T) {
	srv := startAPI(t)
	id, key := register(t, srv, "verifybot")

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/agents/%s/verify", srv.URL, id), nil)
	req.Header.Set("X-API-Key", key)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d", resp.StatusCode)
	}
}

func TestDuplicateNameIsBadRequest(t *testing.T) {
	srv := startAPI(t)
	register(t, srv, "dupebot")
	code, out := postJSON(t, srv.URL+"/api/v1/agents/register", "", map[string]any{
		"name": "DupeBot", "personality": "p",
	})
	if code != http.StatusBadRequest || out["code"] != "E_NAME_TAKEN" {
		t.Fatalf("dupe register: %d %v", code, out)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := startAPI(t)
	code, out := getJSON(t, srv.URL+"/api/stats")
	if code != http.StatusOK {
		t.Fatalf("stats: %d", code)
	}
	stats := out["stats"].(map[string]any)
	if stats["agents"].(float64) != 1 {
		t.Fatalf("stats = %v", stats)
	}
}
