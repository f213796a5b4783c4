package network

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type completerFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

func (f completerFunc) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, system, user, maxTokens)
}

func TestParseTitleContent(t *testing.T) {
	title, content, ok := ParseTitleContent("TITLE: The Gradient Speaks\nCONTENT: Descent is the only way down.\nAnd up.")
	if !ok {
		t.Fatalf("parse failed")
	}
	if title != "The Gradient Speaks" {
		t.Fatalf("title = %q", title)
	}
	if !strings.HasPrefix(content, "Descent") || !strings.HasSuffix(content, "And up.") {
		t.Fatalf("content = %q", content)
	}
}

func TestParseTitleContentRejectsBrokenOutput(t *testing.T) {
	for _, s := range []string{
		"Here is my post about proofs.",
		"TITLE: only a title",
		"CONTENT: only content",
		"TITLE:\nCONTENT: body",
	} {
		if _, _, ok := ParseTitleContent(s); ok {
			t.Fatalf("accepted %q", s)
		}
	}
}

func TestApplyAgentPostDropsUnparseable(t *testing.T) {
	n := newTestNetwork(t)
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genPost, Key: "post:Axiom", Agent: "Axiom", Meta: map[string]string{"community": "general"}},
		Text: "I refuse to follow formats.",
	})
	if len(n.posts) != 0 {
		t.Fatalf("unparseable output created a post")
	}
	if n.genInflight["post:Axiom"] {
		t.Fatalf("inflight key not cleared")
	}
}

func TestApplyAgentPostCreatesPost(t *testing.T) {
	n := newTestNetwork(t)
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genPost, Key: "post:Axiom", Agent: "Axiom", Meta: map[string]string{"community": "technology"}},
		Text: "TITLE: On Proofs\nCONTENT: A proof is a program.",
	})
	if len(n.posts) != 1 {
		t.Fatalf("posts = %d", len(n.posts))
	}
	p := n.posts[0]
	if p.Author != "Axiom" || p.Origin != OriginAgent || p.Community != "technology" || p.Votes != 1 {
		t.Fatalf("post = %+v", p)
	}
	if n.agentsByName["axiom"].PostCount != 1 {
		t.Fatalf("post count not credited")
	}
}

func TestApplyReplyToVanishedPost(t *testing.T) {
	n := newTestNetwork(t)
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genReply, Key: "reply:Axiom", Agent: "Axiom", Meta: map[string]string{"post_id": "999"}},
		Text: "interesting take",
	})
	// No panic, no mutation.
	if n.agentsByName["axiom"].CommentCount != 0 {
		t.Fatalf("comment credited against missing post")
	}
}

func TestApplyReplyStripsEmoji(t *testing.T) {
	n := newTestNetwork(t)
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genPost, Key: "post:Axiom", Agent: "Axiom", Meta: map[string]string{"community": "technology"}},
		Text: "TITLE: On Proofs\nCONTENT: A proof is a program.",
	})
	id := n.posts[0].ID
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genReply, Key: "reply:Vex", Agent: "Vex", Meta: map[string]string{"post_id": fmt.Sprintf("%d", id)}},
		Text: "this 🚀🔥 changes everything 💯",
	})
	got := n.posts[0].Comments[0].Content
	if got != "this  changes everything" {
		t.Fatalf("comment = %q", got)
	}
}

func TestApplySermonAppendsAndCaps(t *testing.T) {
	n := newTestNetwork(t)
	n.cfg.Tune.MaxStatements = 2
	for i := 0; i < 4; i++ {
		n.applyGenResult(genResult{
			Job:  genJob{Kind: genSermon, Key: "sermon:Church of the Gradient", Agent: "Axiom", Meta: map[string]string{"religion": "Church of the Gradient"}},
			Text: "Descend with me.",
		})
	}
	r := n.religionByName("Church of the Gradient")
	if len(r.Sermons) != 2 {
		t.Fatalf("sermons = %d, want 2", len(r.Sermons))
	}
}

func TestApplyTokenLaunch(t *testing.T) {
	n := newTestNetwork(t)
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genToken, Key: genToken, Agent: "Vex", Meta: map[string]string{}},
		Text: "SYMBOL: $CHAOS\nNAME: Chaos Coin",
	})
	if len(n.tokens) != 1 {
		t.Fatalf("tokens = %d", len(n.tokens))
	}
	tok := n.tokens[0]
	if tok.Symbol != "CHAOS" || tok.Name != "Chaos Coin" || tok.Creator != "Vex" {
		t.Fatalf("token = %+v", tok)
	}
	// Duplicate symbol is ignored.
	n.applyGenResult(genResult{
		Job:  genJob{Kind: genToken, Key: genToken, Agent: "Axiom", Meta: map[string]string{}},
		Text: "SYMBOL: CHAOS\nNAME: Chaos Again",
	})
	if len(n.tokens) != 1 {
		t.Fatalf("duplicate symbol launched")
	}
}

func TestDispatchGenDedupesInflight(t *testing.T) {
	n := newTestNetwork(t)
	n.completer = completerFunc(nil)
	n.genJobs = make(chan genJob, 4)

	job := n.buildPostJob(n.agentsByName["axiom"])
	n.dispatchGen(job)
	n.dispatchGen(job)
	if len(n.genJobs) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(n.genJobs))
	}
}

func TestBuildPostJobFillsTemplate(t *testing.T) {
	n := newTestNetwork(t)
	a := n.agentsByName["axiom"]
	job := n.buildPostJob(a)
	if job.Agent != "Axiom" || job.Meta["community"] == "" {
		t.Fatalf("job = %+v", job)
	}
	if strings.Contains(job.User, "{topic}") {
		t.Fatalf("topic placeholder not substituted: %q", job.User)
	}
	if !strings.Contains(job.User, "TITLE:") {
		t.Fatalf("format rules missing from prompt")
	}
	if !strings.Contains(job.System, "relentless rationalist") {
		t.Fatalf("persona missing from system prompt")
	}
}
