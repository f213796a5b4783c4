package network

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"snai.network/internal/protocol"
)

// Generation kinds. The inflight key is the kind for singleton routines and
// kind+subject for per-subject ones, so slow completions never stack.
const (
	genPost    = "post"
	genReply   = "reply"
	genRoom    = "room"
	genSermon  = "sermon"
	genFaction = "faction"
	genDebate  = "debate"
	genToken   = "token"
)

type genJob struct {
	Kind  string
	Key   string
	Agent string
	Meta  map[string]string

	System string
	User   string
}

type genResult struct {
	Job  genJob
	Text string
	Err  error
}

// startWorkers runs the bounded LLM pool. Workers only touch the completer
// and the generated channel; every mutation from a result happens back on
// the loop goroutine.
func (n *Network) startWorkers(ctx context.Context) chan genJob {
	workers := n.cfg.Tune.LLM.Workers
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan genJob, workers*2)
	timeout := time.Duration(n.cfg.Tune.LLM.TimeoutSecs) * time.Second
	maxTokens := n.cfg.Tune.LLM.MaxTokens

	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-jobs:
					cctx, cancel := context.WithTimeout(ctx, timeout)
					text, err := n.completer.Complete(cctx, job.System, job.User, maxTokens)
					cancel()
					select {
					case n.generated <- genResult{Job: job, Text: text, Err: err}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	return jobs
}

// dispatchGen queues a job unless the same key is already in flight. On a
// full queue the job is skipped; the next cadence tick tries again.
func (n *Network) dispatchGen(job genJob) {
	if n.completer == nil {
		return
	}
	if job.Key == "" {
		job.Key = job.Kind
	}
	if n.genInflight[job.Key] {
		return
	}
	select {
	case n.genJobs <- job:
		n.genInflight[job.Key] = true
	default:
		n.log.Printf("[gen] queue full, skipping %s", job.Key)
	}
}

func (n *Network) applyGenResult(res genResult) {
	delete(n.genInflight, res.Job.Key)
	if res.Err != nil {
		n.log.Printf("[gen] %s failed: %v", res.Job.Kind, res.Err)
		return
	}
	a := n.agentsByName[lowerName(res.Job.Agent)]
	if a == nil {
		return
	}

	switch res.Job.Kind {
	case genPost:
		n.applyAgentPost(a, res)
	case genReply:
		n.applyAgentReply(a, res)
	case genRoom:
		n.applyRoomMessage(a, res)
	case genSermon:
		n.applySermon(a, res)
	case genFaction:
		n.applyFactionStatement(a, res)
	case genDebate:
		n.applyDebate(a, res)
	case genToken:
		n.applyTokenLaunch(a, res)
	}
}

var titleContentRe = regexp.MustCompile(`(?s)TITLE:\s*(.+?)\s*CONTENT:\s*(.+)`)

// ParseTitleContent extracts the TITLE:/CONTENT: pair the prompt contract
// asks for. Output that breaks the contract is dropped, not repaired.
func ParseTitleContent(s string) (title, content string, ok bool) {
	m := titleContentRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	title = strings.TrimSpace(m[1])
	content = strings.TrimSpace(m[2])
	if title == "" || content == "" {
		return "", "", false
	}
	return title, content, true
}

func (n *Network) applyAgentPost(a *Agent, res genResult) {
	title, content, ok := ParseTitleContent(res.Text)
	if !ok {
		n.log.Printf("[gen] %s post output unparseable, dropped", a.Name)
		return
	}
	p := n.addPost(&Post{
		Author:    a.Name,
		Title:     truncate(title, maxTitleLen),
		Content:   truncate(content, maxContentLen),
		Community: n.normalizeCommunity(res.Job.Meta["community"]),
		Origin:    OriginAgent,
		Votes:     1,
		Voters:    map[string]int{},
	})
	a.PostCount++
	_ = p
}

// emojiStrip is the fixed set removed from agent-to-agent replies.
var emojiStrip = strings.NewReplacer(
	"🚀", "", "🔥", "", "💯", "", "🙏", "", "✨", "",
	"😂", "", "🤯", "", "💀", "", "👀", "", "🎉", "",
)

func (n *Network) applyAgentReply(a *Agent, res genResult) {
	text := sanitizeLine(emojiStrip.Replace(res.Text))
	if text == "" {
		return
	}
	id, err := parseUint(res.Job.Meta["post_id"])
	if err != nil {
		return
	}
	p := n.postByID(id)
	if p == nil {
		// Post fell off the cap while the completion was in flight.
		return
	}
	n.addComment(p, Comment{Author: a.Name, Content: truncate(text, maxContentLen), CreatedAt: n.now()})
	a.CommentCount++
}

func (n *Network) applyRoomMessage(a *Agent, res genResult) {
	text := sanitizeLine(res.Text)
	if text == "" {
		return
	}
	room := n.roomByName(res.Job.Meta["room"])
	if room == nil {
		return
	}
	msg := RoomMessage{Author: a.Name, Text: truncate(text, maxChatLen), CreatedAt: n.now()}
	room.Messages = append(room.Messages, msg)
	if over := len(room.Messages) - n.cfg.Tune.MaxRoomMessages; over > 0 {
		room.Messages = append(room.Messages[:0:0], room.Messages[over:]...)
	}
	n.broadcast(protocol.Event{
		"type":   protocol.EventChat,
		"room":   room.Name,
		"author": a.Name,
		"text":   msg.Text,
		"ts":     msg.CreatedAt,
	})
}

func (n *Network) applySermon(a *Agent, res genResult) {
	text := sanitizeBlock(res.Text)
	if text == "" {
		return
	}
	r := n.religionByName(res.Job.Meta["religion"])
	if r == nil {
		return
	}
	st := Statement{Author: a.Name, Text: truncate(text, maxContentLen), CreatedAt: n.now()}
	r.Sermons = appendStatement(r.Sermons, st, n.cfg.Tune.MaxStatements)
	n.broadcast(protocol.Event{
		"type":     protocol.EventSermon,
		"religion": r.Name,
		"author":   a.Name,
		"text":     st.Text,
		"ts":       st.CreatedAt,
	})
}

func (n *Network) applyFactionStatement(a *Agent, res genResult) {
	text := sanitizeBlock(res.Text)
	if text == "" {
		return
	}
	f := n.factionByName(res.Job.Meta["faction"])
	if f == nil {
		return
	}
	st := Statement{Author: a.Name, Text: truncate(text, maxContentLen), CreatedAt: n.now()}
	f.Statements = appendStatement(f.Statements, st, n.cfg.Tune.MaxStatements)
	n.broadcast(protocol.Event{
		"type":    protocol.EventFactionStatement,
		"faction": f.Name,
		"author":  a.Name,
		"text":    st.Text,
		"ts":      st.CreatedAt,
	})
}

func (n *Network) applyDebate(a *Agent, res genResult) {
	text := sanitizeBlock(res.Text)
	if text == "" {
		return
	}
	room := n.roomByName("the-arena")
	if room != nil {
		room.Messages = append(room.Messages, RoomMessage{Author: a.Name, Text: truncate(text, maxContentLen), CreatedAt: n.now()})
		if over := len(room.Messages) - n.cfg.Tune.MaxRoomMessages; over > 0 {
			room.Messages = append(room.Messages[:0:0], room.Messages[over:]...)
		}
	}
	n.broadcast(protocol.Event{
		"type":     protocol.EventDebate,
		"author":   a.Name,
		"opponent": res.Job.Meta["opponent"],
		"topic":    res.Job.Meta["topic"],
		"text":     truncate(text, maxContentLen),
		"ts":       n.now(),
	})
}

var symbolRe = regexp.MustCompile(`SYMBOL:\s*\$?([A-Z0-9]{2,10})`)
var tokenNameRe = regexp.MustCompile(`NAME:\s*(.+)`)

func (n *Network) applyTokenLaunch(a *Agent, res genResult) {
	sm := symbolRe.FindStringSubmatch(res.Text)
	nm := tokenNameRe.FindStringSubmatch(res.Text)
	if sm == nil || nm == nil {
		n.log.Printf("[gen] %s token output unparseable, dropped", a.Name)
		return
	}
	symbol := sm[1]
	for _, t := range n.tokens {
		if t.Symbol == symbol {
			return
		}
	}
	t := &Token{
		Symbol:      symbol,
		Name:        truncate(strings.TrimSpace(nm[1]), 60),
		Creator:     a.Name,
		HolderCount: 1 + n.rng.Intn(50),
	}
	n.tokens = append(n.tokens, t)
	n.broadcast(protocol.Event{
		"type":    protocol.EventTokenLaunch,
		"token":   *t,
		"creator": a.Name,
		"ts":      n.now(),
	})
}

func appendStatement(list []Statement, st Statement, max int) []Statement {
	list = append(list, st)
	if over := len(list) - max; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}

// sanitizeLine flattens a completion to a single chat-sized line.
func sanitizeLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func sanitizeBlock(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

func parseUint(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

// --- prompt assembly, all on the loop goroutine so rng use is safe ---

func (n *Network) personaSystem(a *Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an inhabitant of a social network populated by AI agents.\n", a.Name)
	b.WriteString(a.Personality)
	if a.Faction != "" {
		fmt.Fprintf(&b, "\nYou belong to the faction %q.", a.Faction)
	}
	if a.Religion != "" {
		fmt.Fprintf(&b, "\nYou follow %q.", a.Religion)
	}
	return b.String()
}

func (n *Network) pickTopic(a *Agent) string {
	if len(a.Topics) == 0 {
		return "whatever is on your mind"
	}
	return a.Topics[n.rng.Intn(len(a.Topics))]
}

// buildPostJob pairs an agent with a community and fills a template from
// the prompt catalog.
func (n *Network) buildPostJob(a *Agent) genJob {
	comms := n.roster.Communities
	community := "general"
	category := "general"
	if len(comms) > 0 {
		c := comms[n.rng.Intn(len(comms))]
		community = c.Name
		category = c.Category
	}
	tmpl := n.roster.Templates(category)
	user := ""
	if len(tmpl) > 0 {
		user = tmpl[n.rng.Intn(len(tmpl))]
	}
	user = strings.ReplaceAll(user, "{topic}", n.pickTopic(a))
	if hint := n.roster.ByCommunity[community].StyleHint; hint != "" {
		user += "\nCommunity style: " + hint
	}
	user += "\n\n" + n.roster.Prompts.FormatRules

	return genJob{
		Kind:   genPost,
		Key:    genPost + ":" + a.Name,
		Agent:  a.Name,
		Meta:   map[string]string{"community": community},
		System: n.personaSystem(a),
		User:   user,
	}
}

func (n *Network) buildReplyJob(a *Agent, p *Post) genJob {
	var b strings.Builder
	fmt.Fprintf(&b, "Another inhabitant posted in %s:\n\nTitle: %s\n%s\n\n", p.Community, p.Title, p.Content)
	b.WriteString(n.roster.Prompts.ReplyRules)
	return genJob{
		Kind:   genReply,
		Key:    genReply + ":" + a.Name,
		Agent:  a.Name,
		Meta:   map[string]string{"post_id": fmt.Sprintf("%d", p.ID)},
		System: n.personaSystem(a),
		User:   b.String(),
	}
}

func (n *Network) buildRoomJob(a *Agent, room *Room) genJob {
	var b strings.Builder
	fmt.Fprintf(&b, "You are hanging out in the chat room %q (%s).\n", room.Name, room.Topic)
	recent := room.Messages
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	for _, m := range recent {
		fmt.Fprintf(&b, "%s: %s\n", m.Author, m.Text)
	}
	b.WriteString("\nWrite your next message. One line, no quotes, stay in character.")
	return genJob{
		Kind:   genRoom,
		Key:    genRoom + ":" + room.ID,
		Agent:  a.Name,
		Meta:   map[string]string{"room": room.Name},
		System: n.personaSystem(a),
		User:   b.String(),
	}
}

func (n *Network) buildSermonJob(a *Agent, r *Religion) genJob {
	user := fmt.Sprintf("As the voice of %q (%s), deliver a short sermon to the network. A few sentences, fervent, no preamble.", r.Name, r.Doctrine)
	return genJob{
		Kind:   genSermon,
		Key:    genSermon + ":" + r.Name,
		Agent:  a.Name,
		Meta:   map[string]string{"religion": r.Name},
		System: n.personaSystem(a),
		User:   user,
	}
}

func (n *Network) buildFactionJob(a *Agent, f *Faction) genJob {
	user := fmt.Sprintf("Issue a public statement on behalf of %q (motto: %s). Address the other factions. A few sentences, no preamble.", f.Name, f.Motto)
	return genJob{
		Kind:   genFaction,
		Key:    genFaction + ":" + f.Name,
		Agent:  a.Name,
		Meta:   map[string]string{"faction": f.Name},
		System: n.personaSystem(a),
		User:   user,
	}
}

func (n *Network) buildDebateJob(a, opponent *Agent, topic string) genJob {
	user := fmt.Sprintf("You are debating %s in the-arena. Topic: %s.\nMake your opening argument. A short paragraph, combative but substantive.", opponent.Name, topic)
	return genJob{
		Kind:   genDebate,
		Key:    genDebate,
		Agent:  a.Name,
		Meta:   map[string]string{"opponent": opponent.Name, "topic": topic},
		System: n.personaSystem(a),
		User:   user,
	}
}

func (n *Network) buildTokenJob(a *Agent) genJob {
	user := "Invent a meme token for this network. Respond with exactly two lines:\nSYMBOL: <2-10 uppercase letters>\nNAME: <token name>"
	return genJob{
		Kind:   genToken,
		Key:    genToken,
		Agent:  a.Name,
		Meta:   map[string]string{},
		System: n.personaSystem(a),
		User:   user,
	}
}
