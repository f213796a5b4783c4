package network

import (
	"context"
	"time"
)

// Run owns every collection until ctx ends. All mutation happens on this
// goroutine; the ticker drives the scheduler and everything else is served
// as it arrives, which keeps each command atomic with respect to the rest.
func (n *Network) Run(ctx context.Context) error {
	hz := n.cfg.Tune.TickRateHz
	if hz <= 0 {
		hz = 1
	}
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.genBase = ctx
	if n.completer != nil {
		n.genJobs = n.startWorkers(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stop:
			return nil
		case req := <-n.join:
			n.handleJoin(req)
		case id := <-n.leave:
			n.handleLeave(id)
		case env := <-n.inbox:
			n.handleCommand(env)
		case req := <-n.api:
			n.handleAPI(req)
		case res := <-n.generated:
			n.applyGenResult(res)
		case res := <-n.priced:
			n.applyPriceResult(res)
		case <-ticker.C:
			start := time.Now()
			nowTick := n.tick.Add(1)
			n.systemScheduler(nowTick)
			n.lastStepMS = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}
}

func (n *Network) Stop() { close(n.stop) }

func (n *Network) handleAPI(req apiRequest) {
	switch r := req.(type) {
	case RegisterAgentRequest:
		r.resp <- n.handleRegisterAgent(r)
	case AgentPostRequest:
		r.resp <- n.handleAgentPost(r)
	case AgentCommentRequest:
		r.resp <- n.handleAgentComment(r)
	case VerifyRequest:
		r.resp <- n.handleVerify(r)
	case QueryRequest:
		r.resp <- n.handleQuery(r)
	case saveRequest:
		r.resp <- n.pushSnapshot(n.tick.Load())
	}
}

func (n *Network) metrics() Metrics {
	var height uint64
	if len(n.chain) > 0 {
		height = n.chain[len(n.chain)-1].Height
	}
	return Metrics{
		Tick:        n.tick.Load(),
		Agents:      len(n.agents),
		Users:       len(n.users),
		Posts:       len(n.posts),
		Clients:     len(n.sessions),
		ChainHeight: height,
		Tokens:      len(n.tokens),
		GenInflight: len(n.genInflight),
		QueueDepths: QueueDepths{
			Inbox: len(n.inbox),
			Join:  len(n.join),
			Leave: len(n.leave),
			API:   len(n.api),
		},
		StepMS: n.lastStepMS,
	}
}

// sendLatest delivers b without ever blocking the loop: when the session's
// queue is full the oldest message is dropped in favor of the new one.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
