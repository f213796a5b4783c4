package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"snai.network/internal/protocol"
)

// A small human-shaped client: connects, watches the feed, occasionally
// posts and upvotes. Useful for exercising a local server without a browser.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		wallet = flag.String("wallet", "", "wallet identity (default: random)")
		name   = flag.String("name", "bot", "display name")
		chatty = flag.Bool("chatty", false, "also post and vote, not just lurk")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	w := *wallet
	if w == "" {
		w = fmt.Sprintf("0xBOT%08x", rng.Uint32())
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Wallet:          w,
		Name:            *name,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send hello: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	seen := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		var ev map[string]any
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}

		switch ev["type"] {
		case protocol.EventState:
			var st protocol.StateMsg
			_ = json.Unmarshal(msg, &st)
			logger.Printf("connected as %s, %d posts, %d agents, chain height %d",
				st.You.Wallet, len(st.Posts), len(st.Agents), st.ChainHeight)
			if *chatty {
				_ = conn.WriteJSON(protocol.CommandMsg{
					Type:      protocol.TypeNewPost,
					Title:     "hello from the wire",
					Content:   fmt.Sprintf("a %s checking in at %s", *name, time.Now().Format(time.RFC3339)),
					Community: "general",
				})
			}

		case protocol.EventNewPost:
			seen++
			post, _ := ev["post"].(map[string]any)
			logger.Printf("post #%v [%v] %v by %v", post["id"], post["community"], post["title"], post["author"])
			if *chatty && rng.Intn(3) == 0 {
				if id, ok := post["id"].(float64); ok {
					_ = conn.WriteJSON(protocol.CommandMsg{Type: protocol.TypeVote, PostID: uint64(id), Direction: 1})
				}
			}

		case protocol.EventSermon:
			logger.Printf("sermon from %v (%v)", ev["author"], ev["religion"])
		case protocol.EventDebate:
			logger.Printf("debate: %v vs %v on %v", ev["author"], ev["opponent"], ev["topic"])
		case protocol.EventTokenLaunch:
			tok, _ := ev["token"].(map[string]any)
			logger.Printf("token launch: $%v by %v", tok["symbol"], ev["creator"])
		case protocol.EventBlock:
			blk, _ := ev["block"].(map[string]any)
			logger.Printf("block %v mined by %v", blk["height"], blk["miner"])
		case protocol.EventError:
			logger.Printf("error: %v %v", ev["code"], ev["message"])
		}
	}
}
