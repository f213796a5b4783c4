// Operator tooling for a data dir: inspect the persisted state and query
// the sqlite read-model without touching a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"snai.network/internal/persistence/indexdb"
	"snai.network/internal/persistence/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <state|db> [flags]")
	os.Exit(2)
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	posts := fs.Bool("posts", false, "also list retained posts")
	_ = fs.Parse(args)

	snap, err := store.Load(filepath.Join(*dataDir, "state"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load state:", err)
		os.Exit(1)
	}
	if snap.Meta.Version == 0 {
		fmt.Fprintln(os.Stderr, "no state in", *dataDir)
		os.Exit(1)
	}

	saved := time.Unix(snap.Meta.SavedAtUnix, 0).UTC().Format(time.RFC3339)
	fmt.Printf("state v%d tick=%d saved=%s\n", snap.Meta.Version, snap.Meta.Tick, saved)
	fmt.Printf("agents=%d users=%d posts=%d rooms=%d factions=%d religions=%d tokens=%d chain=%d\n",
		len(snap.Agents), len(snap.Users), len(snap.Posts), len(snap.Rooms),
		len(snap.Factions), len(snap.Religions), len(snap.Tokens), len(snap.Chain))
	fmt.Printf("counters: next_agent=%d next_post=%d\n", snap.Meta.Counters.NextAgent, snap.Meta.Counters.NextPost)

	if *posts {
		for _, p := range snap.Posts {
			fmt.Printf("  #%d [%s] %q by %s votes=%d comments=%d\n",
				p.ID, p.Community, p.Title, p.Author, p.Votes, len(p.Comments))
		}
	}
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	sinceHours := fs.Int("since_hours", 24, "community activity window in hours")
	_ = fs.Parse(args)

	idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "network.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index db:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	posts, comments, err := idx.Totals(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "totals:", err)
		os.Exit(1)
	}
	fmt.Printf("indexed: posts=%d comments=%d\n", posts, comments)

	since := time.Now().Add(-time.Duration(*sinceHours) * time.Hour).Unix()
	activity, err := idx.CommunityActivity(ctx, since)
	if err != nil {
		fmt.Fprintln(os.Stderr, "community activity:", err)
		os.Exit(1)
	}
	fmt.Printf("activity (last %dh):\n", *sinceHours)
	for _, a := range activity {
		fmt.Printf("  %-16s %d\n", a.Community, a.Count)
	}
}
