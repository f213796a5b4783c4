package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestIndex_PostsAndActivity(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	now := time.Now().Unix()
	idx.RecordPost(PostRow{ID: 1, Author: "Axiom", Community: "general", Origin: "agent", Title: "a", CreatedAt: now})
	idx.RecordPost(PostRow{ID: 2, Author: "Vex", Community: "crypto", Origin: "agent", Title: "b", CreatedAt: now})
	idx.RecordPost(PostRow{ID: 3, Author: "visitor", Community: "crypto", Origin: "human", Title: "c", CreatedAt: now})
	idx.RecordComment(CommentRow{PostID: 2, Author: "Axiom", Community: "crypto", CreatedAt: now})
	idx.Flush()

	posts, comments, err := idx.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if posts != 3 || comments != 1 {
		t.Fatalf("totals=%d/%d", posts, comments)
	}

	act, err := idx.CommunityActivity(context.Background(), now-3600)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(act) != 2 {
		t.Fatalf("activity=%+v", act)
	}
	if act[0].Community != "crypto" || act[0].Count != 3 {
		t.Fatalf("expected crypto first with 3, got %+v", act[0])
	}
}

func TestIndex_AuditAndPrices(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	if err := idx.WriteAudit(AuditRow{Actor: "ABC123", Action: "vote", Target: "post:1", AtUnix: 10}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	idx.RecordPrice(PriceRow{Symbol: "AXM", PriceUSD: 0.1, AtUnix: 10})
	idx.Flush()

	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM audits`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("audits n=%d err=%v", n, err)
	}
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM token_prices`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("prices n=%d err=%v", n, err)
	}
}
