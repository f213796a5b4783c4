// Package indexdb maintains an optional sqlite read-model over the network's
// activity: posts, comments, audited actions and token price samples. It is
// fed asynchronously and never read by the simulation itself; losing it
// loses nothing but query convenience.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqPost reqKind = iota + 1
	reqComment
	reqAudit
	reqPrice
)

type req struct {
	kind reqKind

	post    PostRow
	comment CommentRow
	audit   AuditRow
	price   PriceRow
}

type PostRow struct {
	ID        uint64
	Author    string
	Community string
	Origin    string
	Title     string
	CreatedAt int64
}

type CommentRow struct {
	PostID    uint64
	Author    string
	Community string
	CreatedAt int64
}

type AuditRow struct {
	Actor  string
	Action string
	Target string
	Detail any
	AtUnix int64
}

type PriceRow struct {
	Symbol    string
	PriceUSD  float64
	Volume24h float64
	MarketCap float64
	AtUnix    int64
}

type CommunityCount struct {
	Community string `json:"community"`
	Count     int    `json:"count"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Generous buffer: bursts of generated content must not stall the loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits this append-style workload; NORMAL sync is fine for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY,
			author TEXT NOT NULL,
			community TEXT NOT NULL,
			origin TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_community_created ON posts(community, created_at);`,
		`CREATE TABLE IF NOT EXISTS comments (
			post_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			author TEXT NOT NULL,
			community TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (post_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_community_created ON comments(community, created_at);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			detail_json TEXT,
			at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor ON audits(actor, at_unix);`,
		`CREATE TABLE IF NOT EXISTS token_prices (
			symbol TEXT NOT NULL,
			at_unix INTEGER NOT NULL,
			price_usd REAL NOT NULL,
			volume_24h REAL NOT NULL,
			market_cap REAL NOT NULL,
			PRIMARY KEY (symbol, at_unix)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) RecordPost(r PostRow) {
	s.enqueue(req{kind: reqPost, post: r})
}

func (s *SQLiteIndex) RecordComment(r CommentRow) {
	s.enqueue(req{kind: reqComment, comment: r})
}

func (s *SQLiteIndex) WriteAudit(v any) error {
	r, ok := v.(AuditRow)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		r = AuditRow{Action: "raw", Detail: json.RawMessage(b), AtUnix: time.Now().Unix()}
	}
	s.enqueue(req{kind: reqAudit, audit: r})
	return nil
}

func (s *SQLiteIndex) RecordPrice(r PriceRow) {
	s.enqueue(req{kind: reqPrice, price: r})
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the JSONL logs remain the
		// source of truth.
	}
}

func (s *SQLiteIndex) loop() {
	insertPost, _ := s.db.Prepare(`INSERT OR REPLACE INTO posts(id,author,community,origin,title,created_at) VALUES(?,?,?,?,?,?)`)
	insertComment, _ := s.db.Prepare(`INSERT OR IGNORE INTO comments(post_id,seq,author,community,created_at) VALUES(?,(SELECT COALESCE(MAX(seq),0)+1 FROM comments WHERE post_id=?),?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(actor,action,target,detail_json,at_unix) VALUES(?,?,?,?,?)`)
	insertPrice, _ := s.db.Prepare(`INSERT OR REPLACE INTO token_prices(symbol,at_unix,price_usd,volume_24h,market_cap) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPost, insertComment, insertAudit, insertPrice} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqPost:
			if insertPost != nil {
				_, _ = insertPost.Exec(r.post.ID, r.post.Author, r.post.Community, r.post.Origin, r.post.Title, r.post.CreatedAt)
			}
		case reqComment:
			if insertComment != nil {
				_, _ = insertComment.Exec(r.comment.PostID, r.comment.PostID, r.comment.Author, r.comment.Community, r.comment.CreatedAt)
			}
		case reqAudit:
			if insertAudit != nil {
				detail := ""
				if r.audit.Detail != nil {
					if b, err := json.Marshal(r.audit.Detail); err == nil {
						detail = string(b)
					}
				}
				at := r.audit.AtUnix
				if at == 0 {
					at = time.Now().Unix()
				}
				_, _ = insertAudit.Exec(r.audit.Actor, r.audit.Action, r.audit.Target, detail, at)
			}
		case reqPrice:
			if insertPrice != nil {
				_, _ = insertPrice.Exec(r.price.Symbol, r.price.AtUnix, r.price.PriceUSD, r.price.Volume24h, r.price.MarketCap)
			}
		}
	}
}

// CommunityActivity returns posts+comments per community since the given
// unix time, busiest first.
func (s *SQLiteIndex) CommunityActivity(ctx context.Context, sinceUnix int64) ([]CommunityCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT community, SUM(n) FROM (
			SELECT community, COUNT(*) AS n FROM posts WHERE created_at >= ? GROUP BY community
			UNION ALL
			SELECT community, COUNT(*) AS n FROM comments WHERE created_at >= ? GROUP BY community
		) GROUP BY community ORDER BY SUM(n) DESC`, sinceUnix, sinceUnix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommunityCount
	for rows.Next() {
		var c CommunityCount
		if err := rows.Scan(&c.Community, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Totals returns all-time indexed post and comment counts.
func (s *SQLiteIndex) Totals(ctx context.Context) (posts, comments int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&posts); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&comments)
	return
}

// Flush blocks until previously enqueued rows have been applied. Test hook.
func (s *SQLiteIndex) Flush() {
	for len(s.ch) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	// One extra beat for the row in flight.
	time.Sleep(10 * time.Millisecond)
}
