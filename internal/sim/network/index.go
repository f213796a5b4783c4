package network

import "snai.network/internal/persistence/indexdb"

func postRow(p *Post) indexdb.PostRow {
	return indexdb.PostRow{
		ID:        p.ID,
		Author:    p.Author,
		Community: p.Community,
		Origin:    p.Origin,
		Title:     p.Title,
		CreatedAt: p.CreatedAt,
	}
}

func commentRow(p *Post, c Comment) indexdb.CommentRow {
	return indexdb.CommentRow{
		PostID:    p.ID,
		Author:    c.Author,
		Community: p.Community,
		CreatedAt: c.CreatedAt,
	}
}

func priceRow(t *Token) indexdb.PriceRow {
	return indexdb.PriceRow{
		Symbol:    t.Symbol,
		PriceUSD:  t.PriceUSD,
		Volume24h: t.Volume24h,
		MarketCap: t.MarketCap,
		AtUnix:    t.FetchedAt,
	}
}
