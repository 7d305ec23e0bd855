package scrape

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/rkabir/dsewatch/pkg/models"
)

// NewsSource is one configured market-news RSS feed.
type NewsSource struct {
	Name   string
	RSSURL string
}

// DefaultNewsSources lists Bangladeshi business-news feeds that cover the
// Dhaka bourse.
var DefaultNewsSources = []NewsSource{
	{
		Name:   "The Daily Star Business",
		RSSURL: "https://www.thedailystar.net/business/rss.xml",
	},
	{
		Name:   "The Business Standard",
		RSSURL: "https://www.tbsnews.net/economy/stocks/rss.xml",
	},
	{
		Name:   "Dhaka Tribune Business",
		RSSURL: "https://www.dhakatribune.com/feed/business",
	},
}

// News fetches market news from configured RSS sources.
type News struct {
	sources []NewsSource
	cache   *Cache
	limiter *RateLimiter
	parser  *gofeed.Parser
}

// NewNews creates a news fetcher with the default sources.
func NewNews() *News {
	return NewNewsWithSources(DefaultNewsSources)
}

// NewNewsWithSources creates a news fetcher with custom sources.
func NewNewsWithSources(sources []NewsSource) *News {
	return &News{
		sources: sources,
		cache:   NewCache(10 * time.Minute),
		limiter: NewRateLimiter(2, time.Second),
		parser:  gofeed.NewParser(),
	}
}

// MarketNews returns recent items across all sources, newest first.
// A single feed failing is logged and skipped; only all feeds failing is
// an error.
func (n *News) MarketNews(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	if limit <= 0 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("news:market:%d", limit)
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached.([]models.NewsArticle), nil
	}

	var articles []models.NewsArticle
	var lastErr error
	for _, src := range n.sources {
		items, err := n.fetchFeed(ctx, src)
		if err != nil {
			log.Printf("scrape: news feed %s failed: %v", src.Name, err)
			lastErr = err
			continue
		}
		articles = append(articles, items...)
	}
	if len(articles) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all news sources failed: %w", lastErr)
		}
		return nil, nil
	}

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}

	n.cache.Set(cacheKey, articles)
	return articles, nil
}

func (n *News) fetchFeed(ctx context.Context, src NewsSource) ([]models.NewsArticle, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := n.parser.ParseURLWithContext(src.RSSURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.RSSURL, err)
	}

	articles := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := models.NewsArticle{
			Title:   item.Title,
			Link:    item.Link,
			Source:  src.Name,
			Summary: item.Description,
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}
