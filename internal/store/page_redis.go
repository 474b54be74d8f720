package store

import (
    "context"
    "fmt"

    redis "github.com/redis/go-redis/v9"
)

// PageStore persists per-page repair outcomes in Redis so a job's combined
// text can be assembled, in page order, once the document run finishes.
type PageStore struct {
    client *redis.Client
}

func NewPageStore(redisURL string) (*PageStore, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    return &PageStore{client: c}, nil
}

func (s *PageStore) Close() error { return s.client.Close() }

func (s *PageStore) pageKey(jobID string, page int) string {
    return fmt.Sprintf("job:%s:page:%d", jobID, page)
}

// SavePageText stores the final text of a page. source is one of
// "original", "ocr" or "placeholder"; page is 1-based.
func (s *PageStore) SavePageText(ctx context.Context, jobID string, page int, text, source string) error {
    return s.client.HSet(ctx, s.pageKey(jobID, page), map[string]interface{}{
        "text":   text,
        "source": source,
    }).Err()
}

// GetPageTextWithSource returns both text and source for a page.
func (s *PageStore) GetPageTextWithSource(ctx context.Context, jobID string, page int) (string, string, error) {
    res, err := s.client.HGetAll(ctx, s.pageKey(jobID, page)).Result()
    if err != nil {
        return "", "", err
    }
    if len(res) == 0 {
        return "", "", nil
    }
    return res["text"], res["source"], nil
}

// SourceCounts tallies stored pages for a job by their text source.
func (s *PageStore) SourceCounts(ctx context.Context, jobID string, total int) (map[string]int, error) {
    counts := map[string]int{}
    for i := 1; i <= total; i++ {
        _, src, err := s.GetPageTextWithSource(ctx, jobID, i)
        if err != nil { return counts, err }
        if src != "" { counts[src]++ }
    }
    return counts, nil
}
