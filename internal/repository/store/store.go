package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Config holds connection parameters for the internal news store.
type Config struct {
	Addrs    []string
	Password string
	// Index is the RediSearch index over the news documents.
	Index string
}

// Store is the rueidis-backed internal document store. It only reads;
// index creation and population are owned by the ingestion side.
type Store struct {
	client rueidis.Client
	index  string
}

// New connects to the store. The connection itself may still be down;
// search calls report that as ErrStoreUnavailable and the pipeline runs
// degraded, so startup does not depend on store health.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, index: cfg.Index}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// SearchLexical runs a BM25 keyword ranking via FT.SEARCH.
func (s *Store) SearchLexical(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if query == "" || k <= 0 {
		return nil, nil
	}

	queryStr := fmt.Sprintf("@content:(%s)", escapeQuery(query))

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.index, queryStr,
		"RETURN", "4", "title", "content", "link", "published_at",
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search: %v", domain.ErrStoreUnavailable, err)
	}

	return parseLexicalResult(raw)
}

// SearchDense runs a KNN vector ranking via FT.SEARCH.
func (s *Store) SearchDense(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @vector $BLOB]", k)

	// The KNN clause bounds candidates, not the reply page; without LIMIT
	// the server still caps the reply at its default page size.
	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.index, queryStr,
		"RETURN", "5", "title", "content", "link", "published_at", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("%w: dense search: %v", domain.ErrStoreUnavailable, err)
	}

	return parseDenseResult(raw)
}

// parseLexicalResult decodes the WITHSCORES reply.
// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
func parseLexicalResult(raw []rueidis.RedisMessage) ([]domain.SearchHit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.SearchHit, 0, total)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		hit := hitFromFields(key, parseFieldPairs(fields))
		hit.Source = domain.SourceLexical
		hit.Score = score
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, nil
}

// parseDenseResult decodes the KNN reply.
// 2-stride: [total, key1, fields1, key2, fields2, ...]
func parseDenseResult(raw []rueidis.RedisMessage) ([]domain.SearchHit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.SearchHit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		pairs := parseFieldPairs(fields)
		hit := hitFromFields(key, pairs)
		hit.Source = domain.SourceDense
		if distStr, ok := pairs["__vector_score"]; ok {
			if dist, err := strconv.ParseFloat(distStr, 64); err == nil {
				hit.Score = max(0, 1.0-dist) // cosine distance → similarity, clamped to [0,1]
			}
		}
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, nil
}

func hitFromFields(key string, fields map[string]string) domain.SearchHit {
	hit := domain.SearchHit{
		DocID:   key,
		Title:   fields["title"],
		Snippet: fields["content"],
		Link:    fields["link"],
	}
	if ts := fields["published_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			hit.PublishedAt = &t
		}
	}
	return hit
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
