package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
	"github.com/driftline/chatshell/pkg/metrics"
)

const (
	convKeyPrefix = "conversation:"
	convSetKey    = "conversations"
	searchIndex   = "conversations_idx"

	// searchContentCap bounds the searchable content blob stored in the
	// conversation hash.
	searchContentCap = 5000

	// softExpiry is refreshed on every save. An untouched conversation can
	// vanish from this backend once the window elapses, independent of any
	// explicit Cleanup sweep.
	softExpiry = 30 * 24 * time.Hour
)

// RedisStore persists conversations in Redis: a hash of summary fields plus
// the full serialized body per conversation, a hash per message for point
// access, and a set of all conversation ids for enumeration. When a full-text
// search module is present it maintains a weighted index over title and
// content; otherwise Search degrades to a manual scan with the same substring
// semantics as the file backend.
type RedisStore struct {
	client    *redis.Client
	log       *logger.Logger
	hasSearch bool
}

// NewRedisStore connects to Redis and probes for a full-text search module.
// A connection failure is returned to the caller; the manager treats it as the
// trigger for the one-time file fallback.
func NewRedisStore(cfg config.RedisConfig, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// RESP2 keeps raw search replies in the flat-array form we parse.
		Protocol: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	s := &RedisStore{client: client, log: log}
	s.initSearchIndex(ctx)
	log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Bool("search_module", s.hasSearch))
	return s, nil
}

// Name identifies the backend in logs and metrics.
func (s *RedisStore) Name() string { return "redis" }

// Close releases the client connection.
func (s *RedisStore) Close() error { return s.client.Close() }

// initSearchIndex probes for a search module and builds the weighted index
// over title and content. A pre-existing index is fine; anything else only
// degrades search to the manual scan path.
func (s *RedisStore) initSearchIndex(ctx context.Context) {
	mods, err := s.client.Do(ctx, "MODULE", "LIST").Result()
	if err != nil || !strings.Contains(strings.ToLower(fmt.Sprint(mods)), "search") {
		s.log.Warn("search module not available, search will use manual scan")
		return
	}

	err = s.client.Do(ctx,
		"FT.CREATE", searchIndex,
		"ON", "HASH",
		"PREFIX", "1", convKeyPrefix,
		"SCHEMA",
		"title", "TEXT", "WEIGHT", "2.0",
		"content", "TEXT", "WEIGHT", "1.0",
		"created_at", "NUMERIC", "SORTABLE",
		"updated_at", "NUMERIC", "SORTABLE",
		"message_count", "NUMERIC", "SORTABLE",
	).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		s.log.Warn("could not create search index", zap.Error(err))
		return
	}
	s.hasSearch = true
}

// alive is the liveness probe run before every operation.
func (s *RedisStore) alive(ctx context.Context) bool {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.Error("redis not reachable", zap.Error(err))
		return false
	}
	return true
}

// Save writes the summary hash, the per-message hashes and the set membership,
// then refreshes the soft-expiry window on the conversation key. These writes
// are not one atomic transaction; a crash between them can leave the summary
// fields and the full snapshot inconsistent.
func (s *RedisStore) Save(ctx context.Context, conv *model.Conversation) error {
	if !s.alive(ctx) {
		return fmt.Errorf("save conversation %s: redis unavailable", conv.ID)
	}

	body, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}

	key := convKeyPrefix + conv.ID
	if err := s.client.HSet(ctx, key, map[string]any{
		"id":            conv.ID,
		"title":         conv.Title,
		"created_at":    conv.CreatedAt.UTC().Unix(),
		"updated_at":    conv.UpdatedAt.UTC().Unix(),
		"message_count": len(conv.Messages),
		"content":       conv.SearchableContent(searchContentCap),
		"data":          string(body),
	}).Err(); err != nil {
		s.log.Error("failed to save conversation hash",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}

	for i, msg := range conv.Messages {
		meta, _ := json.Marshal(msg.Metadata)
		msgKey := fmt.Sprintf("message:%s:%d", conv.ID, i)
		if err := s.client.HSet(ctx, msgKey, map[string]any{
			"conversation_id": conv.ID,
			"message_index":   i,
			"id":              msg.ID,
			"role":            string(msg.Role),
			"content":         msg.Content,
			"timestamp":       msg.Timestamp.UTC().Format(time.RFC3339Nano),
			"metadata":        string(meta),
		}).Err(); err != nil {
			s.log.Error("failed to save message hash",
				zap.String("conversation_id", conv.ID), zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("save message %s:%d: %w", conv.ID, i, err)
		}
	}

	if err := s.client.SAdd(ctx, convSetKey, conv.ID).Err(); err != nil {
		return fmt.Errorf("register conversation %s: %w", conv.ID, err)
	}
	if err := s.client.Expire(ctx, key, softExpiry).Err(); err != nil {
		s.log.Warn("failed to refresh conversation expiry",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	s.log.Debug("saved conversation to redis", zap.String("conversation_id", conv.ID))
	return nil
}

// Load reads the full serialized body from the conversation hash. Absence and
// backend unavailability both report ok=false.
func (s *RedisStore) Load(ctx context.Context, id string) (*model.Conversation, bool) {
	if !s.alive(ctx) {
		return nil, false
	}

	body, err := s.client.HGet(ctx, convKeyPrefix+id, "data").Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.log.Error("failed to load conversation",
			zap.String("conversation_id", id), zap.Error(err))
		return nil, false
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(body), &conv); err != nil {
		s.log.Error("malformed conversation body",
			zap.String("conversation_id", id), zap.Error(err))
		return nil, false
	}
	return &conv, true
}

// Delete removes the conversation hash, its message hashes and the set
// membership. Returns true iff the conversation key existed.
func (s *RedisStore) Delete(ctx context.Context, id string) bool {
	if !s.alive(ctx) {
		return false
	}

	key := convKeyPrefix + id
	if count, err := s.client.HGet(ctx, key, "message_count").Int(); err == nil {
		for i := 0; i < count; i++ {
			if err := s.client.Del(ctx, fmt.Sprintf("message:%s:%d", id, i)).Err(); err != nil {
				s.log.Warn("failed to delete message hash",
					zap.String("conversation_id", id), zap.Int("index", i), zap.Error(err))
			}
		}
	}

	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		s.log.Error("failed to delete conversation",
			zap.String("conversation_id", id), zap.Error(err))
		return false
	}
	if err := s.client.SRem(ctx, convSetKey, id).Err(); err != nil {
		s.log.Warn("failed to deregister conversation",
			zap.String("conversation_id", id), zap.Error(err))
	}
	if removed == 0 {
		return false
	}
	s.log.Info("deleted conversation from redis", zap.String("conversation_id", id))
	return true
}

// summaryFromHash reads the summary fields of one conversation hash. The hash
// may have soft-expired while its set membership lingers; such ids are skipped.
func (s *RedisStore) summaryFromHash(ctx context.Context, id string) (model.Summary, bool) {
	vals, err := s.client.HMGet(ctx, convKeyPrefix+id,
		"id", "title", "created_at", "updated_at", "message_count").Result()
	if err != nil {
		s.log.Warn("failed to read conversation summary",
			zap.String("conversation_id", id), zap.Error(err))
		return model.Summary{}, false
	}
	if vals[0] == nil || vals[1] == nil {
		return model.Summary{}, false
	}
	return model.Summary{
		ID:           asString(vals[0]),
		Title:        asString(vals[1]),
		CreatedAt:    asUnixTime(vals[2]),
		UpdatedAt:    asUnixTime(vals[3]),
		MessageCount: asInt(vals[4]),
	}, true
}

// List enumerates the conversation set, sorted by updated_at descending with
// pagination applied after sorting.
func (s *RedisStore) List(ctx context.Context, limit, offset int) []model.Summary {
	if !s.alive(ctx) {
		return []model.Summary{}
	}

	ids, err := s.client.SMembers(ctx, convSetKey).Result()
	if err != nil {
		s.log.Error("failed to enumerate conversations", zap.Error(err))
		return []model.Summary{}
	}

	summaries := make([]model.Summary, 0, len(ids))
	for _, id := range ids {
		if summary, ok := s.summaryFromHash(ctx, id); ok {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)
	return paginate(summaries, limit, offset)
}

// Search issues an indexed query when a search module is present, and falls
// back to a manual scan over the conversation set when the module is absent or
// the query fails. Both paths yield structurally identical summaries.
func (s *RedisStore) Search(ctx context.Context, query string, limit int) []model.Summary {
	if !s.alive(ctx) {
		return []model.Summary{}
	}

	if s.hasSearch {
		expr := fmt.Sprintf("@title:(%s) | @content:(%s)", query, query)
		reply, err := s.client.Do(ctx,
			"FT.SEARCH", searchIndex, expr,
			"LIMIT", "0", strconv.Itoa(limit),
			"SORTBY", "updated_at", "DESC",
		).Result()
		if err == nil {
			return parseSearchReply(reply)
		}
		s.log.Warn("indexed search failed, falling back to manual scan",
			zap.String("query", query), zap.Error(err))
	}
	metrics.SearchFallbacksTotal.Inc()
	return s.manualSearch(ctx, query, limit)
}

// manualSearch applies the same substring-containment semantics as the file
// backend, over the title and content fields of each conversation hash.
func (s *RedisStore) manualSearch(ctx context.Context, query string, limit int) []model.Summary {
	ids, err := s.client.SMembers(ctx, convSetKey).Result()
	if err != nil {
		s.log.Error("failed to enumerate conversations for search", zap.Error(err))
		return []model.Summary{}
	}

	q := strings.ToLower(query)
	matches := make([]model.Summary, 0)
	for _, id := range ids {
		vals, err := s.client.HMGet(ctx, convKeyPrefix+id,
			"id", "title", "content", "created_at", "updated_at", "message_count").Result()
		if err != nil || vals[0] == nil || vals[1] == nil {
			continue
		}
		title := asString(vals[1])
		content := asString(vals[2])
		if !strings.Contains(strings.ToLower(title), q) &&
			!strings.Contains(strings.ToLower(content), q) {
			continue
		}
		matches = append(matches, model.Summary{
			ID:           asString(vals[0]),
			Title:        title,
			CreatedAt:    asUnixTime(vals[3]),
			UpdatedAt:    asUnixTime(vals[4]),
			MessageCount: asInt(vals[5]),
		})
	}
	sortSummaries(matches)
	return paginate(matches, limit, 0)
}

// Stats reports conversation count and server health fields.
func (s *RedisStore) Stats(ctx context.Context) map[string]any {
	if !s.alive(ctx) {
		return map[string]any{}
	}

	total, err := s.client.SCard(ctx, convSetKey).Result()
	if err != nil {
		s.log.Error("failed to count conversations", zap.Error(err))
		return map[string]any{}
	}

	stats := map[string]any{
		"total_conversations": total,
		"search_module":       s.hasSearch,
	}
	if mem, err := s.client.Info(ctx, "memory").Result(); err == nil {
		stats["redis_memory_used"] = infoField(mem, "used_memory_human")
	}
	if clients, err := s.client.Info(ctx, "clients").Result(); err == nil {
		stats["redis_connected_clients"] = infoField(clients, "connected_clients")
	}
	if server, err := s.client.Info(ctx, "server").Result(); err == nil {
		stats["redis_version"] = infoField(server, "redis_version")
	}
	return stats
}

// Cleanup deletes every conversation whose updated_at is strictly older than
// the cutoff. This explicit sweep is independent of the soft-expiry window
// refreshed on save.
func (s *RedisStore) Cleanup(ctx context.Context, days int) int {
	if !s.alive(ctx) {
		return 0
	}

	ids, err := s.client.SMembers(ctx, convSetKey).Result()
	if err != nil {
		s.log.Error("failed to enumerate conversations for cleanup", zap.Error(err))
		return 0
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Unix()
	deleted := 0
	for _, id := range ids {
		raw, err := s.client.HGet(ctx, convKeyPrefix+id, "updated_at").Result()
		if err != nil {
			continue
		}
		updated, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// skip records with unparseable timestamps
			continue
		}
		if updated < cutoff && s.Delete(ctx, id) {
			deleted++
		}
	}
	s.log.Info("cleaned up old conversations", zap.Int("deleted", deleted))
	return deleted
}

// parseSearchReply converts a raw RESP2 FT.SEARCH reply into summaries with
// the same shape as the manual scan path. The reply is a flat array: total
// count, then alternating key and field-value array.
func parseSearchReply(reply any) []model.Summary {
	arr, ok := reply.([]any)
	if !ok || len(arr) < 1 {
		return []model.Summary{}
	}

	summaries := make([]model.Summary, 0)
	for i := 1; i+1 < len(arr); i += 2 {
		fields, ok := arr[i+1].([]any)
		if !ok {
			continue
		}
		doc := make(map[string]any, len(fields)/2)
		for j := 0; j+1 < len(fields); j += 2 {
			doc[asString(fields[j])] = fields[j+1]
		}
		summaries = append(summaries, model.Summary{
			ID:           asString(doc["id"]),
			Title:        asString(doc["title"]),
			CreatedAt:    asUnixTime(doc["created_at"]),
			UpdatedAt:    asUnixTime(doc["updated_at"]),
			MessageCount: asInt(doc["message_count"]),
		})
	}
	return summaries
}

// infoField extracts one "key:value" line from a Redis INFO section.
func infoField(info, key string) string {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(line, key+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	n, _ := strconv.Atoi(asString(v))
	return n
}

func asUnixTime(v any) time.Time {
	sec, err := strconv.ParseInt(asString(v), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
