package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore(config.RedisConfig{
		Addr:         mr.Addr(),
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(config.RedisConfig{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
	}, logger.NewNop())
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	rs, mr := newTestRedisStore(t)
	ctx := context.Background()

	in := testConversation("c1", "Dividend Basics", time.Now().UTC().Truncate(time.Second),
		"explain dividend in stock market", "A dividend is a payout to shareholders.")
	if err := rs.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, ok := rs.Load(ctx, "c1")
	if !ok {
		t.Fatal("Load reported absent after Save")
	}
	if out.ID != in.ID || out.Title != in.Title {
		t.Fatalf("identity mismatch: %s/%q", out.ID, out.Title)
	}
	if !out.UpdatedAt.Equal(in.UpdatedAt) || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("timestamps mismatch: %v/%v", out.CreatedAt, out.UpdatedAt)
	}
	if len(out.Messages) != 2 || out.Messages[0].Content != in.Messages[0].Content {
		t.Fatalf("messages mismatch: %+v", out.Messages)
	}
	if out.Metadata["origin"] != "test" {
		t.Fatalf("metadata not preserved: %v", out.Metadata)
	}

	// message hashes exist for point access
	if !mr.Exists("message:c1:0") || !mr.Exists("message:c1:1") {
		t.Fatal("per-message hashes missing")
	}
}

func TestRedisStore_SaveRefreshesSoftExpiry(t *testing.T) {
	rs, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, testConversation("c1", "t", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ttl := mr.TTL("conversation:c1")
	if ttl <= 0 || ttl > softExpiry {
		t.Fatalf("conversation TTL = %v, want (0, %v]", ttl, softExpiry)
	}

	// an untouched conversation vanishes after the window elapses
	mr.FastForward(softExpiry + time.Minute)
	if _, ok := rs.Load(ctx, "c1"); ok {
		t.Fatal("conversation survived past soft expiry")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	rs, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, testConversation("c1", "t", time.Now().UTC(), "hi")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !rs.Delete(ctx, "c1") {
		t.Fatal("Delete = false for existing conversation")
	}
	if mr.Exists("conversation:c1") || mr.Exists("message:c1:0") {
		t.Fatal("keys left behind after delete")
	}
	if rs.Delete(ctx, "c1") {
		t.Fatal("Delete = true for absent conversation")
	}
}

func TestRedisStore_ListOrderAndPagination(t *testing.T) {
	rs, _ := newTestRedisStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"old", "mid", "new"} {
		conv := testConversation(id, "conv "+id, base.Add(time.Duration(i)*time.Minute))
		if err := rs.Save(ctx, conv); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	all := rs.List(ctx, 10, 0)
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Fatalf("List order wrong: %+v", all)
	}
	page := rs.List(ctx, 1, 1)
	if len(page) != 1 || page[0].ID != "mid" {
		t.Fatalf("List(1,1) = %+v, want the middle entry", page)
	}
}

func TestRedisStore_ManualSearchFallback(t *testing.T) {
	rs, _ := newTestRedisStore(t)
	ctx := context.Background()

	if rs.hasSearch {
		t.Fatal("miniredis should not advertise a search module")
	}

	now := time.Now().UTC().Truncate(time.Second)
	stocks := testConversation("c1", "Dividend Basics", now, "explain dividend in stock market")
	cooking := testConversation("c2", "Pasta night", now.Add(-time.Minute), "how long to boil penne")
	for _, conv := range []*model.Conversation{stocks, cooking} {
		if err := rs.Save(ctx, conv); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	results := rs.Search(ctx, "dividend", 10)
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("Search fallback = %+v, want c1", results)
	}
	if results[0].Title != "Dividend Basics" || results[0].MessageCount != 1 {
		t.Fatalf("fallback summary shape wrong: %+v", results[0])
	}
	if !results[0].UpdatedAt.Equal(now) {
		t.Fatalf("fallback UpdatedAt = %v, want %v", results[0].UpdatedAt, now)
	}
}

func TestParseSearchReplyMatchesManualShape(t *testing.T) {
	updated := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	created := updated.Add(-time.Hour)

	reply := []any{
		int64(1),
		"conversation:c1",
		[]any{
			"id", "c1",
			"title", "Dividend Basics",
			"created_at", fmt.Sprint(created.Unix()),
			"updated_at", fmt.Sprint(updated.Unix()),
			"message_count", "1",
		},
	}

	got := parseSearchReply(reply)
	if len(got) != 1 {
		t.Fatalf("parseSearchReply = %d results, want 1", len(got))
	}
	s := got[0]
	if s.ID != "c1" || s.Title != "Dividend Basics" || s.MessageCount != 1 ||
		!s.CreatedAt.Equal(created) || !s.UpdatedAt.Equal(updated) {
		t.Fatalf("indexed path summary = %+v", s)
	}
}

func TestParseSearchReplyGarbage(t *testing.T) {
	for _, reply := range []any{nil, "nope", []any{}, []any{int64(0)}} {
		if got := parseSearchReply(reply); len(got) != 0 {
			t.Fatalf("parseSearchReply(%v) = %+v, want empty", reply, got)
		}
	}
}

func TestRedisStore_CleanupIdempotent(t *testing.T) {
	rs, _ := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := testConversation("stale", "old", now.AddDate(0, 0, -45))
	fresh := testConversation("fresh", "new", now)
	for _, conv := range []*model.Conversation{stale, fresh} {
		if err := rs.Save(ctx, conv); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if deleted := rs.Cleanup(ctx, 30); deleted != 1 {
		t.Fatalf("Cleanup = %d, want 1", deleted)
	}
	if deleted := rs.Cleanup(ctx, 30); deleted != 0 {
		t.Fatalf("second Cleanup = %d, want 0", deleted)
	}
	if _, ok := rs.Load(ctx, "fresh"); !ok {
		t.Fatal("fresh conversation removed by cleanup")
	}
}

func TestRedisStore_Stats(t *testing.T) {
	rs, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, testConversation("c1", "t", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	stats := rs.Stats(ctx)
	if stats["total_conversations"] != int64(1) {
		t.Fatalf("total_conversations = %v, want 1", stats["total_conversations"])
	}
}

func TestRedisStore_UnreachableReturnsZeroValues(t *testing.T) {
	rs, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, testConversation("c1", "t", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.Close()

	if err := rs.Save(ctx, testConversation("c2", "t", time.Now().UTC())); err == nil {
		t.Fatal("Save succeeded against a dead backend")
	}
	if _, ok := rs.Load(ctx, "c1"); ok {
		t.Fatal("Load reported ok against a dead backend")
	}
	if rs.Delete(ctx, "c1") {
		t.Fatal("Delete = true against a dead backend")
	}
	if got := rs.List(ctx, 10, 0); len(got) != 0 {
		t.Fatalf("List = %+v against a dead backend", got)
	}
	if got := rs.Search(ctx, "t", 10); len(got) != 0 {
		t.Fatalf("Search = %+v against a dead backend", got)
	}
	if got := rs.Cleanup(ctx, 30); got != 0 {
		t.Fatalf("Cleanup = %d against a dead backend", got)
	}
	if got := rs.Stats(ctx); len(got) != 0 {
		t.Fatalf("Stats = %+v against a dead backend", got)
	}
}
