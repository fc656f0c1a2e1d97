package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/model"
	"github.com/driftline/chatshell/pkg/logger"
)

const documentVersion = "1.0"

// document is the on-disk envelope, one file per conversation.
type document struct {
	Conversation    *model.Conversation `json:"conversation"`
	ExportTimestamp time.Time           `json:"export_timestamp"`
	Version         string              `json:"version"`
}

// FileStore persists one JSON document per conversation under a directory.
// List, Search and Cleanup re-read every document on each call, which is fine
// for interactive, human-scale conversation counts.
type FileStore struct {
	dir string
	log *logger.Logger
}

// NewFileStore creates the storage directory if needed and returns the store.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations directory: %w", err)
	}
	log.Debug("file store ready", zap.String("dir", dir))
	return &FileStore{dir: dir, log: log}, nil
}

// Name identifies the backend in logs and metrics.
func (s *FileStore) Name() string { return "file" }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, "conversation_"+id+".json")
}

// Save overwrites the conversation's document.
func (s *FileStore) Save(ctx context.Context, conv *model.Conversation) error {
	doc := document{
		Conversation:    conv,
		ExportTimestamp: time.Now().UTC(),
		Version:         documentVersion,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if err := os.WriteFile(s.path(conv.ID), data, 0o644); err != nil {
		s.log.Error("failed to write conversation file",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		return fmt.Errorf("write conversation %s: %w", conv.ID, err)
	}
	s.log.Debug("saved conversation to file", zap.String("conversation_id", conv.ID))
	return nil
}

// Load reads a conversation document. Absence and read or parse failures all
// report ok=false; nothing propagates past this boundary.
func (s *FileStore) Load(ctx context.Context, id string) (*model.Conversation, bool) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to read conversation file",
				zap.String("conversation_id", id), zap.Error(err))
		}
		return nil, false
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc.Conversation == nil {
		s.log.Error("malformed conversation file",
			zap.String("conversation_id", id), zap.Error(err))
		return nil, false
	}
	return doc.Conversation, true
}

// Delete removes the conversation document if present.
func (s *FileStore) Delete(ctx context.Context, id string) bool {
	err := os.Remove(s.path(id))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to delete conversation file",
				zap.String("conversation_id", id), zap.Error(err))
		}
		return false
	}
	s.log.Info("deleted conversation file", zap.String("conversation_id", id))
	return true
}

// scan parses every conversation document in the directory, skipping files it
// cannot read or decode. A single corrupt file never aborts a batch operation.
func (s *FileStore) scan() []*model.Conversation {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("failed to list conversations directory", zap.Error(err))
		return nil
	}

	var convs []*model.Conversation
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "conversation_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn("skipping unreadable conversation file",
				zap.String("file", name), zap.Error(err))
			continue
		}
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil || doc.Conversation == nil {
			s.log.Warn("skipping malformed conversation file",
				zap.String("file", name), zap.Error(err))
			continue
		}
		convs = append(convs, doc.Conversation)
	}
	return convs
}

// List enumerates all documents, sorted by updated_at descending.
func (s *FileStore) List(ctx context.Context, limit, offset int) []model.Summary {
	summaries := make([]model.Summary, 0)
	for _, conv := range s.scan() {
		summaries = append(summaries, conv.Summarize())
	}
	sortSummaries(summaries)
	return paginate(summaries, limit, offset)
}

// Search matches the query against lowercased title and message content.
func (s *FileStore) Search(ctx context.Context, query string, limit int) []model.Summary {
	q := strings.ToLower(query)
	matches := make([]model.Summary, 0)
	for _, conv := range s.scan() {
		if strings.Contains(strings.ToLower(conv.Title), q) ||
			strings.Contains(strings.ToLower(conv.SearchableContent(0)), q) {
			matches = append(matches, conv.Summarize())
		}
	}
	sortSummaries(matches)
	return paginate(matches, limit, 0)
}

// Stats reports document count and total size on disk.
func (s *FileStore) Stats(ctx context.Context) map[string]any {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("failed to stat conversations directory", zap.Error(err))
		return map[string]any{}
	}

	var count int
	var totalBytes int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "conversation_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		count++
		if info, err := entry.Info(); err == nil {
			totalBytes += info.Size()
		}
	}

	return map[string]any{
		"total_conversations": count,
		"storage_size_bytes":  totalBytes,
		"storage_size_human":  formatByteSize(totalBytes),
		"storage_directory":   s.dir,
	}
}

// Cleanup deletes every document whose updated_at is strictly older than the
// cutoff. Unreadable documents are skipped, never deleted blindly.
func (s *FileStore) Cleanup(ctx context.Context, days int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted := 0
	for _, conv := range s.scan() {
		if conv.UpdatedAt.Before(cutoff) {
			if err := os.Remove(s.path(conv.ID)); err != nil {
				s.log.Warn("failed to remove expired conversation file",
					zap.String("conversation_id", conv.ID), zap.Error(err))
				continue
			}
			deleted++
		}
	}
	s.log.Info("cleaned up old conversation files", zap.Int("deleted", deleted))
	return deleted
}

func sortSummaries(summaries []model.Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
}

func paginate(summaries []model.Summary, limit, offset int) []model.Summary {
	if offset >= len(summaries) {
		return []model.Summary{}
	}
	summaries = summaries[offset:]
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

func formatByteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGT"[exp])
}
