// Package archive persists finished chat sessions to object storage as Parquet.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/storage"
)

const contentType = "application/vnd.apache.parquet"

// Archiver implements chat.Archiver on top of an object store.
type Archiver struct {
	Store  storage.ObjectStore
	Prefix string
	Logger *slog.Logger
}

func New(store storage.ObjectStore, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{Store: store, Prefix: prefix, Logger: logger}
}

func (a *Archiver) Archive(ctx context.Context, transcript chat.Transcript) error {
	key, err := storage.BuildTranscriptPath(a.Prefix, transcript.SessionID, transcript.EndedAt)
	if err != nil {
		return err
	}
	encoded, err := EncodeTranscript(transcript)
	if err != nil {
		return err
	}
	info, err := a.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return err
	}
	a.Logger.InfoContext(ctx, "session archived",
		slog.String("session_id", transcript.SessionID),
		slog.String("key", info.Key),
		slog.Int64("messages", encoded.MessageCount),
		slog.Int("bytes", len(encoded.Data)),
	)
	return nil
}

// List returns archived transcripts, newest first.
func (a *Archiver) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := a.Store.List(ctx, a.Prefix)
	if err != nil {
		return nil, err
	}
	transcripts := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, storage.TranscriptSuffix) {
			transcripts = append(transcripts, obj)
		}
	}
	sort.SliceStable(transcripts, func(i, j int) bool {
		if !transcripts[i].LastModified.Equal(transcripts[j].LastModified) {
			return transcripts[i].LastModified.After(transcripts[j].LastModified)
		}
		return transcripts[i].Key > transcripts[j].Key
	})
	return transcripts, nil
}

// Load fetches and decodes one archived transcript.
func (a *Archiver) Load(ctx context.Context, key string) (chat.Transcript, error) {
	reader, err := a.Store.Get(ctx, key)
	if err != nil {
		return chat.Transcript{}, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return chat.Transcript{}, fmt.Errorf("read transcript %q: %w", key, err)
	}
	return DecodeTranscript(data)
}
