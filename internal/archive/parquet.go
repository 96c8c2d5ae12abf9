package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/chat"
)

type EncodeResult struct {
	Data         []byte
	MessageCount int64
}

type transcriptRow struct {
	SessionID        string `parquet:"session_id"`
	Sequence         int64  `parquet:"sequence"`
	Role             string `parquet:"role"`
	Content          string `parquet:"content"`
	CreatedAtUnixMs  int64  `parquet:"created_at_unix_ms"`
	SessionStartedMs int64  `parquet:"session_started_unix_ms"`
	SessionEndedMs   int64  `parquet:"session_ended_unix_ms"`
}

// EncodeTranscript writes one row per message, in transcript order.
func EncodeTranscript(transcript chat.Transcript) (EncodeResult, error) {
	if transcript.SessionID == "" {
		return EncodeResult{}, fmt.Errorf("session id is required")
	}
	if len(transcript.Messages) == 0 {
		return EncodeResult{}, fmt.Errorf("transcript has no messages")
	}

	rows := make([]transcriptRow, 0, len(transcript.Messages))
	for i, message := range transcript.Messages {
		rows = append(rows, transcriptRow{
			SessionID:        transcript.SessionID,
			Sequence:         int64(i),
			Role:             string(message.Role),
			Content:          message.Content,
			CreatedAtUnixMs:  message.CreatedAt.UnixMilli(),
			SessionStartedMs: transcript.StartedAt.UnixMilli(),
			SessionEndedMs:   transcript.EndedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[transcriptRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{Data: buf.Bytes(), MessageCount: int64(len(rows))}, nil
}

// DecodeTranscript reads a file written by EncodeTranscript.
func DecodeTranscript(data []byte) (chat.Transcript, error) {
	reader := parquet.NewGenericReader[transcriptRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]transcriptRow, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return chat.Transcript{}, fmt.Errorf("read parquet rows: %w", err)
	}
	rows = rows[:count]
	if len(rows) == 0 {
		return chat.Transcript{}, fmt.Errorf("transcript has no messages")
	}

	transcript := chat.Transcript{
		SessionID: rows[0].SessionID,
		StartedAt: time.UnixMilli(rows[0].SessionStartedMs).UTC(),
		EndedAt:   time.UnixMilli(rows[0].SessionEndedMs).UTC(),
		Messages:  make([]chat.Message, len(rows)),
	}
	for _, row := range rows {
		if row.Sequence < 0 || row.Sequence >= int64(len(rows)) {
			return chat.Transcript{}, fmt.Errorf("message sequence %d out of range", row.Sequence)
		}
		transcript.Messages[row.Sequence] = chat.Message{
			Role:      chat.Role(row.Role),
			Content:   row.Content,
			CreatedAt: time.UnixMilli(row.CreatedAtUnixMs).UTC(),
		}
	}
	return transcript, nil
}
