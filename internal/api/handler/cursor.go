package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mailmind-app/mailmind-be/internal/history"
)

// DecodeHistoryCursor parses an opaque pagination cursor. An empty string
// means first page.
func DecodeHistoryCursor(cursorStr string) (*history.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var finishedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &finishedAt); err != nil {
		return nil, fmt.Errorf("invalid finishedAt in cursor: %w", err)
	}

	return &history.Cursor{
		FinishedAt: time.Unix(0, finishedAt),
		JobID:      parts[1],
	}, nil
}

// EncodeHistoryCursor renders a cursor as an opaque string.
func EncodeHistoryCursor(cursor *history.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.FinishedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
