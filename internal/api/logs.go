package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openacq/camnode/internal/api/models"
	"github.com/openacq/camnode/internal/logging"
)

// registerLogRoutes registers the recent-logs endpoint backed by the
// logging ring buffer.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Return recent log entries from the in-memory ring buffer, oldest first",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"0" minimum:"0" example:"100" doc:"Maximum number of entries to return, 0 for all buffered entries"`
	}) (*models.LogListResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			entries = buffer.ReadAll()
		}

		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}

		apiEntries := make([]models.LogEntryData, len(entries))
		for i, entry := range entries {
			apiEntries[i] = models.LogEntryData{
				Timestamp:  entry.Timestamp,
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			}
		}

		return &models.LogListResponse{
			Body: models.LogListData{
				Entries: apiEntries,
				Count:   len(apiEntries),
			},
		}, nil
	})
}
