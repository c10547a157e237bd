package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/ledrig-monitor/internal/history"
	"github.com/sweeney/ledrig-monitor/internal/logic"
	"github.com/sweeney/ledrig-monitor/internal/poller"
	"github.com/sweeney/ledrig-monitor/internal/status"
)

// HistoryEntryJSON is one history entry as served by /api/history.
type HistoryEntryJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	OccurredAt  string `json:"occurredAt"`
}

// HistoryJSON is the /api/history response.
type HistoryJSON struct {
	Count   int                `json:"count"`
	Entries []HistoryEntryJSON `json:"entries"`
}

// FaultsJSON is the /api/faults response.
type FaultsJSON struct {
	Liveness string             `json:"liveness"`
	Faults   []status.FaultJSON `json:"faults"`
}

// RefreshJSON is the /api/refresh response for a completed poll.
type RefreshJSON struct {
	At       string             `json:"at"`
	Liveness string             `json:"liveness"`
	Error    string             `json:"error,omitempty"`
	Faults   []status.FaultJSON `json:"faults"`
	LEDs     map[string]bool    `json:"leds"`
}

// CommandJSON is the success response of a command.
type CommandJSON struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	State     *bool  `json:"state,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// ErrorJSON is the error response shape, matching the rig's own.
type ErrorJSON struct {
	Error   string `json:"error"`
	Channel string `json:"channel,omitempty"`
	State   *bool  `json:"state,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

func formatHistory(entries []history.Entry) HistoryJSON {
	out := HistoryJSON{Count: len(entries), Entries: make([]HistoryEntryJSON, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, HistoryEntryJSON{
			Name:        e.Name,
			Description: e.Description,
			Category:    string(e.Category),
			OccurredAt:  e.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func formatRefresh(r poller.Result) RefreshJSON {
	out := RefreshJSON{
		At:       r.At.UTC().Format(time.RFC3339),
		Liveness: string(r.Liveness),
		Faults:   status.Faults(r.Faults),
		LEDs:     r.LEDs,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	if out.LEDs == nil {
		out.LEDs = logic.DeriveLEDs(nil)
	}
	return out
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, ErrorJSON{Error: message})
}
