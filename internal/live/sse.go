package live

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/moto-data/yard.report/internal/monitoring"
)

// ServeSSE streams hub updates to the client as Server-Sent Events. Each
// update is written as an `event:` line carrying the outbound event name and
// a `data:` line with the JSON payload. The stream ends when the client
// disconnects or the hub closes.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				monitoring.Logf("failed to marshal live update: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Event, payload)
			flusher.Flush()
		}
	}
}
