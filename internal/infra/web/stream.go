package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"trading-research-core/internal/domain/model"
)

// Hub fans deliveries out to the websocket connections of a user. A browser
// may hold several tabs open; every tab sees every delivery, while the
// exactly-once guarantee stays with the registry upstream.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Delivery]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan model.Delivery]struct{})}
}

func (h *Hub) subscribe(userID string) chan model.Delivery {
	ch := make(chan model.Delivery, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan model.Delivery]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(userID string, ch chan model.Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[userID]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Broadcast sends d to every connection of userID without blocking; a slow
// tab loses the message and recovers through the job status endpoint.
func (h *Hub) Broadcast(userID string, d model.Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- d:
		default:
		}
	}
}

// streamHandler upgrades to a websocket and writes deliveries as JSON until
// the client goes away.
func (s *Server) streamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.log.Debug().Err(err).Msg("websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		userID := s.auth.UserID()
		ch := s.hub.subscribe(userID)
		defer s.hub.unsubscribe(userID, ch)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-ch:
				wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := wsjson.Write(wctx, conn, struct {
					JobID  string               `json:"job_id"`
					Status model.JobStatus      `json:"status"`
					Result model.AnalysisResult `json:"result"`
					Source model.DeliverySource `json:"source"`
				}{d.JobID, d.Status, d.Result, d.Source})
				cancel()
				if err != nil {
					s.log.Debug().Err(err).Str("user_id", userID).Msg("websocket write failed; dropping connection")
					return
				}
			}
		}
	}
}
