// Package adminapi exposes the human queue and cascade/tier metrics over
// HTTP for operators who prefer a dashboard to hookctl, grounded on
// orchestrator/replay/handlers.go's mux.Router + Methods(...) route
// registration and agent/run.go's package-level cors.Cors instance. This is
// additive to, and backed by, the same internal/humanqueue the CLI uses —
// there is exactly one human queue implementation.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"permgate/internal/decision"
	"permgate/internal/humanqueue"
	"permgate/internal/obslog"
)

// Server wires the human queue to HTTP routes.
type Server struct {
	queue      *humanqueue.Queue
	authSecret []byte
	log        *obslog.Logger
}

// New builds a Server; replies to the queue require a bearer token signed
// with authSecret.
func New(queue *humanqueue.Queue, authSecret []byte) *Server {
	return &Server{queue: queue, authSecret: authSecret, log: obslog.New("adminapi")}
}

// Router builds the mux.Router with CORS applied, ready to pass to
// http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/queue", s.listQueue).Methods("GET", "OPTIONS")
	r.HandleFunc("/queue/{id}/reply", requireBearer(s.authSecret, s.replyQueue)).Methods("POST", "OPTIONS")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// listQueue handles GET /queue: every pending decision awaiting review.
func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.List()
	if err != nil {
		s.log.ErrorWithErr("", "list pending decisions", err, nil)
		http.Error(w, "failed to list pending decisions", http.StatusInternalServerError)
		return
	}
	HumanQueuePending.Set(float64(len(pending)))
	writeJSON(w, http.StatusOK, pending)
}

type replyRequest struct {
	Verdict    decision.Verdict `json:"verdict"`
	AlwaysAsk  bool             `json:"always_ask"`
	AddRule    bool             `json:"add_rule"`
	RuleScope  decision.Scope   `json:"rule_scope,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	ReviewedBy string           `json:"reviewed_by,omitempty"`
}

// replyQueue handles POST /queue/{id}/reply: a human reviewer's verdict on
// one pending decision.
func (s *Server) replyQueue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed reply body", http.StatusBadRequest)
		return
	}
	if !req.Verdict.Valid() {
		http.Error(w, "reply verdict must be allow, deny, or ask", http.StatusBadRequest)
		return
	}

	err := s.queue.Reply(id, humanqueue.Reply{
		Verdict:    req.Verdict,
		AlwaysAsk:  req.AlwaysAsk,
		AddRule:    req.AddRule,
		RuleScope:  req.RuleScope,
		Comment:    req.Comment,
		ReviewedBy: req.ReviewedBy,
	})
	if err != nil {
		s.log.ErrorWithErr("", "reply to pending decision", err, map[string]interface{}{"id": id})
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
