package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/schedule"
	"github.com/joshharrison/schedloom/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the read side of the store the viewer renders from.
type Source interface {
	Projects() ([]*project.Project, error)
	Project(pid string) (*project.Project, error)
	Tasks(pid string) ([]*graph.Task, error)
	Dependencies(pid string) ([]graph.Dependency, error)
}

// --- Graph types ---

type GraphNode struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	WBSCode    string `json:"wbs_code"`
	State      string `json:"state"`
	Duration   int    `json:"duration"`
	Start      string `json:"start,omitempty"`
	Finish     string `json:"finish,omitempty"`
	Float      int    `json:"float"`
	IsCritical bool   `json:"is_critical"`
	Locked     bool   `json:"locked,omitempty"`
}

type GraphEdge struct {
	From       int64  `json:"from"`
	To         int64  `json:"to"`
	Type       string `json:"type"`
	Lag        int    `json:"lag,omitempty"`
	IsCritical bool   `json:"is_critical"`
}

type GraphMetadata struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ScheduleFrom  string `json:"schedule_from"`
	TotalTasks    int    `json:"total_tasks"`
	CriticalTasks int    `json:"critical_tasks"`
	Tentative     bool   `json:"tentative"`
}

type Graph struct {
	Nodes        []GraphNode   `json:"nodes"`
	Edges        []GraphEdge   `json:"edges"`
	CriticalPath []int64       `json:"critical_path"`
	Metadata     GraphMetadata `json:"metadata"`
}

// ToGraph converts a stored project into the normalised Graph a UI renders.
// Archived tasks and edges touching them are left out. Dates are the
// tentative ones while a tentative schedule is pending.
func ToGraph(p *project.Project, tasks []*graph.Task, deps []graph.Dependency) *Graph {
	g := &Graph{
		Nodes:        make([]GraphNode, 0, len(tasks)),
		Edges:        make([]GraphEdge, 0, len(deps)),
		CriticalPath: []int64{},
		Metadata: GraphMetadata{
			ID:           p.ID,
			Name:         p.Name,
			ScheduleFrom: p.ScheduleFrom,
		},
	}

	active := make(map[graph.TaskID]*graph.Task, len(tasks))
	var critical []*graph.Task
	for _, t := range tasks {
		if t.Archived {
			continue
		}
		active[t.ID] = t

		start, finish := t.Start, t.Finish
		if t.TentativeActive {
			start, finish = t.TentativeStart, t.TentativeFinish
			g.Metadata.Tentative = true
		}
		g.Nodes = append(g.Nodes, GraphNode{
			ID:         int64(t.ID),
			Name:       t.Name,
			WBSCode:    t.WBSCode,
			State:      string(schedule.StateOf(t)),
			Duration:   t.EffectiveDuration(),
			Start:      project.FormatDate(start),
			Finish:     project.FormatDate(finish),
			Float:      t.FloatDays,
			IsCritical: t.IsCritical,
			Locked:     t.Locked,
		})
		if t.IsCritical {
			critical = append(critical, t)
		}
	}
	g.Metadata.TotalTasks = len(g.Nodes)
	g.Metadata.CriticalTasks = len(critical)

	sort.Slice(critical, func(i, j int) bool {
		a, b := critical[i].EarlyStart, critical[j].EarlyStart
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return critical[i].ID < critical[j].ID
	})
	for _, t := range critical {
		g.CriticalPath = append(g.CriticalPath, int64(t.ID))
	}

	for _, d := range deps {
		pred, succ := active[d.Predecessor], active[d.Successor]
		if pred == nil || succ == nil {
			continue
		}
		g.Edges = append(g.Edges, GraphEdge{
			From:       int64(d.Predecessor),
			To:         int64(d.Successor),
			Type:       d.Type.String(),
			Lag:        d.Lag,
			IsCritical: pred.IsCritical && succ.IsCritical,
		})
	}

	return g
}

// --- HTTP server ---

type server struct {
	src Source
	log *slog.Logger
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

func (s *server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.log.Error("viewer request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *server) handleProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.src.Projects()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, ps)
}

func (s *server) handleGraph(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("id")

	p, err := s.src.Project(pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	tasks, err := s.src.Tasks(pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	deps, err := s.src.Dependencies(pid)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, ToGraph(p, tasks, deps))
}

// Handler returns the viewer routes. A nil gatherer leaves /metrics out.
func Handler(src Source, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	srv := &server{src: src, log: log}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /projects", srv.handleProjects)
	mux.HandleFunc("GET /projects/{id}/graph", srv.handleGraph)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	return mux
}

// Serve runs h on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// IsPortOpen checks if something is listening on the given address.
func IsPortOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
