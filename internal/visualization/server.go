package visualization

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openmotion/drivesim/internal/raster"
	"github.com/openmotion/drivesim/internal/scene"
	"github.com/openmotion/drivesim/internal/sim"
	"github.com/openmotion/drivesim/internal/store"
)

// Server serves the scene browser HTML and rendered frame/trajectory PNGs.
type Server struct {
	scenes     store.SceneStore
	renderer   *raster.Renderer
	episodes   map[string]sim.EpisodeOutput
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a scene browser server. episodes may be nil; trajectory
// views are only available for scenes with a matching episode output.
func NewServer(scenes store.SceneStore, ren *raster.Renderer, episodes []sim.EpisodeOutput) *Server {
	byScene := make(map[string]sim.EpisodeOutput, len(episodes))
	for _, out := range episodes {
		byScene[out.SceneID] = out
	}
	return &Server{
		scenes:   scenes,
		renderer: ren,
		episodes: byScene,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/frame", s.handleFrame)
	mux.HandleFunc("/trajectory", s.handleTrajectory)

	// Let the OS pick a free port.
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: mux}
	s.mu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// indexRow holds one scene listing row for the index template.
type indexRow struct {
	Index      int
	ID         string
	Frames     int
	Duration   float64
	HasEpisode bool
}

// handleIndex serves the scene listing page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	count, err := s.scenes.Count(r.Context())
	if err != nil {
		http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]indexRow, 0, count)
	for i := 0; i < count; i++ {
		sc, err := s.scenes.SceneAt(r.Context(), i)
		if err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_, hasEpisode := s.episodes[sc.ID]
		rows = append(rows, indexRow{
			Index:      i,
			ID:         sc.ID,
			Frames:     len(sc.Frames),
			Duration:   sc.Duration(),
			HasEpisode: hasEpisode,
		})
	}

	tmplBytes, err := templates.ReadFile("templates/index.html.tmpl")
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	tmpl, err := template.New("index").Parse(string(tmplBytes))
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl.Execute(w, struct{ Scenes []indexRow }{Scenes: rows})
}

// handleFrame renders one frame of a scene at its logged ego pose as PNG.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.sceneParam(w, r)
	if !ok {
		return
	}

	frameIdx, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		http.Error(w, "missing or invalid 'index' query parameter", http.StatusBadRequest)
		return
	}
	if frameIdx < 0 || frameIdx >= len(sc.Frames) {
		http.Error(w, fmt.Sprintf("frame index %d out of range [0, %d)", frameIdx, len(sc.Frames)), http.StatusNotFound)
		return
	}

	img, err := s.renderer.Render(sc, frameIdx, sc.Frames[frameIdx].Ego)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	WriteFramePNG(w, img)
}

// handleTrajectory renders the episode trajectory overlay for a scene as PNG.
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.sceneParam(w, r)
	if !ok {
		return
	}

	out, ok := s.episodes[sc.ID]
	if !ok {
		http.Error(w, "no episode output for scene: "+sc.ID, http.StatusNotFound)
		return
	}

	img, err := TrajectoryImage(s.renderer, sc, out)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	WriteFramePNG(w, img)
}

// sceneParam resolves the 'scene' query parameter to a stored scene, writing
// an error response and returning ok=false on failure.
func (s *Server) sceneParam(w http.ResponseWriter, r *http.Request) (*scene.Scene, bool) {
	raw := r.URL.Query().Get("scene")
	if raw == "" {
		http.Error(w, "missing 'scene' query parameter", http.StatusBadRequest)
		return nil, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "invalid 'scene' query parameter: "+raw, http.StatusBadRequest)
		return nil, false
	}

	loaded, err := s.scenes.SceneAt(r.Context(), index)
	if err != nil {
		http.Error(w, "scene not found: "+raw, http.StatusNotFound)
		return nil, false
	}
	return loaded, true
}
