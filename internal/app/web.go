package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/checkide"
	"github.com/relabs-tech/birther/internal/config"
	"github.com/relabs-tech/birther/internal/recording"
	"github.com/relabs-tech/birther/internal/store"
)

const (
	maxRequestBytes = 1 << 20
	multipartMemory = 32 << 20
)

// Server is the station web UI backend.
type Server struct {
	cfg     *config.Config
	svc     Services
	calOpts calibration.Options
	chkOpts checkide.Options

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewServer wires the handlers to st. pub may be nil.
func NewServer(cfg *config.Config, st *store.Store, pub *Publisher) (*Server, error) {
	calOpts, err := CalibrationOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		svc:     Services{Store: st, Publisher: pub, Hub: NewHub(), PlotDir: cfg.PlotDir},
		calOpts: calOpts,
		chkOpts: CheckOptions(cfg),
	}, nil
}

// Hub returns the progress hub.
func (s *Server) Hub() *Hub { return s.svc.Hub }

// Wait blocks until background calibrations finish.
func (s *Server) Wait() { s.wg.Wait() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/calibrations", func(w http.ResponseWriter, r *http.Request) {
		list, err := s.svc.Store.ListCalibrations(r.Context(), r.URL.Query().Get("serial"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []store.CalibrationSummary{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("GET /api/calibrations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.lookup(w, r)
		if ok {
			writeJSON(w, http.StatusOK, rec)
		}
	})

	mux.HandleFunc("GET /api/calibrations/{id}/card.png", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.lookup(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := WriteSummaryCard(w, rec.Result); err != nil {
			log.Printf("web: card encode error: %v", err)
		}
	})

	mux.HandleFunc("GET /api/validity", func(w http.ResponseWriter, r *http.Request) {
		list, err := s.svc.Store.ListValidity(r.Context(), r.URL.Query().Get("serial"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []store.ValidityRecord{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("POST /api/calibrate", s.handleCalibrate)

	mux.Handle("/ws", s.svc.Hub)
	mux.Handle("/plots/", http.StripPrefix("/plots/", http.FileServer(http.Dir(s.cfg.PlotDir))))

	return mux
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*store.CalibrationRecord, bool) {
	rec, err := s.svc.Store.GetCalibration(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}

// bodyError answers a request whose body could not be read or decoded.
func bodyError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		http.Error(w, fmt.Sprintf("request body over %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

// handleCheck validates an uploaded recording. The body is either the
// recording document itself, or a multipart form with a "recording" file and
// an optional "expected" JSON table. ?name= labels the upload.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxUploadMB)<<20)
	name := r.URL.Query().Get("name")

	var body io.Reader = r.Body
	exp := checkide.Expectations{}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			bodyError(w, err)
			return
		}
		f, hdr, err := r.FormFile("recording")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		body = f
		if name == "" {
			name = hdr.Filename
		}
		if ef, _, err := r.FormFile("expected"); err == nil {
			defer ef.Close()
			if exp, err = checkide.DecodeExpectations(ef); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
	}

	ds, err := recording.Decode(body)
	if err != nil {
		bodyError(w, err)
		return
	}
	if name == "" {
		name = "upload"
	}
	res := RunCheck(r.Context(), s.svc, name, ds, exp, s.chkOpts)
	writeJSON(w, http.StatusOK, res)
}

// CalibrateRequest names the three recordings, relative to the data directory.
type CalibrateRequest struct {
	Files []string `json:"files"`
}

// dataPath resolves name inside the data directory.
func (s *Server) dataPath(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%q is not a file name inside the data directory", name)
	}
	return filepath.Join(s.cfg.DataDir, name), nil
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		bodyError(w, err)
		return
	}
	if len(req.Files) != 3 {
		http.Error(w, fmt.Sprintf("need 3 files, got %d", len(req.Files)), http.StatusBadRequest)
		return
	}
	paths := make([]string, len(req.Files))
	for i, name := range req.Files {
		p, err := s.dataPath(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		paths[i] = p
	}
	recs, err := OpenRecordings(paths)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "calibration already running", http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		res, err := RunCalibration(context.Background(), s.svc, s.calOpts, recs)
		if err != nil {
			log.Printf("web: calibration failed: %v", err)
			return
		}
		log.Printf("web: calibration %s complete for %s", res.SessionID, res.Device.Serial)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// RunWeb serves the station UI until the listener fails.
func RunWeb(cfg *config.Config) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pub, closePub, err := ConnectPublisher(cfg)
	if err != nil {
		log.Printf("web: MQTT unavailable, results will not be published: %v", err)
		pub = nil
	} else {
		defer closePub()
	}

	srv, err := NewServer(cfg, st, pub)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
