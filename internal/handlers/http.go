package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pcapscope/internal/engine"
)

// Options configures the routes.
type Options struct {
	MaxUploadBytes int64
	// StaticDir, when set, is served at the root.
	StaticDir string
	// ClientBacklog is the per-WebSocket-client send buffer.
	ClientBacklog int
}

const defaultMaxUpload = 100 << 20 // 100 MB

// RegisterRoutes sets up all HTTP routes on the given router.
func RegisterRoutes(r *mux.Router, eng *engine.Engine, opts Options) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}

	api := r.PathPrefix("/api").Subrouter()
	// Without this a method mismatch falls through to the static handler.
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	api.HandleFunc("/upload", handleUpload(eng, opts.MaxUploadBytes)).Methods(http.MethodPost)
	api.HandleFunc("/summary", handleSummary(eng)).Methods(http.MethodGet)
	api.HandleFunc("/result", handleResult(eng)).Methods(http.MethodGet)
	api.HandleFunc("/packets/{id:[0-9]+}", handlePacket(eng)).Methods(http.MethodGet)
	api.HandleFunc("/streams/{id:[0-9]+}", handleStream(eng)).Methods(http.MethodGet)
	api.HandleFunc("/streams/{id:[0-9]+}/pcap", handleStreamPCAP(eng)).Methods(http.MethodGet)

	// WebSocket endpoint
	r.HandleFunc("/ws", HandleWebSocket(eng, opts.ClientBacklog))

	if opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Write response: %v", err)
	}
}

// writeError maps engine errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoCapture), errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) int {
	// The route pattern only admits digits.
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func handleUpload(eng *engine.Engine, maxUpload int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, fmt.Sprintf("File too large (max %dMB)", maxUpload>>20), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		buf, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		log.Printf("Upload %s (%d bytes)", header.Filename, len(buf))

		summary, err := eng.LoadPcapBytes(header.Filename, buf)
		if err != nil {
			http.Error(w, "Failed to read capture: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, summary)
	}
}

func handleSummary(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := eng.Summary()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

func handleResult(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := eng.Result()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

func handlePacket(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := eng.PacketDetail(pathID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, d)
	}
}

func handleStream(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sd, err := eng.StreamData(pathID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, sd)
	}
}

func handleStreamPCAP(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r)
		var buf bytes.Buffer
		if err := eng.WriteStreamPCAP(&buf, id); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.tcpdump.pcap")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=stream-%d.pcap", id))
		w.Write(buf.Bytes())
	}
}
