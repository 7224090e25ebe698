package receiptstore

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// Server is a file-system backed object store speaking the protocol of Service
type Server struct {
	dir       string
	publicURL string
	maxBytes  int64
}

func NewServer(dir, publicURL string, maxBytes int64) (*Server, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	return &Server{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
	}, nil
}

// Routes mounts the object endpoints on r
func (s *Server) Routes(r chi.Router) {
	r.Put("/objects/*", s.put)
	r.Get("/objects/*", s.get)
}

// objectPath maps a key to a file under dir, rejecting keys that escape it
func (s *Server) objectPath(key string) (string, bool) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), true
}

func (s *Server) put(w http.ResponseWriter, r *http.Request) {
	l := hlog.FromRequest(r)
	key := chi.URLParam(r, "*")

	p, ok := s.objectPath(key)
	if !ok {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		l.Error().Err(err).Send()
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	f, err := os.Create(p)
	if err != nil {
		l.Error().Err(err).Send()
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	n, err := io.Copy(f, http.MaxBytesReader(w, r.Body, s.maxBytes))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		l.Warn().Err(err).Str("key", key).Msg("Upload failed")
		http.Error(w, "upload failed", http.StatusBadRequest)
		return
	}

	l.Info().Str("key", key).Int64("size", n).Msg("Object stored")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(PutObjectResponse{
		Key: key,
		URL: s.publicURL + "/objects/" + key,
	})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	p, ok := s.objectPath(chi.URLParam(r, "*"))
	if !ok {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(p); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}
