package api

import (
	"net/http"
)

// handleGetSequence returns the sequence as text, or 204 when nothing has
// been written under the hash.
func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := s.deps.Sequences.Get(r.Context(), r.PathValue("md5"))
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	if seq == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(seq))
}

func (s *Server) handleWriteSequence(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(r)
	if err != nil {
		writeSequenceError(w, err)
		return
	}
	if err := s.deps.Sequences.Write(r.Context(), r.PathValue("md5"), string(body)); err != nil {
		writeSequenceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSequence(w http.ResponseWriter, r *http.Request) {
	writeSequenceError(w, s.deps.Sequences.Delete(r.Context(), r.PathValue("md5")))
}
