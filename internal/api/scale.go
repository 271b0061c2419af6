package api

import (
	"errors"
	"net/http"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/framing"
)

// ─── Scale API ──────────────────────────────────────────────────────────────
// GET  /api/scale/ports       serial ports available to the station
// POST /api/scale/connect     open the indicator port
// POST /api/scale/disconnect  close it
// GET  /api/scale/status      connection state
// GET  /api/scale/reading     last accepted reading

type connectRequest struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate"`
}

// readingResponse reports the current weight. Raw is the last sanitized
// text the indicator sent, even when it did not decode.
type readingResponse struct {
	Available bool             `json:"available"`
	Reading   *framing.Reading `json:"reading,omitempty"`
	Raw       string           `json:"raw"`
}

func (s *Server) handleScalePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.scale.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ports": ports,
	})
}

func (s *Server) handleScaleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.scale.Connect(req.Path, req.BaudRate); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.fail(w, r, err)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.scale.Status())
}

func (s *Server) handleScaleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.scale.Disconnect(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scale.Status())
}

func (s *Server) handleScaleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scale.Status())
}

func (s *Server) handleScaleReading(w http.ResponseWriter, r *http.Request) {
	resp := readingResponse{Raw: s.decoder.RawText()}
	if rd, ok := s.decoder.Current(); ok {
		resp.Available = true
		resp.Reading = &rd
	}
	writeJSON(w, http.StatusOK, resp)
}

// currentWeight returns the stage weight: the explicit value when given,
// the live reading otherwise.
func (s *Server) currentWeight(explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if s.decoder == nil {
		return 0, domain.ErrNoReading
	}
	rd, ok := s.decoder.Current()
	if !ok {
		return 0, domain.ErrNoReading
	}
	return rd.Weight, nil
}
