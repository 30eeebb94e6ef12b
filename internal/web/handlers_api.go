package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lamparray-go/internal/device"
	"lamparray-go/internal/lamparray"
)

type attributesResponse struct {
	lamparray.DeviceAttributes
	KindName string `json:"kind_name"`
	DeviceID string `json:"device_id"`
	Layout   string `json:"layout"`
}

func (s *Server) handleAPIAttributes(w http.ResponseWriter, r *http.Request) {
	attrs := s.dev.Attributes()
	s.writeJSON(w, http.StatusOK, attributesResponse{
		DeviceAttributes: attrs,
		KindName:         attrs.Kind.String(),
		DeviceID:         s.dev.DeviceID(),
		Layout:           s.dev.LayoutName(),
	})
}

func (s *Server) handleAPIListLamps(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dev.Lamps())
}

func (s *Server) handleAPIGetLamp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 16)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid lamp id"})
		return
	}
	lamp, err := s.dev.Lamp(uint16(id))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "lamp not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, lamp)
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dev.State())
}

type layerResponse struct {
	DefaultLayer uint8 `json:"default_layer"`
	Layers       int   `json:"layers"`
}

func (s *Server) handleAPIGetLayer(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, layerResponse{
		DefaultLayer: s.dev.DefaultLayer(),
		Layers:       s.dev.LayerCount(),
	})
}

type setLayerRequest struct {
	DefaultLayer *uint8 `json:"default_layer"`
}

func (s *Server) handleAPISetLayer(w http.ResponseWriter, r *http.Request) {
	var req setLayerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DefaultLayer == nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.dev.SetDefaultLayer(*req.DefaultLayer); err != nil {
		if errors.Is(err, device.ErrNoSuchLayer) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("set default layer", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, layerResponse{
		DefaultLayer: s.dev.DefaultLayer(),
		Layers:       s.dev.LayerCount(),
	})
}

func (s *Server) handleAPILinkStats(w http.ResponseWriter, r *http.Request) {
	if s.linkStats == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no link"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.linkStats())
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":   s.version,
		"device_id": s.dev.DeviceID(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
