package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roadgraph/internal/model"
	"github.com/sells-group/roadgraph/internal/store"
)

const geoJSONContentType = "application/geo+json"

// edgeResponse is the JSON body of GET /edges/{id}.
type edgeResponse struct {
	model.Edge[float64]
	Length float64 `json:"length"`
	WKT    string  `json:"wkt"`
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "node", id)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.store.GetEdge(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge", id)
		return
	}
	writeJSON(w, http.StatusOK, edgeResponse{Edge: *e, Length: e.Length(), WKT: e.AsWKT()})
}

func (s *Server) handleEdgeFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	key := fmt.Sprintf("edge/%d", id)
	if body := s.cache.Get(key); body != nil {
		writeBody(w, http.StatusOK, geoJSONContentType, body)
		return
	}

	e, err := s.store.GetEdge(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "edge", id)
		return
	}
	body, err := e.Feature().MarshalJSON()
	if err != nil {
		zap.L().Error("server: encode feature", zap.Int64("edge_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode feature")
		return
	}
	s.cache.Put(key, body)
	writeBody(w, http.StatusOK, geoJSONContentType, body)
}

func (s *Server) handleEdgesInBound(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	bound, err := ParseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := fmt.Sprintf("bbox/%v,%v,%v,%v/%d", bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat(), limit)
	if body := s.cache.Get(key); body != nil {
		writeBody(w, http.StatusOK, geoJSONContentType, body)
		return
	}

	edges, err := s.store.EdgesInBound(r.Context(), bound, limit)
	if err != nil {
		zap.L().Error("server: edges in bound", zap.String("bbox", q.Get("bbox")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query edges")
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, e := range edges {
		fc.Append(e.Feature())
	}
	body, err := json.Marshal(fc)
	if err != nil {
		zap.L().Error("server: encode feature collection", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode features")
		return
	}
	s.cache.Put(key, body)
	writeBody(w, http.StatusOK, geoJSONContentType, body)
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := ParseCoord(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := ParseCoord(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"meters": model.Distance(from, to)})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) storeError(w http.ResponseWriter, err error, entity string, id int64) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %d not found", entity, id))
		return
	}
	zap.L().Error("server: store lookup failed",
		zap.String("entity", entity),
		zap.Int64("id", id),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "lookup "+entity)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultEdgeLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, eris.Errorf("invalid limit %q", raw)
	}
	return min(n, maxEdgeLimit), nil
}

// ParseCoord parses "lon,lat" into a coordinate.
func ParseCoord(raw string) (model.Coord[float64], error) {
	vals, err := parseFloats(raw, 2)
	if err != nil {
		return model.Coord[float64]{}, err
	}
	return model.Coord[float64]{Lon: vals[0], Lat: vals[1]}, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat" into a bound.
func ParseBBox(raw string) (orb.Bound, error) {
	if raw == "" {
		return orb.Bound{}, eris.New("bbox is required")
	}
	vals, err := parseFloats(raw, 4)
	if err != nil {
		return orb.Bound{}, eris.Wrap(err, "bbox")
	}
	if vals[0] > vals[2] || vals[1] > vals[3] {
		return orb.Bound{}, eris.New("bbox: min must not exceed max")
	}
	return orb.Bound{Min: orb.Point{vals[0], vals[1]}, Max: orb.Point{vals[2], vals[3]}}, nil
}

func parseFloats(raw string, n int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return nil, eris.Errorf("expected %d comma-separated numbers, got %q", n, raw)
	}
	vals := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("invalid number %q", p)
		}
		vals[i] = v
	}
	return vals, nil
}
