// Package httpapi is the thin net/http adapter over package innerdb: it
// implements the four HTTP endpoints (POST /query, POST /insert,
// GET /tables, GET /table/{name}) using only the standard library —
// one *http.ServeMux plus a per-handler method-filtering wrapper, no
// router dependency.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/innerdb"
	"github.com/andreheringer/LocustDB/value"
)

// Server wraps an *innerdb.DB behind the engine's HTTP surface.
type Server struct {
	DB     *innerdb.DB
	Logger *log.Logger
}

// NewServer returns a Server over db, defaulting Logger to the standard
// library's package-level logger if none is given.
func NewServer(db *innerdb.DB, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{DB: db, Logger: logger}
}

// Handler builds the *http.ServeMux routing every endpoint.
func (s *Server) Handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handle(s.queryHandler, http.MethodPost))
	mux.HandleFunc("/insert", s.handle(s.insertHandler, http.MethodPost))
	mux.HandleFunc("/tables", s.handle(s.tablesHandler, http.MethodGet))
	mux.HandleFunc("/table/", s.handle(s.tableHandler, http.MethodGet))
	return mux
}

// handle wraps a handler with request logging and method filtering.
func (s *Server) handle(h func(http.ResponseWriter, *http.Request), methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		s.Logger.Printf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		for _, m := range methods {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryStats struct {
	RequestID  string `json:"request_id"`
	Rows       int    `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
}

type queryResponse struct {
	Colnames []string            `json:"colnames"`
	Rows     [][]json.RawMessage `json:"rows"`
	Stats    queryStats          `json:"stats"`
}

// queryHandler implements POST /query {query: string} -> {colnames, rows}.
func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.DB.QuerySQL(req.Query)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	rows := make([][]json.RawMessage, len(res.Rows))
	for i, row := range res.Rows {
		out := make([]json.RawMessage, len(row))
		for j, v := range row {
			out[j] = rawValJSON(v)
		}
		rows[i] = out
	}
	writeResultResponse(w, http.StatusOK, queryResponse{
		Colnames: res.Colnames,
		Rows:     rows,
		Stats: queryStats{
			RequestID:  res.RequestID.String(),
			Rows:       len(res.Rows),
			DurationMS: res.Duration.Milliseconds(),
		},
	})
}

func rawValJSON(v value.RawVal) json.RawMessage {
	switch v.Kind {
	case value.KindNull:
		return json.RawMessage("null")
	case value.KindInt:
		return json.RawMessage(strconv.FormatInt(v.Int, 10))
	case value.KindFloat:
		return json.RawMessage(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case value.KindStr:
		b, _ := json.Marshal(v.Str)
		return b
	default:
		return json.RawMessage("null")
	}
}

type insertRequest struct {
	Table string                   `json:"table"`
	Rows  []map[string]interface{} `json:"rows"`
}

// insertHandler implements POST /insert {table, rows: [obj]}. Numeric
// JSON inputs map to an Int RawVal if integer-valued, else Float.
func (s *Server) insertHandler(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Table == "" {
		http.Error(w, "missing table", http.StatusBadRequest)
		return
	}

	for _, row := range req.Rows {
		converted := make(map[string]value.RawVal, len(row))
		for k, v := range row {
			converted[k] = jsonToRawVal(v)
		}
		s.DB.Ingest(req.Table, converted)
	}
	writeResultResponse(w, http.StatusOK, map[string]int{"inserted": len(req.Rows)})
}

func jsonToRawVal(v interface{}) value.RawVal {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case string:
		return value.Str(t)
	case float64:
		if t == float64(int64(t)) {
			return value.Int(int64(t))
		}
		return value.Float(t)
	case bool:
		if t {
			return value.Int(1)
		}
		return value.Int(0)
	default:
		return value.Null()
	}
}

type tableStatsResponse struct {
	Name          string         `json:"name"`
	Rows          int            `json:"rows"`
	Batches       int            `json:"batches"`
	BatchesBytes  int            `json:"batches_bytes"`
	BufferLength  int            `json:"buffer_length"`
	BufferBytes   int            `json:"buffer_bytes"`
	SizePerColumn map[string]int `json:"size_per_column"`
}

// tablesHandler implements GET /tables, rendering store.TableStats per
// table.
func (s *Server) tablesHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.DB.TableStats()
	out := make([]tableStatsResponse, len(stats))
	for i, st := range stats {
		out[i] = tableStatsResponse{
			Name:          st.Name,
			Rows:          st.Rows,
			Batches:       st.Batches,
			BatchesBytes:  st.BatchesBytes,
			BufferLength:  st.BufferLength,
			BufferBytes:   st.BufferBytes,
			SizePerColumn: st.SizePerColumn,
		}
	}
	writeResultResponse(w, http.StatusOK, out)
}

// tableHandler implements GET /table/{name}, returning the column names
// of SELECT * FROM name LIMIT 0.
func (s *Server) tableHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/table/")
	if name == "" {
		http.Error(w, "missing table name", http.StatusBadRequest)
		return
	}
	cols, err := s.DB.ColumnNames(name)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeResultResponse(w, http.StatusOK, map[string][]string{"columns": cols})
}

// writeResultResponse marshals v as the JSON response body.
func writeResultResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	result, err := json.Marshal(v)
	if err != nil {
		panic("httpapi: unable to serialize response")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(result)))
	w.WriteHeader(statusCode)
	w.Write(result)
}

// writeQueryError maps a *errors.QueryError's Kind to an HTTP status.
func writeQueryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := errors.KindOf(err); ok {
		switch kind {
		case errors.ParseErr, errors.TypeErr, errors.NotImplementedErr:
			status = http.StatusBadRequest
		case errors.IOErr:
			status = http.StatusInternalServerError
		case errors.FatalErr:
			status = http.StatusInternalServerError
		}
	}
	http.Error(w, err.Error(), status)
}
