package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andreheringer/LocustDB/diskstore"
	"github.com/andreheringer/LocustDB/innerdb"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := innerdb.NewDB(innerdb.Options{Threads: 2, BatchSize: 4, ReadThreads: 1}, diskstore.NewMemStore())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(db.Close)
	return NewServer(db, nil)
}

func TestInsertAndQuery(t *testing.T) {
	s := newTestServer(t)
	mux := s.Handler()

	body := bytes.NewBufferString(`{"table":"t","rows":[{"a":1},{"a":2},{"a":3.5}]}`)
	req := httptest.NewRequest(http.MethodPost, "/insert", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("insert status = %d, body = %s", w.Code, w.Body.String())
	}

	qbody := bytes.NewBufferString(`{"query":"SELECT a FROM t ORDER BY a"}`)
	qreq := httptest.NewRequest(http.MethodPost, "/query", qbody)
	qw := httptest.NewRecorder()
	mux.ServeHTTP(qw, qreq)
	if qw.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", qw.Code, qw.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(qw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(resp.Rows))
	}
}

func TestQueryUnknownTableReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	mux := s.Handler()

	body := bytes.NewBufferString(`{"query":"SELECT a FROM nosuch"}`)
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTablesAndTableHandler(t *testing.T) {
	s := newTestServer(t)
	mux := s.Handler()

	ireq := httptest.NewRequest(http.MethodPost, "/insert", bytes.NewBufferString(`{"table":"orders","rows":[{"id":1,"name":"x"}]}`))
	iw := httptest.NewRecorder()
	mux.ServeHTTP(iw, ireq)
	if iw.Code != http.StatusOK {
		t.Fatalf("insert status = %d", iw.Code)
	}

	treq := httptest.NewRequest(http.MethodGet, "/tables", nil)
	tw := httptest.NewRecorder()
	mux.ServeHTTP(tw, treq)
	if tw.Code != http.StatusOK {
		t.Fatalf("tables status = %d", tw.Code)
	}

	creq := httptest.NewRequest(http.MethodGet, "/table/orders", nil)
	cw := httptest.NewRecorder()
	mux.ServeHTTP(cw, creq)
	if cw.Code != http.StatusOK {
		t.Fatalf("table status = %d, body = %s", cw.Code, cw.Body.String())
	}
	var resp map[string][]string
	if err := json.Unmarshal(cw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp["columns"]) != 2 {
		t.Fatalf("columns = %v, want 2 entries", resp["columns"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	mux := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
