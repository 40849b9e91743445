package queryhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mizu "github.com/defektu/node-oscquery"
	"github.com/defektu/node-oscquery/node"
	"github.com/defektu/node-oscquery/osctype"
)

func newTestRouter() (*mizu.Router, *node.Tree) {
	tr := node.NewTree()
	access := node.AccessReadOnly
	tr.AddMethod("/foo", node.NodeOpts{
		Access: &access,
		Arguments: []*node.ArgumentDescriptor{
			{Type: osctype.OSCType{Simple: osctype.Float}},
		},
	})
	tr.SetValue("/foo", 0, 0.5)

	writeOnly := node.AccessWriteOnly
	tr.AddMethod("/sink", node.NodeOpts{Access: &writeOnly})

	h := New(tr, func() HostInfo {
		return HostInfo{Name: "test-server", Extensions: Extensions(true)}
	})

	r := mizu.NewRouter()
	h.Mount(r)
	return r, tr
}

func TestHandleGetFullTree(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/foo", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["TYPE"] != "f" {
		t.Errorf("TYPE = %v, want f", body["TYPE"])
	}
}

func TestHandleGetUnknownPath(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestHandleGetInvalidAttr(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/foo?NOPE", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestHandleGetHostInfo(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/?HOST_INFO", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var hi HostInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &hi); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hi.Name != "test-server" || !hi.Extensions["LISTEN"] {
		t.Errorf("unexpected HostInfo: %+v", hi)
	}
}

func TestHandleGetValueOnWriteOnlyIsNoContent(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/sink?VALUE", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, want 204", rec.Code)
	}
}

func TestHandleGetValueOnReadableAttribute(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/foo?VALUE", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	vals, ok := body["VALUE"].([]any)
	if !ok || len(vals) != 1 || vals[0] != 0.5 {
		t.Errorf("VALUE = %v, want [0.5]", body["VALUE"])
	}
}

func TestPreflightOptionsWithOrigin(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/foo", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET, OPTIONS" {
		t.Errorf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
	if rec.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Errorf("Max-Age = %q", rec.Header().Get("Access-Control-Max-Age"))
	}
}

func TestPreflightOptionsWithoutOriginFallsBackTo204(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/foo", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Allow-Origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestNonGetNonOptionsMethod(t *testing.T) {
	r, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/foo", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}
