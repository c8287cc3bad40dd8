package prefixtree

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/elliewise/nametrie/internal/core"
	"github.com/elliewise/nametrie/internal/engine"
)

// fakeEngine records the arguments the handlers pass down and returns
// canned responses.
type fakeEngine struct {
	treeQuery engine.TreeQuery
	treeErr   error

	namesPrefix string
	namesLimit  int
	namesOffset int
	namesErr    error

	searchQuery string
	searchLimit int
	searchErr   error
}

func (f *fakeEngine) GetTree(ctx context.Context, q engine.TreeQuery) (*engine.TreeResponse, error) {
	f.treeQuery = q
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return &engine.TreeResponse{Prefix: q.Prefix, MaxDepth: q.MaxDepth, Nodes: []*engine.TreeNode{}}, nil
}

func (f *fakeEngine) NamesUnderPrefix(ctx context.Context, prefix string, limit, offset int) (*engine.PagedNames, error) {
	f.namesPrefix, f.namesLimit, f.namesOffset = prefix, limit, offset
	if f.namesErr != nil {
		return nil, f.namesErr
	}
	return &engine.PagedNames{Prefix: prefix, Limit: limit, Offset: offset, Names: []core.NameRecord{}}, nil
}

func (f *fakeEngine) Search(ctx context.Context, query string, limit int) (*engine.SearchResult, error) {
	f.searchQuery, f.searchLimit = query, limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &engine.SearchResult{Query: query, Results: []*engine.TreeNode{}}, nil
}

type fakeRebuilder struct {
	summary core.BuildSummary
	err     error
	calls   int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) (core.BuildSummary, error) {
	f.calls++
	return f.summary, f.err
}

func newTestServer(e *fakeEngine, r *fakeRebuilder) *http.ServeMux {
	mux := http.NewServeMux()
	NewServer(e, r).Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGetTree_Defaults(t *testing.T) {
	fe := &fakeEngine{}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	if fe.treeQuery.Prefix != "" || fe.treeQuery.MaxDepth != engine.DefaultTreeDepth {
		t.Errorf("Defaults not applied: %+v", fe.treeQuery)
	}
	if fe.treeQuery.IncludeNames {
		t.Error("include_names must default to false")
	}
}

func TestGetTree_ParsesAllParams(t *testing.T) {
	fe := &fakeEngine{}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet,
		"/v1/tree?prefix=mi&max_depth=5&gender=female&origin_country=Italy"+
			"&min_popularity=10.5&max_popularity=90"+
			"&highlight_prefixes=mi,mia&highlight_name_ids=1,2&include_names=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	q := fe.treeQuery
	if q.Prefix != "mi" || q.MaxDepth != 5 || !q.IncludeNames {
		t.Errorf("Unexpected query: %+v", q)
	}
	if q.Filters.Gender != "female" || q.Filters.OriginCountry != "Italy" {
		t.Errorf("Filters not parsed: %+v", q.Filters)
	}
	if q.Filters.MinPopularity == nil || *q.Filters.MinPopularity != 10.5 {
		t.Errorf("min_popularity = %v", q.Filters.MinPopularity)
	}
	if q.Filters.MaxPopularity == nil || *q.Filters.MaxPopularity != 90 {
		t.Errorf("max_popularity = %v", q.Filters.MaxPopularity)
	}
	if !reflect.DeepEqual(q.Highlight.Prefixes, []string{"mi", "mia"}) {
		t.Errorf("highlight_prefixes = %v", q.Highlight.Prefixes)
	}
	if !reflect.DeepEqual(q.Highlight.NameIDs, []int64{1, 2}) {
		t.Errorf("highlight_name_ids = %v", q.Highlight.NameIDs)
	}
}

func TestGetTree_BadParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"non-integer depth", "/v1/tree?max_depth=deep"},
		{"non-numeric popularity", "/v1/tree?min_popularity=high"},
		{"non-integer ids", "/v1/tree?highlight_name_ids=1,x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestServer(&fakeEngine{}, &fakeRebuilder{})
			rec := doRequest(t, mux, http.MethodGet, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetTree_ValidationErrorMapsTo400(t *testing.T) {
	fe := &fakeEngine{treeErr: core.NewValidationError("max_depth", "must be between 1 and 10, got 42")}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree?max_depth=42")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Error body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("Error body missing the message")
	}
}

func TestGetTree_InternalErrorMapsTo500(t *testing.T) {
	fe := &fakeEngine{treeErr: errors.New("connection refused")}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", rec.Code)
	}
}

func TestNames_PathAndPaging(t *testing.T) {
	fe := &fakeEngine{}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree/names/mi?limit=25&offset=50")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if fe.namesPrefix != "mi" || fe.namesLimit != 25 || fe.namesOffset != 50 {
		t.Errorf("Got prefix=%q limit=%d offset=%d", fe.namesPrefix, fe.namesLimit, fe.namesOffset)
	}
}

func TestNames_Defaults(t *testing.T) {
	fe := &fakeEngine{}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree/names/an")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if fe.namesLimit != engine.DefaultNamesLimit || fe.namesOffset != 0 {
		t.Errorf("Defaults not applied: limit=%d offset=%d", fe.namesLimit, fe.namesOffset)
	}
}

func TestSearch_PassesQueryAndLimit(t *testing.T) {
	fe := &fakeEngine{}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree/search?query=ann&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if fe.searchQuery != "ann" || fe.searchLimit != 5 {
		t.Errorf("Got query=%q limit=%d", fe.searchQuery, fe.searchLimit)
	}
}

func TestSearch_MissingQueryMapsTo400(t *testing.T) {
	fe := &fakeEngine{searchErr: core.NewValidationError("query", "must not be empty")}
	mux := newTestServer(fe, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree/search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestRebuild_Success(t *testing.T) {
	fr := &fakeRebuilder{summary: core.BuildSummary{
		RunID:      "run-1",
		TotalNodes: 12,
		TotalNames: 3,
	}}
	mux := newTestServer(&fakeEngine{}, fr)

	rec := doRequest(t, mux, http.MethodPost, "/v1/tree/rebuild")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if fr.calls != 1 {
		t.Errorf("Rebuild called %d times, want 1", fr.calls)
	}

	var body rebuildResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "success" || body.TotalNodes != 12 {
		t.Errorf("Unexpected body: %+v", body)
	}
}

func TestRebuild_ConflictMapsTo409(t *testing.T) {
	fr := &fakeRebuilder{err: &core.ConflictError{Reason: "a rebuild is already running"}}
	mux := newTestServer(&fakeEngine{}, fr)

	rec := doRequest(t, mux, http.MethodPost, "/v1/tree/rebuild")
	if rec.Code != http.StatusConflict {
		t.Errorf("Status = %d, want 409", rec.Code)
	}
}

func TestRebuild_RejectsGet(t *testing.T) {
	mux := newTestServer(&fakeEngine{}, &fakeRebuilder{})

	rec := doRequest(t, mux, http.MethodGet, "/v1/tree/rebuild")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", rec.Code)
	}
}
