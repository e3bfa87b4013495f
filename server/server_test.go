package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"library-lending/library"
)

type fixture struct {
	srv       *httptest.Server
	mgr       *library.LibraryManager
	bookID    int64
	memberID  int64
	librarian int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	registry := prometheus.NewRegistry()
	mgr.SetMetrics(library.NewSweepMetrics(registry))

	router := NewRouter(Deps{
		Manager:  mgr,
		Logger:   logger,
		Gatherer: registry,
		Now:      func() time.Time { return library.Date(2025, 1, 1) },
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	f := &fixture{srv: srv, mgr: mgr}
	if f.bookID, err = mgr.AddBook(&library.Book{Title: "Dune", Author: "Frank Herbert", ISBN: "978-1", TotalCopies: 1}); err != nil {
		t.Fatalf("add book: %v", err)
	}
	if f.memberID, err = mgr.AddMember(&library.Member{Name: "alice", Email: "alice@example.com", Phone: "0111111111"}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if f.librarian, err = mgr.AddLibrarian(&library.Librarian{Name: "Siti", EmployeeID: "LIB001"}, library.Date(2024, 1, 15)); err != nil {
		t.Fatalf("add librarian: %v", err)
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestBorrowAndReturnFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/borrowings", map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-10",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: want 201, got %d", resp.StatusCode)
	}
	record := decode[library.BorrowingRecord](t, resp)
	if record.Sequence == "" || record.Status != library.StatusBorrowed {
		t.Fatalf("unexpected record: %+v", record)
	}

	// The single copy is now out.
	resp = f.do(t, http.MethodGet, fmt.Sprintf("/books/%d", f.bookID), nil)
	book := decode[library.Book](t, resp)
	if book.AvailableCopies != 0 {
		t.Fatalf("want 0 available, got %d", book.AvailableCopies)
	}

	resp = f.do(t, http.MethodPost, "/borrowings/"+record.Sequence+"/return",
		map[string]string{"as_of": "2025-01-13"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("return: want 200, got %d", resp.StatusCode)
	}
	rr := decode[recordResponse](t, resp)
	if rr.Record.FineAmount != 15.0 {
		t.Fatalf("3 days late: want fine 15.00, got %.2f", rr.Record.FineAmount)
	}
	if !strings.Contains(rr.Notification.Message, "RM 15.00") {
		t.Fatalf("notification should carry the fine: %q", rr.Notification.Message)
	}
}

func TestBorrowUnavailableMapsToConflict(t *testing.T) {
	f := newFixture(t)

	body := map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-10",
	}
	if resp := f.do(t, http.MethodPost, "/borrowings", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first borrow: want 201, got %d", resp.StatusCode)
	}

	memberID, err := f.mgr.AddMember(&library.Member{Name: "bob", Email: "bob@example.com", Phone: "0222222222"})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	body["member_id"] = memberID
	resp := f.do(t, http.MethodPost, "/borrowings", body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("no copies left: want 409, got %d", resp.StatusCode)
	}
	errResp := decode[map[string]string](t, resp)
	if errResp["kind"] != string(library.KindUnavailable) {
		t.Fatalf("want unavailable kind, got %q", errResp["kind"])
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)

	// Validation: due date not after borrow date.
	resp := f.do(t, http.MethodPost, "/borrowings", map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-01",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("validation: want 400, got %d", resp.StatusCode)
	}

	// Not found.
	if resp := f.do(t, http.MethodGet, "/books/999", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing book: want 404, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodPost, "/borrowings/BRW99999/return", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing record: want 404, got %d", resp.StatusCode)
	}

	// Constraint: duplicate ISBN.
	resp = f.do(t, http.MethodPost, "/books", map[string]any{
		"title": "Other", "author": "Someone", "isbn": "978-1", "total_copies": 1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate ISBN: want 409, got %d", resp.StatusCode)
	}
}

func TestMemberEndpointIncludesSummary(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/borrowings", map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-10",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: want 201, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, fmt.Sprintf("/members/%d", f.memberID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get member: want 200, got %d", resp.StatusCode)
	}
	var body struct {
		Sequence string                 `json:"sequence"`
		Summary  *library.MemberSummary `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Sequence != "MEM00001" {
		t.Fatalf("want MEM00001, got %s", body.Sequence)
	}
	if body.Summary == nil || body.Summary.CurrentBorrowed != 1 {
		t.Fatalf("want summary with 1 borrowed, got %+v", body.Summary)
	}
}

func TestSweepEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/borrowings", map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-05",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: want 201, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/sweeps/fines", map[string]string{"as_of": "2025-01-09"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fine sweep: want 200, got %d", resp.StatusCode)
	}
	report := decode[library.FineSweepReport](t, resp)
	if report.RecordsUpdated != 1 || report.TotalFines != 20.0 {
		t.Fatalf("want 1 update / fines 20.00, got %+v", report)
	}

	resp = f.do(t, http.MethodPost, "/sweeps/overdue", map[string]string{"as_of": "2025-01-09"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overdue sweep: want 200, got %d", resp.StatusCode)
	}
	counts := decode[map[string]int](t, resp)
	if counts["records_updated"] != 0 {
		t.Fatalf("already swept: want 0 updates, got %d", counts["records_updated"])
	}

	resp = f.do(t, http.MethodPost, "/sweeps/members", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member review: want 200, got %d", resp.StatusCode)
	}
	review := decode[library.MemberReviewReport](t, resp)
	if review.TotalMembers != 1 || review.ActiveWithOverdue != 1 {
		t.Fatalf("unexpected review: %+v", review)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: want 200, got %d", resp.StatusCode)
	}

	// Exercise a sweep so the counters exist, then scrape.
	if resp := f.do(t, http.MethodPost, "/sweeps/fines", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep: want 200, got %d", resp.StatusCode)
	}
	resp := f.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: want 200, got %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(raw), "library_sweep_runs_total") {
		t.Fatalf("metrics output missing sweep counter")
	}
}

func TestListBorrowingsFilters(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/borrowings", map[string]any{
		"member_id":            f.memberID,
		"book_id":              f.bookID,
		"librarian_id":         f.librarian,
		"expected_return_date": "2025-01-10",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: want 201, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, fmt.Sprintf("/borrowings?member_id=%d&status=borrowed", f.memberID), nil)
	records := decode[[]library.BorrowingRecord](t, resp)
	if len(records) != 1 {
		t.Fatalf("want 1 record, got %d", len(records))
	}
	resp = f.do(t, http.MethodGet, "/borrowings?status=returned", nil)
	if records := decode[[]library.BorrowingRecord](t, resp); len(records) != 0 {
		t.Fatalf("want no returned records, got %d", len(records))
	}
}
