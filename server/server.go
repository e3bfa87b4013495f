// Package server exposes the lending lifecycle over HTTP for the
// collaborator UI layer: lifecycle operations, sweep triggers, and
// Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-lending/library"
)

// Deps bundles what the router needs.
type Deps struct {
	Manager  *library.LibraryManager
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	// Now supplies the reference date for operations that omit as_of.
	// Defaults to library.Today; tests pin it.
	Now func() time.Time
}

type handler struct {
	mgr *library.LibraryManager
	log *slog.Logger
	now func() time.Time
}

// NewRouter builds the HTTP routes with rate limiting applied to the API.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = library.Today
	}
	h := &handler{mgr: deps.Manager, log: deps.Logger, now: deps.Now}

	r := chi.NewRouter()
	r.Use(rateLimitMiddleware(newClientLimiters()))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.listBooks)
		r.Post("/", h.addBook)
		r.Get("/{id}", h.getBook)
	})

	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.listMembers)
		r.Post("/", h.addMember)
		r.Get("/{id}", h.getMember)
		r.Put("/{id}/status", h.setMemberStatus)
	})

	r.Route("/borrowings", func(r chi.Router) {
		r.Get("/", h.listBorrowings)
		r.Post("/", h.borrow)
		r.Post("/{sequence}/return", h.returnBook)
		r.Post("/{sequence}/extend", h.extend)
	})

	r.Route("/sweeps", func(r chi.Router) {
		r.Post("/fines", h.sweepFines)
		r.Post("/overdue", h.sweepOverdue)
		r.Post("/members", h.sweepMembers)
	})

	return r
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (h *handler) listBooks(w http.ResponseWriter, _ *http.Request) {
	books, err := h.mgr.GetAllBooks()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *handler) addBook(w http.ResponseWriter, r *http.Request) {
	var b library.Book
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	id, err := h.mgr.AddBook(&b)
	if err != nil {
		h.writeError(w, err)
		return
	}
	book, err := h.mgr.GetBook(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid book id"))
		return
	}
	book, err := h.mgr.GetBook(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *handler) listMembers(w http.ResponseWriter, _ *http.Request) {
	members, err := h.mgr.GetAllMembers()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	JoinDate string `json:"join_date,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	m := &library.Member{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Status: library.MemberStatus(req.Status),
	}
	if req.JoinDate != "" {
		joined, err := library.ParseDate(req.JoinDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
			return
		}
		m.JoinDate = joined
	}
	id, err := h.mgr.AddMember(m)
	if err != nil {
		h.writeError(w, err)
		return
	}
	member, err := h.mgr.GetMember(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

type memberResponse struct {
	*library.Member
	Summary *library.MemberSummary `json:"summary"`
}

func (h *handler) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid member id"))
		return
	}
	member, err := h.mgr.GetMember(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.mgr.MemberSummary(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberResponse{Member: member, Summary: summary})
}

func (h *handler) setMemberStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid member id"))
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	member, err := h.mgr.SetMemberStatus(id, library.MemberStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

type borrowRequest struct {
	MemberID           int64  `json:"member_id"`
	BookID             int64  `json:"book_id"`
	LibrarianID        int64  `json:"librarian_id"`
	BorrowDate         string `json:"borrow_date,omitempty"`
	ExpectedReturnDate string `json:"expected_return_date"`
	AsOf               string `json:"as_of,omitempty"`
}

func (h *handler) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	today, err := h.asOf(req.AsOf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	borrowDate := today
	if req.BorrowDate != "" {
		if borrowDate, err = library.ParseDate(req.BorrowDate); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
			return
		}
	}
	expected, err := library.ParseDate(req.ExpectedReturnDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	record, err := h.mgr.BorrowBook(req.MemberID, req.BookID, req.LibrarianID, borrowDate, expected, today)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *handler) listBorrowings(w http.ResponseWriter, r *http.Request) {
	var f library.RecordFilter
	q := r.URL.Query()
	if v := q.Get("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid member_id"))
			return
		}
		f.MemberID = id
	}
	if v := q.Get("book_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody("invalid book_id"))
			return
		}
		f.BookID = id
	}
	if v := q.Get("status"); v != "" {
		f.Status = library.RecordStatus(v)
	}
	records, err := h.mgr.ListRecords(f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type recordResponse struct {
	Record       *library.BorrowingRecord `json:"record"`
	Notification library.Notification     `json:"notification"`
}

func (h *handler) returnBook(w http.ResponseWriter, r *http.Request) {
	record, err := h.recordFromPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req struct {
		AsOf string `json:"as_of,omitempty"`
	}
	// Body is optional for returns.
	_ = json.NewDecoder(r.Body).Decode(&req)
	today, err := h.asOf(req.AsOf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	updated, note, err := h.mgr.ReturnBook(record.ID, today)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Record: updated, Notification: note})
}

func (h *handler) extend(w http.ResponseWriter, r *http.Request) {
	record, err := h.recordFromPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req struct {
		ExpectedReturnDate string `json:"expected_return_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	newExpected, err := library.ParseDate(req.ExpectedReturnDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}

	updated, note, err := h.mgr.ExtendDueDate(record.ID, newExpected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Record: updated, Notification: note})
}

func (h *handler) sweepFines(w http.ResponseWriter, r *http.Request) {
	today, err := h.asOfFromBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	report, err := h.mgr.FineSweepReport(today)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) sweepOverdue(w http.ResponseWriter, r *http.Request) {
	today, err := h.asOfFromBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err.Error()))
		return
	}
	n, err := h.mgr.UpdateOverdueRecords(today)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"records_updated": n})
}

func (h *handler) sweepMembers(w http.ResponseWriter, _ *http.Request) {
	report, err := h.mgr.MemberReview()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (h *handler) recordFromPath(r *http.Request) (*library.BorrowingRecord, error) {
	return h.mgr.GetRecordBySequence(chi.URLParam(r, "sequence"))
}

func (h *handler) asOf(s string) (time.Time, error) {
	if s == "" {
		return h.now(), nil
	}
	return library.ParseDate(s)
}

func (h *handler) asOfFromBody(r *http.Request) (time.Time, error) {
	var req struct {
		AsOf string `json:"as_of,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	return h.asOf(req.AsOf)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps the library error taxonomy onto HTTP statuses.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	var le *library.Error
	if errors.As(err, &le) {
		status := http.StatusConflict
		switch le.Kind {
		case library.KindValidation:
			status = http.StatusBadRequest
		case library.KindNotFound:
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": le.Message, "kind": string(le.Kind)})
		return
	}
	h.log.Error("request failed", slog.Any("error", err))
	writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
}
