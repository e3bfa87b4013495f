package library

import (
	"fmt"
	"log/slog"
	"time"
)

// LibraryManager is a thin façade over the Database, keeping CLI and HTTP
// code simple. It owns the batch-job entry points, which log and report a
// boolean outcome instead of propagating errors.
type LibraryManager struct {
	db         *Database
	log        *slog.Logger
	metrics    *SweepMetrics
	finePerDay float64
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
// A nil logger falls back to slog.Default().
func NewLibraryManager(dbPath string, logger *slog.Logger) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryManager{db: db, log: logger, finePerDay: DefaultFinePerDay}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// SetMetrics attaches sweep metrics collection.
func (lm *LibraryManager) SetMetrics(m *SweepMetrics) { lm.metrics = m }

// SetFinePerDay overrides the per-day fine rate used for new records.
func (lm *LibraryManager) SetFinePerDay(rate float64) {
	if rate > 0 {
		lm.finePerDay = rate
	}
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(b *Book) (int64, error)    { return lm.db.AddBook(b) }
func (lm *LibraryManager) GetBook(id int64) (*Book, error)   { return lm.db.GetBook(id) }
func (lm *LibraryManager) GetAllBooks() ([]*Book, error)     { return lm.db.GetAllBooks() }
func (lm *LibraryManager) UpdateBook(b *Book) error          { return lm.db.UpdateBook(b) }
func (lm *LibraryManager) DeleteBook(id int64) error         { return lm.db.DeleteBook(id) }
func (lm *LibraryManager) SetTotalCopies(id int64, n int) error {
	return lm.db.SetTotalCopies(id, n)
}
func (lm *LibraryManager) AvailableCopies(id int64) (int, error) {
	return lm.db.AvailableCopies(id)
}

// ------------------ Member helpers ------------------

func (lm *LibraryManager) AddMember(m *Member) (int64, error) { return lm.db.AddMember(m) }
func (lm *LibraryManager) GetMember(id int64) (*Member, error) {
	return lm.db.GetMember(id)
}
func (lm *LibraryManager) GetMemberBySequence(seq string) (*Member, error) {
	return lm.db.GetMemberBySequence(seq)
}
func (lm *LibraryManager) GetAllMembers() ([]*Member, error) { return lm.db.GetAllMembers() }
func (lm *LibraryManager) DeleteMember(id int64) error       { return lm.db.DeleteMember(id) }
func (lm *LibraryManager) MemberSummary(id int64) (*MemberSummary, error) {
	return lm.db.MemberSummary(id)
}
func (lm *LibraryManager) UpdateMemberContact(id int64, email, phone string) error {
	return lm.db.UpdateMemberContact(id, email, phone)
}

// SetMemberStatus transitions a member's status; the borrow limit follows
// the new status immediately.
func (lm *LibraryManager) SetMemberStatus(id int64, status MemberStatus) (*Member, error) {
	return lm.db.SetMemberStatus(id, status)
}

// ------------------ Librarian helpers ------------------

func (lm *LibraryManager) AddLibrarian(l *Librarian, today time.Time) (int64, error) {
	return lm.db.AddLibrarian(l, today)
}
func (lm *LibraryManager) GetLibrarian(id int64) (*Librarian, error) {
	return lm.db.GetLibrarian(id)
}
func (lm *LibraryManager) GetLibrarianByEmployeeID(employeeID string) (*Librarian, error) {
	return lm.db.GetLibrarianByEmployeeID(employeeID)
}
func (lm *LibraryManager) GetAvailableLibrarians() ([]*Librarian, error) {
	return lm.db.GetAvailableLibrarians()
}
func (lm *LibraryManager) ToggleLibrarianActive(id int64) error {
	return lm.db.ToggleLibrarianActive(id)
}
func (lm *LibraryManager) ManagedBorrowingCount(id int64) (int, error) {
	return lm.db.ManagedBorrowingCount(id)
}

// ------------------ Circulation ------------------

// BorrowBook creates a borrowing record after validating the member's
// limit and the book's availability.
func (lm *LibraryManager) BorrowBook(memberID, bookID, librarianID int64, borrowDate, expectedReturn, today time.Time) (*BorrowingRecord, error) {
	return lm.db.BorrowBook(memberID, bookID, librarianID, borrowDate, expectedReturn, today, lm.finePerDay)
}

// ReturnBook processes a return and yields the notification payload for
// the UI layer alongside the updated record.
func (lm *LibraryManager) ReturnBook(recordID int64, today time.Time) (*BorrowingRecord, Notification, error) {
	r, err := lm.db.ReturnBook(recordID, today)
	if err != nil {
		return nil, Notification{}, err
	}
	return r, Notification{
		Title:    "Book Returned",
		Message:  fmt.Sprintf("Book returned successfully. Fine: RM %.2f", r.FineAmount),
		Severity: SeveritySuccess,
	}, nil
}

// ExtendDueDate pushes a borrowed record's due date back.
func (lm *LibraryManager) ExtendDueDate(recordID int64, newExpected time.Time) (*BorrowingRecord, Notification, error) {
	r, err := lm.db.ExtendDueDate(recordID, newExpected)
	if err != nil {
		return nil, Notification{}, err
	}
	return r, Notification{
		Title:    "Due Date Extended",
		Message:  fmt.Sprintf("Due date for %q extended to %s.", r.BookTitle, FormatDate(r.ExpectedReturnDate)),
		Severity: SeveritySuccess,
	}, nil
}

func (lm *LibraryManager) GetRecord(id int64) (*BorrowingRecord, error) {
	return lm.db.GetRecord(id)
}
func (lm *LibraryManager) GetRecordBySequence(seq string) (*BorrowingRecord, error) {
	return lm.db.GetRecordBySequence(seq)
}
func (lm *LibraryManager) ListRecords(f RecordFilter) ([]*BorrowingRecord, error) {
	return lm.db.ListRecords(f)
}
func (lm *LibraryManager) DeleteRecord(id int64) error { return lm.db.DeleteRecord(id) }
func (lm *LibraryManager) SetRecordStatus(id int64, status RecordStatus) error {
	return lm.db.SetRecordStatus(id, status)
}
func (lm *LibraryManager) SetRecordNotes(id int64, notes string) error {
	return lm.db.SetRecordNotes(id, notes)
}
func (lm *LibraryManager) RescheduleRecord(id int64, borrowDate, expectedReturn time.Time) (*BorrowingRecord, error) {
	return lm.db.RescheduleRecord(id, borrowDate, expectedReturn)
}

// ------------------ Batch jobs ------------------

// CronCalculateOverdueFines is the daily scheduler entry point. It never
// raises: failures are logged and reported as false. Safe to re-run at
// any time; a sweep over already-correct records changes nothing.
func (lm *LibraryManager) CronCalculateOverdueFines(today time.Time) bool {
	report, err := lm.db.FineSweep(today)
	if err != nil {
		lm.log.Error("overdue fine calculation failed",
			slog.String("job", JobFineSweep), slog.Any("error", err))
		if lm.metrics != nil {
			lm.metrics.RecordRun(JobFineSweep, false)
		}
		return false
	}

	for _, e := range report.Updated {
		lm.log.Info("overdue fine updated",
			slog.String("job", JobFineSweep),
			slog.String("record", e.Sequence),
			slog.String("member", e.MemberName),
			slog.String("book", e.BookTitle),
			slog.Float64("fine", e.Fine))
	}
	lm.log.Info("overdue fine calculation completed",
		slog.String("job", JobFineSweep),
		slog.Int("records_updated", report.RecordsUpdated),
		slog.Float64("total_fines", report.TotalFines))
	if lm.metrics != nil {
		lm.metrics.RecordRun(JobFineSweep, true)
		lm.metrics.RecordOverdue(report.RecordsUpdated)
		lm.metrics.RecordFines(report.TotalFines)
	}
	return true
}

// CronReviewMemberStatus is the weekly scheduler entry point: a read-only
// reporting sweep. Never raises; failures are logged and reported false.
func (lm *LibraryManager) CronReviewMemberStatus() bool {
	report, err := lm.db.MemberStatusReview()
	if err != nil {
		lm.log.Error("member status review failed",
			slog.String("job", JobMemberReview), slog.Any("error", err))
		if lm.metrics != nil {
			lm.metrics.RecordRun(JobMemberReview, false)
		}
		return false
	}

	lm.log.Info("weekly member status review",
		slog.String("job", JobMemberReview),
		slog.Int("active_with_overdue", report.ActiveWithOverdue),
		slog.Int("inactive_idle", report.InactiveIdle),
		slog.Int("pending", report.Pending),
		slog.Int("total_members", report.TotalMembers))
	if len(report.Flagged) > 0 {
		lm.log.Warn("members with 3+ overdue books requiring attention",
			slog.Any("members", report.Flagged))
	}
	if lm.metrics != nil {
		lm.metrics.RecordRun(JobMemberReview, true)
	}
	return true
}

// UpdateOverdueRecords runs the light overdue sync: past-due borrowed
// records flip to overdue without fine recomputation.
func (lm *LibraryManager) UpdateOverdueRecords(today time.Time) (int, error) {
	n, err := lm.db.SyncOverdue(today)
	if err != nil {
		if lm.metrics != nil {
			lm.metrics.RecordRun(JobOverdueSync, false)
		}
		return 0, err
	}
	if lm.metrics != nil {
		lm.metrics.RecordRun(JobOverdueSync, true)
		lm.metrics.RecordOverdue(n)
	}
	return n, nil
}

// FineSweepReport exposes the fine sweep with its report, for callers that
// need the numbers rather than the cron boolean.
func (lm *LibraryManager) FineSweepReport(today time.Time) (FineSweepReport, error) {
	return lm.db.FineSweep(today)
}

// MemberReview exposes the review report directly.
func (lm *LibraryManager) MemberReview() (MemberReviewReport, error) {
	return lm.db.MemberStatusReview()
}

// TestFineSweep manually triggers the fine sweep and wraps the outcome in
// a notification payload, mirroring the scheduled run.
func (lm *LibraryManager) TestFineSweep(today time.Time) Notification {
	if !lm.CronCalculateOverdueFines(today) {
		return Notification{
			Title:    "Cron Test",
			Message:  "Fine calculation failed. Check logs for details.",
			Severity: SeverityError,
		}
	}
	return Notification{
		Title:    "Cron Test",
		Message:  "Fine calculation completed. Check logs for details.",
		Severity: SeverityInfo,
	}
}
