package library

import (
	"fmt"
	"math"
	"time"
)

// RecordStatus is the lifecycle state of a borrowing record.
// Records move borrowed -> overdue -> returned; both borrowed and overdue
// may terminate directly at returned, and returned is terminal.
type RecordStatus string

const (
	StatusBorrowed RecordStatus = "borrowed"
	StatusOverdue  RecordStatus = "overdue"
	StatusReturned RecordStatus = "returned"
)

// MemberStatus drives a member's borrow limit.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberPending  MemberStatus = "pending"
	MemberInactive MemberStatus = "inactive"
)

// BorrowLimitFor returns the borrow limit implied by a member status:
// active members may hold 10 books, pending and inactive members 5.
func BorrowLimitFor(status MemberStatus) int {
	if status == MemberActive {
		return 10
	}
	return 5
}

// Book categories, matching the catalog taxonomy.
const (
	CategoryFiction    = "fiction"
	CategoryNonFiction = "non_fiction"
	CategoryScience    = "science"
	CategoryHistory    = "history"
	CategoryBiography  = "biography"
	CategoryTechnology = "technology"
	CategoryOther      = "other"
)

// Librarian departments and positions.
const (
	DeptCirculation    = "circulation"
	DeptReference      = "reference"
	DeptCataloging     = "cataloging"
	DeptAdministration = "administration"

	PositionAssistant       = "assistant"
	PositionLibrarian       = "librarian"
	PositionSeniorLibrarian = "senior_librarian"
	PositionHeadLibrarian   = "head_librarian"
)

// DefaultFinePerDay is the per-day fine rate (RM) applied to new records
// unless overridden by configuration.
const DefaultFinePerDay = 5.0

// Book represents a title in the catalog. AvailableCopies is derived from
// the set of borrowing records at read time and is never stored.
type Book struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	Publisher       string `json:"publisher,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	Active          bool   `json:"active"`
}

// Member represents a registered library member. MaxBorrowLimit is derived
// from Status via BorrowLimitFor.
type Member struct {
	ID             int64        `json:"id"`
	Sequence       string       `json:"sequence"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone"`
	JoinDate       time.Time    `json:"join_date"`
	Status         MemberStatus `json:"status"`
	MaxBorrowLimit int          `json:"max_borrow_limit"`
}

// MemberSummary aggregates a member's borrowing history. Every field is
// recomputed from the borrowing records that reference the member.
//
// CurrentBorrowed counts records with status exactly "borrowed".
// Intentional: a member's limit frees up once a loan is flagged overdue,
// while the copy stays unavailable until it is actually returned.
type MemberSummary struct {
	CurrentBorrowed int     `json:"current_borrowed"`
	TotalBorrowed   int     `json:"total_borrowed"`
	OverdueCount    int     `json:"overdue_count"`
	ReturnedCount   int     `json:"returned_count"`
	TotalFines      float64 `json:"total_fines"`
}

// Librarian represents a staff member who processes borrowing transactions.
type Librarian struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	EmployeeID   string    `json:"employee_id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	HireDate     time.Time `json:"hire_date"`
	Department   string    `json:"department"`
	Position     string    `json:"position"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"` // Don't serialize password hash
}

// DisplayName formats a librarian as "Name (EMPID)".
func (l *Librarian) DisplayName() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.EmployeeID)
}

// YearsOfService computes service length from the hire date, rounded to
// one decimal place.
func (l *Librarian) YearsOfService(today time.Time) float64 {
	days := DaysBetween(l.HireDate, today)
	if days <= 0 {
		return 0
	}
	return math.Round(float64(days)/365.25*10) / 10
}

// BorrowingRecord is one instance of a member holding a copy of a book for
// a bounded period. MemberName and BookTitle are joined in for display.
type BorrowingRecord struct {
	ID                 int64        `json:"id"`
	Sequence           string       `json:"sequence"`
	MemberID           int64        `json:"member_id"`
	MemberName         string       `json:"member_name"`
	BookID             int64        `json:"book_id"`
	BookTitle          string       `json:"book_title"`
	LibrarianID        int64        `json:"librarian_id"`
	BorrowDate         time.Time    `json:"borrow_date"`
	ExpectedReturnDate time.Time    `json:"expected_return_date"`
	ActualReturnDate   time.Time    `json:"actual_return_date,omitempty"` // zero until returned
	Status             RecordStatus `json:"status"`
	FineAmount         float64      `json:"fine_amount"`
	FinePerDay         float64      `json:"fine_per_day"`
	Notes              string       `json:"notes,omitempty"`
}

// DisplayName formats a record as "Member - Title (Status)".
func (r *BorrowingRecord) DisplayName() string {
	return fmt.Sprintf("%s - %s (%s)", r.MemberName, r.BookTitle, titleCase(string(r.Status)))
}

// DaysOverdue derives how many days late the record is relative to today.
// Open records measure against today, returned records against the actual
// return date; never negative.
func (r *BorrowingRecord) DaysOverdue(today time.Time) int {
	switch r.Status {
	case StatusBorrowed, StatusOverdue:
		return maxInt(0, DaysBetween(r.ExpectedReturnDate, today))
	case StatusReturned:
		if r.ActualReturnDate.IsZero() {
			return 0
		}
		return maxInt(0, DaysBetween(r.ExpectedReturnDate, r.ActualReturnDate))
	default:
		return 0
	}
}

// Notification is the structured result payload consumed by the UI layer.
type Notification struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Notification severities.
const (
	SeveritySuccess = "success"
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ---------------------------------------------------------------------------
// Date helpers
// ---------------------------------------------------------------------------

// DateLayout is the wire and storage format for all dates.
const DateLayout = "2006-01-02"

// Date builds a calendar date (UTC midnight).
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date (UTC midnight).
func Today() time.Time {
	return truncateToDay(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD. Zero dates render empty.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DaysBetween returns the whole calendar days from `from` to `to`;
// negative when `to` precedes `from`.
func DaysBetween(from, to time.Time) int {
	return int(truncateToDay(to).Sub(truncateToDay(from)).Hours() / 24)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
