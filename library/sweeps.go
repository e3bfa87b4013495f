package library

import (
	"fmt"
	"time"
)

// FineSweepReport summarizes one run of the daily fine sweep. Updated
// lists every record the sweep wrote, in the order the writes happened.
type FineSweepReport struct {
	RecordsUpdated int              `json:"records_updated"`
	TotalFines     float64          `json:"total_fines"`
	Updated        []FineSweepEntry `json:"updated,omitempty"`
}

// FineSweepEntry is one record touched by the fine sweep.
type FineSweepEntry struct {
	Sequence   string  `json:"sequence"`
	MemberName string  `json:"member_name"`
	BookTitle  string  `json:"book_title"`
	Fine       float64 `json:"fine"`
}

// MemberReviewReport summarizes the weekly member status review. The
// review never mutates anything.
type MemberReviewReport struct {
	ActiveWithOverdue int      `json:"active_with_overdue"`
	InactiveIdle      int      `json:"inactive_idle"`
	Pending           int      `json:"pending"`
	TotalMembers      int      `json:"total_members"`
	Flagged           []string `json:"flagged,omitempty"` // members with 3+ overdue books
}

// dueRecord is the slice of a record the sweeps need.
type dueRecord struct {
	id         int64
	sequence   string
	memberName string
	bookTitle  string
	expected   time.Time
	finePerDay float64
	fineAmount float64
}

// pastDueRecords loads records in the given status whose expected return
// date is before today. Results are materialized up front so each
// follow-up update commits independently.
func (d *Database) pastDueRecords(status RecordStatus, today time.Time) ([]dueRecord, error) {
	rows, err := d.db.Query(`
        SELECT r.id, r.sequence, m.name, b.title, r.expected_return_date, r.fine_per_day, r.fine_amount
        FROM borrowing_records r
        JOIN members m ON m.id = r.member_id
        JOIN books b ON b.id = r.book_id
        WHERE r.status=? AND r.expected_return_date < ?
        ORDER BY r.expected_return_date`, status, FormatDate(today))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []dueRecord
	for rows.Next() {
		var r dueRecord
		var expected string
		if err := rows.Scan(&r.id, &r.sequence, &r.memberName, &r.bookTitle, &expected, &r.finePerDay, &r.fineAmount); err != nil {
			return nil, err
		}
		if r.expected, err = ParseDate(expected); err != nil {
			return nil, err
		}
		due = append(due, r)
	}
	return due, rows.Err()
}

// markOverdue transitions one past-due record from borrowed to overdue.
// When assessFine is set the fine is recomputed in the same write; the
// lighter sync sweep flips status only. Both sweep entry points share this
// transition.
func (d *Database) markOverdue(r dueRecord, today time.Time, assessFine bool) (fine float64, err error) {
	if assessFine {
		days := maxInt(0, DaysBetween(r.expected, today))
		fine = float64(days) * r.finePerDay
		_, err = d.db.Exec(`UPDATE borrowing_records SET status=?, fine_amount=? WHERE id=?`,
			StatusOverdue, fine, r.id)
		return fine, err
	}
	_, err = d.db.Exec(`UPDATE borrowing_records SET status=? WHERE id=?`, StatusOverdue, r.id)
	return 0, err
}

// FineSweep runs the daily fine pass: past-due borrowed records transition
// to overdue with their fine assessed, and records already overdue get
// their fine refreshed, written only when the amount changed. Re-running
// the sweep on already-correct records is a no-op, and every record's
// update commits on its own before the next record is touched.
func (d *Database) FineSweep(today time.Time) (FineSweepReport, error) {
	today = truncateToDay(today)
	var report FineSweepReport

	newlyOverdue, err := d.pastDueRecords(StatusBorrowed, today)
	if err != nil {
		return report, fmt.Errorf("select past-due borrowed records: %w", err)
	}
	for _, r := range newlyOverdue {
		fine, err := d.markOverdue(r, today, true)
		if err != nil {
			return report, fmt.Errorf("update record %s: %w", r.sequence, err)
		}
		report.RecordsUpdated++
		report.TotalFines += fine
		report.Updated = append(report.Updated, FineSweepEntry{
			Sequence: r.sequence, MemberName: r.memberName, BookTitle: r.bookTitle, Fine: fine,
		})
	}

	existing, err := d.pastDueRecords(StatusOverdue, today)
	if err != nil {
		return report, fmt.Errorf("select overdue records: %w", err)
	}
	for _, r := range existing {
		days := maxInt(0, DaysBetween(r.expected, today))
		fine := float64(days) * r.finePerDay
		if fine == r.fineAmount {
			continue
		}
		if _, err := d.db.Exec(`UPDATE borrowing_records SET fine_amount=? WHERE id=?`, fine, r.id); err != nil {
			return report, fmt.Errorf("refresh fine for record %s: %w", r.sequence, err)
		}
		report.RecordsUpdated++
		report.TotalFines += fine
		report.Updated = append(report.Updated, FineSweepEntry{
			Sequence: r.sequence, MemberName: r.memberName, BookTitle: r.bookTitle, Fine: fine,
		})
	}

	return report, nil
}

// SyncOverdue is the lighter sweep: it only flips past-due borrowed
// records to overdue, without touching fines.
func (d *Database) SyncOverdue(today time.Time) (int, error) {
	today = truncateToDay(today)

	due, err := d.pastDueRecords(StatusBorrowed, today)
	if err != nil {
		return 0, fmt.Errorf("select past-due borrowed records: %w", err)
	}
	for _, r := range due {
		if _, err := d.markOverdue(r, today, false); err != nil {
			return 0, fmt.Errorf("update record %s: %w", r.sequence, err)
		}
	}
	return len(due), nil
}

// MemberStatusReview gathers the weekly reporting counts: active members
// with overdue books, inactive members holding nothing, pending members,
// and the names of members with 3 or more overdue books.
func (d *Database) MemberStatusReview() (MemberReviewReport, error) {
	var report MemberReviewReport

	err := d.db.QueryRow(`
        SELECT COUNT(DISTINCT m.id) FROM members m
        JOIN borrowing_records r ON r.member_id = m.id AND r.status='overdue'
        WHERE m.status='active'`).Scan(&report.ActiveWithOverdue)
	if err != nil {
		return report, fmt.Errorf("count active members with overdue books: %w", err)
	}

	err = d.db.QueryRow(`
        SELECT COUNT(*) FROM members m
        WHERE m.status='inactive' AND NOT EXISTS (
            SELECT 1 FROM borrowing_records r WHERE r.member_id=m.id AND r.status='borrowed'
        )`).Scan(&report.InactiveIdle)
	if err != nil {
		return report, fmt.Errorf("count idle inactive members: %w", err)
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM members WHERE status='pending'`).Scan(&report.Pending)
	if err != nil {
		return report, fmt.Errorf("count pending members: %w", err)
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&report.TotalMembers)
	if err != nil {
		return report, fmt.Errorf("count members: %w", err)
	}

	rows, err := d.db.Query(`
        SELECT m.name FROM members m
        JOIN borrowing_records r ON r.member_id = m.id AND r.status='overdue'
        WHERE m.status='active'
        GROUP BY m.id HAVING COUNT(*) >= 3
        ORDER BY m.name`)
	if err != nil {
		return report, fmt.Errorf("flag members with repeated overdues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return report, err
		}
		report.Flagged = append(report.Flagged, name)
	}
	return report, rows.Err()
}
