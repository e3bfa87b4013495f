package library

import (
	"database/sql"
	"time"
)

// RecordFilter narrows ListRecords. Zero fields match everything.
type RecordFilter struct {
	MemberID    int64
	BookID      int64
	LibrarianID int64
	Status      RecordStatus
}

const recordColumns = `r.id, r.sequence, r.member_id, m.name, r.book_id, b.title,
    r.librarian_id, r.borrow_date, r.expected_return_date, r.actual_return_date,
    r.status, r.fine_amount, r.fine_per_day, r.notes`

const recordJoins = ` FROM borrowing_records r
    JOIN members m ON m.id = r.member_id
    JOIN books b ON b.id = r.book_id`

func scanRecord(row interface{ Scan(...any) error }) (*BorrowingRecord, error) {
	var r BorrowingRecord
	var borrowed, expected string
	var actual sql.NullString
	err := row.Scan(&r.ID, &r.Sequence, &r.MemberID, &r.MemberName, &r.BookID, &r.BookTitle,
		&r.LibrarianID, &borrowed, &expected, &actual,
		&r.Status, &r.FineAmount, &r.FinePerDay, &r.Notes)
	if err != nil {
		return nil, err
	}
	if r.BorrowDate, err = ParseDate(borrowed); err != nil {
		return nil, err
	}
	if r.ExpectedReturnDate, err = ParseDate(expected); err != nil {
		return nil, err
	}
	if actual.Valid && actual.String != "" {
		if r.ActualReturnDate, err = ParseDate(actual.String); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// BorrowBook creates a borrowing record inside one transaction:
// date ordering is validated, the member's committed borrowed count is
// checked against their limit strictly before the insert, and the book
// must have at least one copy free. A record whose expected return date is
// already past starts out overdue instead of borrowed.
func (d *Database) BorrowBook(memberID, bookID, librarianID int64, borrowDate, expectedReturn, today time.Time, finePerDay float64) (*BorrowingRecord, error) {
	borrowDate = truncateToDay(borrowDate)
	expectedReturn = truncateToDay(expectedReturn)
	today = truncateToDay(today)

	if !expectedReturn.After(borrowDate) {
		return nil, validationErr("expected return date must be after the borrow date")
	}
	if finePerDay <= 0 {
		finePerDay = DefaultFinePerDay
	}

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	member, err := scanMember(tx.QueryRow(
		`SELECT id,sequence,name,email,phone,join_date,status FROM members WHERE id=?`, memberID))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("member %d does not exist", memberID)
	}
	if err != nil {
		return nil, err
	}

	// Limit check against the committed count, before the insert.
	borrowed, err := borrowedCount(tx, memberID)
	if err != nil {
		return nil, err
	}
	if borrowed >= member.MaxBorrowLimit {
		return nil, constraintErr("member %q has reached the borrowing limit of %d books",
			member.Name, member.MaxBorrowLimit)
	}

	var title string
	err = tx.QueryRow(`SELECT title FROM books WHERE id=?`, bookID).Scan(&title)
	if err == sql.ErrNoRows {
		return nil, notFoundErr("book %d does not exist", bookID)
	}
	if err != nil {
		return nil, err
	}
	avail, err := availableCopies(tx, bookID)
	if err != nil {
		return nil, err
	}
	if avail < 1 {
		return nil, unavailableErr("book %q is not available for borrowing", title)
	}

	var librarianExists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM librarians WHERE id=?)`, librarianID).Scan(&librarianExists); err != nil {
		return nil, err
	}
	if !librarianExists {
		return nil, notFoundErr("librarian %d does not exist", librarianID)
	}

	seq, err := nextSequence(tx, seqRecord)
	if err != nil {
		return nil, err
	}

	status := StatusBorrowed
	if expectedReturn.Before(today) {
		status = StatusOverdue
	}

	res, err := tx.Exec(`INSERT INTO borrowing_records
        (sequence,member_id,book_id,librarian_id,borrow_date,expected_return_date,status,fine_per_day)
        VALUES(?,?,?,?,?,?,?,?)`,
		seq, memberID, bookID, librarianID,
		FormatDate(borrowDate), FormatDate(expectedReturn), status, finePerDay)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &BorrowingRecord{
		ID:                 id,
		Sequence:           seq,
		MemberID:           memberID,
		MemberName:         member.Name,
		BookID:             bookID,
		BookTitle:          title,
		LibrarianID:        librarianID,
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expectedReturn,
		Status:             status,
		FinePerDay:         finePerDay,
	}, nil
}

// GetRecord fetches a borrowing record with member and book names joined.
func (d *Database) GetRecord(id int64) (*BorrowingRecord, error) {
	r, err := scanRecord(d.db.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.id=?`, id))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("borrowing record %d does not exist", id)
	}
	return r, err
}

// GetRecordBySequence fetches a record by sequence number (e.g. BRW00001).
func (d *Database) GetRecordBySequence(seq string) (*BorrowingRecord, error) {
	r, err := scanRecord(d.db.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.sequence=?`, seq))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("borrowing record %s does not exist", seq)
	}
	return r, err
}

// ListRecords returns matching records, most recent borrow date first.
func (d *Database) ListRecords(f RecordFilter) ([]*BorrowingRecord, error) {
	query := `SELECT ` + recordColumns + recordJoins + ` WHERE 1=1`
	var args []any
	if f.MemberID != 0 {
		query += ` AND r.member_id=?`
		args = append(args, f.MemberID)
	}
	if f.BookID != 0 {
		query += ` AND r.book_id=?`
		args = append(args, f.BookID)
	}
	if f.LibrarianID != 0 {
		query += ` AND r.librarian_id=?`
		args = append(args, f.LibrarianID)
	}
	if f.Status != "" {
		query += ` AND r.status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY r.borrow_date DESC, r.id DESC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*BorrowingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ReturnBook closes a record: the fine is days-overdue times the
// per-record rate (zero when returned on time), the actual return date is
// stamped, and the status becomes returned.
func (d *Database) ReturnBook(recordID int64, today time.Time) (*BorrowingRecord, error) {
	today = truncateToDay(today)

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.id=?`, recordID))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("borrowing record %d does not exist", recordID)
	}
	if err != nil {
		return nil, err
	}
	if r.Status == StatusReturned {
		return nil, alreadyReturnedErr()
	}
	if today.Before(r.BorrowDate) {
		return nil, validationErr("actual return date cannot be before the borrow date")
	}

	daysOverdue := maxInt(0, DaysBetween(r.ExpectedReturnDate, today))
	fine := float64(daysOverdue) * r.FinePerDay

	if _, err := tx.Exec(`UPDATE borrowing_records
        SET actual_return_date=?, status=?, fine_amount=? WHERE id=?`,
		FormatDate(today), StatusReturned, fine, recordID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.ActualReturnDate = today
	r.Status = StatusReturned
	r.FineAmount = fine
	return r, nil
}

// ExtendDueDate pushes back the expected return date. Only records still
// in the borrowed state can be extended.
func (d *Database) ExtendDueDate(recordID int64, newExpected time.Time) (*BorrowingRecord, error) {
	newExpected = truncateToDay(newExpected)

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.id=?`, recordID))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("borrowing record %d does not exist", recordID)
	}
	if err != nil {
		return nil, err
	}
	if r.Status != StatusBorrowed {
		return nil, validationErr("can only extend due date for borrowed books")
	}
	if !newExpected.After(r.BorrowDate) {
		return nil, validationErr("expected return date must be after the borrow date")
	}

	if _, err := tx.Exec(`UPDATE borrowing_records SET expected_return_date=? WHERE id=?`,
		FormatDate(newExpected), recordID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.ExpectedReturnDate = newExpected
	return r, nil
}

// RescheduleRecord rewrites a record's borrow and expected return dates,
// re-validating the ordering invariants against any actual return date.
func (d *Database) RescheduleRecord(recordID int64, borrowDate, expectedReturn time.Time) (*BorrowingRecord, error) {
	borrowDate = truncateToDay(borrowDate)
	expectedReturn = truncateToDay(expectedReturn)

	if !expectedReturn.After(borrowDate) {
		return nil, validationErr("expected return date must be after the borrow date")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.id=?`, recordID))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("borrowing record %d does not exist", recordID)
	}
	if err != nil {
		return nil, err
	}
	if !r.ActualReturnDate.IsZero() && r.ActualReturnDate.Before(borrowDate) {
		return nil, validationErr("actual return date cannot be before the borrow date")
	}

	if _, err := tx.Exec(`UPDATE borrowing_records SET borrow_date=?, expected_return_date=? WHERE id=?`,
		FormatDate(borrowDate), FormatDate(expectedReturn), recordID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.BorrowDate = borrowDate
	r.ExpectedReturnDate = expectedReturn
	return r, nil
}

// SetRecordStatus mutates a record's status directly. Returned is a
// terminal state; records cannot leave it.
func (d *Database) SetRecordStatus(recordID int64, status RecordStatus) error {
	if status != StatusBorrowed && status != StatusOverdue && status != StatusReturned {
		return validationErr("invalid record status %q", status)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current RecordStatus
	err = tx.QueryRow(`SELECT status FROM borrowing_records WHERE id=?`, recordID).Scan(&current)
	if err == sql.ErrNoRows {
		return notFoundErr("borrowing record %d does not exist", recordID)
	}
	if err != nil {
		return err
	}
	if current == StatusReturned && status != StatusReturned {
		return validationErr("a returned record cannot change status")
	}

	if _, err := tx.Exec(`UPDATE borrowing_records SET status=? WHERE id=?`, status, recordID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetRecordNotes replaces a record's free-text notes.
func (d *Database) SetRecordNotes(recordID int64, notes string) error {
	res, err := d.db.Exec(`UPDATE borrowing_records SET notes=? WHERE id=?`, notes, recordID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("borrowing record %d does not exist", recordID)
	}
	return nil
}

// DeleteRecord removes a borrowing record. Records of unreturned books may
// never be deleted; the book must be returned first.
func (d *Database) DeleteRecord(recordID int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRow(`SELECT `+recordColumns+recordJoins+` WHERE r.id=?`, recordID))
	if err == sql.ErrNoRows {
		return notFoundErr("borrowing record %d does not exist", recordID)
	}
	if err != nil {
		return err
	}
	if r.Status == StatusBorrowed || r.Status == StatusOverdue {
		return blockedErr("cannot delete borrowing record %q for %q: the book has not been returned yet (status: %s); please return the book first",
			r.Sequence, r.MemberName+" - "+r.BookTitle, r.Status)
	}

	if _, err := tx.Exec(`DELETE FROM borrowing_records WHERE id=?`, recordID); err != nil {
		return err
	}
	return tx.Commit()
}
