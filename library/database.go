package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database provides high-level helpers around a SQLite connection.
//
// Aggregates (available copies, borrowed counts, fine totals) are computed
// by queries over borrowing_records at read time; nothing below maintains a
// counter column that could drift from the record set.
type Database struct {
	db *sql.DB

	summaryStmt   *sql.Stmt
	availableStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.summaryStmt != nil {
		d.summaryStmt.Close()
	}
	if d.availableStmt != nil {
		d.availableStmt.Close()
	}
	return d.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx so derived-state helpers
// can run inside or outside a transaction.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sequences (
            name TEXT PRIMARY KEY,
            next INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL UNIQUE,
            category TEXT NOT NULL DEFAULT 'other',
            publisher TEXT NOT NULL DEFAULT '',
            publication_year INTEGER NOT NULL DEFAULT 0,
            total_copies INTEGER NOT NULL DEFAULT 1 CHECK (total_copies >= 0),
            active BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sequence TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            email TEXT NOT NULL,
            phone TEXT NOT NULL,
            join_date TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active'
        );`,
		`CREATE TABLE IF NOT EXISTS librarians (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            employee_id TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            hire_date TEXT NOT NULL,
            department TEXT NOT NULL DEFAULT 'circulation',
            position TEXT NOT NULL DEFAULT 'librarian',
            active BOOLEAN NOT NULL DEFAULT 1,
            password_hash TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS borrowing_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sequence TEXT NOT NULL UNIQUE,
            member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE RESTRICT,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE RESTRICT,
            librarian_id INTEGER NOT NULL REFERENCES librarians(id) ON DELETE RESTRICT,
            borrow_date TEXT NOT NULL,
            expected_return_date TEXT NOT NULL,
            actual_return_date TEXT,
            status TEXT NOT NULL DEFAULT 'borrowed',
            fine_amount REAL NOT NULL DEFAULT 0.0,
            fine_per_day REAL NOT NULL DEFAULT 5.0,
            notes TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE INDEX IF NOT EXISTS idx_records_member ON borrowing_records(member_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_records_book ON borrowing_records(book_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_records_due ON borrowing_records(status, expected_return_date);`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.summaryStmt, err = d.db.Prepare(`
        SELECT
            COUNT(*) FILTER (WHERE status='borrowed'),
            COUNT(*),
            COUNT(*) FILTER (WHERE status='overdue'),
            COUNT(*) FILTER (WHERE status='returned'),
            COALESCE(SUM(fine_amount), 0)
        FROM borrowing_records WHERE member_id=?`); err != nil {
		return err
	}
	if d.availableStmt, err = d.db.Prepare(`
        SELECT MAX(0, b.total_copies - (
            SELECT COUNT(*) FROM borrowing_records r
            WHERE r.book_id=b.id AND r.status IN ('borrowed','overdue')
        )) FROM books b WHERE b.id=?`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sequence generator
// ---------------------------------------------------------------------------

// Sequence prefixes per record type.
const (
	seqMember = "member"
	seqRecord = "borrowing"
)

var seqPrefixes = map[string]string{
	seqMember: "MEM",
	seqRecord: "BRW",
}

// nextSequence hands out the next human-readable sequence number for a
// record type, e.g. MEM00001 or BRW00042. Monotonic and unique per type;
// must run inside the transaction that inserts the entity.
func nextSequence(tx *sql.Tx, recordType string) (string, error) {
	prefix, ok := seqPrefixes[recordType]
	if !ok {
		return "", fmt.Errorf("unknown sequence type %q", recordType)
	}
	var n int64
	err := tx.QueryRow(`
        INSERT INTO sequences(name, next) VALUES(?, 2)
        ON CONFLICT(name) DO UPDATE SET next = next + 1
        RETURNING next - 1`, recordType).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("next sequence for %s: %w", recordType, err)
	}
	return fmt.Sprintf("%s%05d", prefix, n), nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const bookColumns = `b.id, b.title, b.author, b.isbn, b.category, b.publisher,
    b.publication_year, b.total_copies, b.active,
    MAX(0, b.total_copies - (
        SELECT COUNT(*) FROM borrowing_records r
        WHERE r.book_id=b.id AND r.status IN ('borrowed','overdue')
    ))`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.Publisher,
		&b.PublicationYear, &b.TotalCopies, &b.Active, &b.AvailableCopies)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AddBook inserts a catalog entry. ISBN must be globally unique; a clash
// fails naming the conflicting title and author.
func (d *Database) AddBook(b *Book) (int64, error) {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return 0, validationErr("book title and author are required")
	}
	if strings.TrimSpace(b.ISBN) == "" {
		return 0, validationErr("book ISBN is required")
	}
	if b.TotalCopies < 0 {
		return 0, validationErr("total copies cannot be negative")
	}
	if b.Category == "" {
		b.Category = CategoryOther
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := checkISBNUnique(tx, b.ISBN, 0); err != nil {
		return 0, err
	}

	res, err := tx.Exec(`INSERT INTO books(title,author,isbn,category,publisher,publication_year,total_copies,active)
        VALUES(?,?,?,?,?,?,?,1)`,
		b.Title, b.Author, b.ISBN, b.Category, b.Publisher, b.PublicationYear, b.TotalCopies)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func checkISBNUnique(q querier, isbn string, excludeID int64) error {
	var title, author string
	err := q.QueryRow(`SELECT title, author FROM books WHERE isbn=? AND id!=?`, isbn, excludeID).
		Scan(&title, &author)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return constraintErr("a book with ISBN %s already exists: %q by %s", isbn, title, author)
}

// GetBook fetches a single book with its derived availability.
func (d *Database) GetBook(id int64) (*Book, error) {
	b, err := scanBook(d.db.QueryRow(`SELECT `+bookColumns+` FROM books b WHERE b.id=?`, id))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("book %d does not exist", id)
	}
	return b, err
}

// GetAllBooks returns the catalog with derived availability, active titles
// first.
func (d *Database) GetAllBooks() ([]*Book, error) {
	rows, err := d.db.Query(`SELECT ` + bookColumns + ` FROM books b ORDER BY b.active DESC, b.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook rewrites a book's catalog fields, re-validating ISBN
// uniqueness against every other title.
func (d *Database) UpdateBook(b *Book) error {
	if strings.TrimSpace(b.ISBN) == "" {
		return validationErr("book ISBN is required")
	}
	if b.TotalCopies < 0 {
		return validationErr("total copies cannot be negative")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkISBNUnique(tx, b.ISBN, b.ID); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE books SET title=?, author=?, isbn=?, category=?, publisher=?,
        publication_year=?, total_copies=?, active=? WHERE id=?`,
		b.Title, b.Author, b.ISBN, b.Category, b.Publisher, b.PublicationYear,
		b.TotalCopies, b.Active, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("book %d does not exist", b.ID)
	}
	return tx.Commit()
}

// SetTotalCopies adjusts the copy pool; availability is re-derived on the
// next read.
func (d *Database) SetTotalCopies(id int64, total int) error {
	if total < 0 {
		return validationErr("total copies cannot be negative")
	}
	res, err := d.db.Exec(`UPDATE books SET total_copies=? WHERE id=?`, total, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("book %d does not exist", id)
	}
	return err
}

// DeleteBook removes a catalog entry. Books referenced by any borrowing
// record cannot be deleted.
func (d *Database) DeleteBook(id int64) error {
	var refs int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM borrowing_records WHERE book_id=?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return constraintErr("cannot delete book %d: %d borrowing record(s) reference it", id, refs)
	}
	res, err := d.db.Exec(`DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("book %d does not exist", id)
	}
	return nil
}

// availableCopies derives a book's availability inside a transaction.
func availableCopies(q querier, bookID int64) (int, error) {
	var avail int
	err := q.QueryRow(`SELECT MAX(0, b.total_copies - (
            SELECT COUNT(*) FROM borrowing_records r
            WHERE r.book_id=b.id AND r.status IN ('borrowed','overdue')
        )) FROM books b WHERE b.id=?`, bookID).Scan(&avail)
	if err == sql.ErrNoRows {
		return 0, notFoundErr("book %d does not exist", bookID)
	}
	return avail, err
}

// AvailableCopies derives a book's availability outside a transaction.
func (d *Database) AvailableCopies(bookID int64) (int, error) {
	var avail int
	err := d.availableStmt.QueryRow(bookID).Scan(&avail)
	if err == sql.ErrNoRows {
		return 0, notFoundErr("book %d does not exist", bookID)
	}
	return avail, err
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var m Member
	var joined string
	err := row.Scan(&m.ID, &m.Sequence, &m.Name, &m.Email, &m.Phone, &joined, &m.Status)
	if err != nil {
		return nil, err
	}
	if m.JoinDate, err = ParseDate(joined); err != nil {
		return nil, fmt.Errorf("member %d: %w", m.ID, err)
	}
	m.MaxBorrowLimit = BorrowLimitFor(m.Status)
	return &m, nil
}

// AddMember registers a member, assigns the next member sequence number,
// and enforces phone uniqueness among non-inactive members.
func (d *Database) AddMember(m *Member) (int64, error) {
	if strings.TrimSpace(m.Name) == "" {
		return 0, validationErr("member name is required")
	}
	if strings.TrimSpace(m.Email) == "" {
		return 0, validationErr("member email is required")
	}
	if strings.TrimSpace(m.Phone) == "" {
		return 0, validationErr("member phone number is required")
	}
	if m.Status == "" {
		m.Status = MemberActive
	}
	if !validMemberStatus(m.Status) {
		return 0, validationErr("invalid member status %q", m.Status)
	}
	if m.JoinDate.IsZero() {
		m.JoinDate = Today()
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := checkPhoneUnique(tx, m.Phone, 0); err != nil {
		return 0, err
	}

	seq, err := nextSequence(tx, seqMember)
	if err != nil {
		return 0, err
	}
	m.Sequence = seq
	m.MaxBorrowLimit = BorrowLimitFor(m.Status)

	res, err := tx.Exec(`INSERT INTO members(sequence,name,email,phone,join_date,status)
        VALUES(?,?,?,?,?,?)`,
		m.Sequence, m.Name, m.Email, m.Phone, FormatDate(m.JoinDate), m.Status)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// checkPhoneUnique rejects a phone number already held by another member
// whose status is not inactive. Lapsed members may share numbers with
// active ones.
func checkPhoneUnique(q querier, phone string, excludeID int64) error {
	var name, seq string
	err := q.QueryRow(`SELECT name, sequence FROM members
        WHERE phone=? AND status!='inactive' AND id!=? LIMIT 1`, phone, excludeID).
		Scan(&name, &seq)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	return constraintErr("phone number %q is already registered to member %s (%s)", phone, name, seq)
}

func validMemberStatus(s MemberStatus) bool {
	return s == MemberActive || s == MemberPending || s == MemberInactive
}

// GetMember fetches a single member; the borrow limit is derived from the
// stored status.
func (d *Database) GetMember(id int64) (*Member, error) {
	m, err := scanMember(d.db.QueryRow(
		`SELECT id,sequence,name,email,phone,join_date,status FROM members WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("member %d does not exist", id)
	}
	return m, err
}

// GetMemberBySequence fetches a member by sequence number (e.g. MEM00001).
func (d *Database) GetMemberBySequence(seq string) (*Member, error) {
	m, err := scanMember(d.db.QueryRow(
		`SELECT id,sequence,name,email,phone,join_date,status FROM members WHERE sequence=?`, seq))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("member %s does not exist", seq)
	}
	return m, err
}

// GetAllMembers returns all members ordered by sequence.
func (d *Database) GetAllMembers() ([]*Member, error) {
	rows, err := d.db.Query(`SELECT id,sequence,name,email,phone,join_date,status FROM members ORDER BY sequence`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetMemberStatus transitions a member between active, pending, and
// inactive. A member holding more than 5 borrowed books cannot be demoted
// to pending or inactive; the limit change takes effect immediately.
func (d *Database) SetMemberStatus(id int64, status MemberStatus) (*Member, error) {
	if !validMemberStatus(status) {
		return nil, validationErr("invalid member status %q", status)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := scanMember(tx.QueryRow(
		`SELECT id,sequence,name,email,phone,join_date,status FROM members WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("member %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}

	if status == MemberInactive || status == MemberPending {
		borrowed, err := borrowedCount(tx, id)
		if err != nil {
			return nil, err
		}
		if borrowed > 5 {
			return nil, constraintErr(
				"cannot change member %q to %s status: member currently has %d borrowed books, but %s members can only have maximum 5; %d book(s) must be returned first",
				m.Name, status, borrowed, status, borrowed-5)
		}
	}

	if _, err := tx.Exec(`UPDATE members SET status=? WHERE id=?`, status, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	m.Status = status
	m.MaxBorrowLimit = BorrowLimitFor(status)
	return m, nil
}

// UpdateMemberContact rewrites a member's email and phone, re-validating
// phone uniqueness among non-inactive members.
func (d *Database) UpdateMemberContact(id int64, email, phone string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(phone) == "" {
		return validationErr("member email and phone number are required")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkPhoneUnique(tx, phone, id); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE members SET email=?, phone=? WHERE id=?`, email, phone, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("member %d does not exist", id)
	}
	return tx.Commit()
}

// DeleteMember removes a member. Members referenced by any borrowing
// record cannot be deleted.
func (d *Database) DeleteMember(id int64) error {
	var refs int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM borrowing_records WHERE member_id=?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return constraintErr("cannot delete member %d: %d borrowing record(s) reference it", id, refs)
	}
	res, err := d.db.Exec(`DELETE FROM members WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("member %d does not exist", id)
	}
	return nil
}

// borrowedCount counts records with status exactly 'borrowed'. Overdue
// records do not count against the member's limit.
func borrowedCount(q querier, memberID int64) (int, error) {
	var n int
	err := q.QueryRow(`SELECT COUNT(*) FROM borrowing_records WHERE member_id=? AND status='borrowed'`,
		memberID).Scan(&n)
	return n, err
}

// MemberSummary recomputes a member's aggregate counters from their
// borrowing records.
func (d *Database) MemberSummary(memberID int64) (*MemberSummary, error) {
	var s MemberSummary
	err := d.summaryStmt.QueryRow(memberID).Scan(
		&s.CurrentBorrowed, &s.TotalBorrowed, &s.OverdueCount, &s.ReturnedCount, &s.TotalFines)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ---------------------------------------------------------------------------
// Librarians
// ---------------------------------------------------------------------------

var (
	employeeIDPattern = regexp.MustCompile(`^LIB\d{3,}$`)
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

func scanLibrarian(row interface{ Scan(...any) error }) (*Librarian, error) {
	var l Librarian
	var hired string
	err := row.Scan(&l.ID, &l.Name, &l.EmployeeID, &l.Email, &l.Phone, &hired,
		&l.Department, &l.Position, &l.Active, &l.PasswordHash)
	if err != nil {
		return nil, err
	}
	if l.HireDate, err = ParseDate(hired); err != nil {
		return nil, fmt.Errorf("librarian %d: %w", l.ID, err)
	}
	return &l, nil
}

const librarianColumns = `id,name,employee_id,email,phone,hire_date,department,position,active,password_hash`

// AddLibrarian registers a staff member. Employee IDs follow the LIBxxx
// format and are unique; hire dates cannot be in the future.
func (d *Database) AddLibrarian(l *Librarian, today time.Time) (int64, error) {
	if strings.TrimSpace(l.Name) == "" {
		return 0, validationErr("librarian name is required")
	}
	if !employeeIDPattern.MatchString(l.EmployeeID) {
		return 0, validationErr("employee ID %q must follow the format 'LIBxxx' where xxx is a number (e.g. LIB001)", l.EmployeeID)
	}
	if l.Email != "" && !emailPattern.MatchString(l.Email) {
		return 0, validationErr("%q is not a valid email address", l.Email)
	}
	if l.HireDate.IsZero() {
		l.HireDate = today
	}
	if DaysBetween(today, l.HireDate) > 0 {
		return 0, validationErr("hire date cannot be in the future")
	}
	if l.Department == "" {
		l.Department = DeptCirculation
	}
	if l.Position == "" {
		l.Position = PositionLibrarian
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT name FROM librarians WHERE employee_id=?`, l.EmployeeID).Scan(&existing)
	if err == nil {
		return 0, constraintErr("employee ID %s is already registered to %s", l.EmployeeID, existing)
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.Exec(`INSERT INTO librarians(name,employee_id,email,phone,hire_date,department,position,active,password_hash)
        VALUES(?,?,?,?,?,?,?,1,?)`,
		l.Name, l.EmployeeID, l.Email, l.Phone, FormatDate(l.HireDate), l.Department, l.Position, l.PasswordHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetLibrarian fetches a single librarian.
func (d *Database) GetLibrarian(id int64) (*Librarian, error) {
	l, err := scanLibrarian(d.db.QueryRow(`SELECT `+librarianColumns+` FROM librarians WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("librarian %d does not exist", id)
	}
	return l, err
}

// GetLibrarianByEmployeeID fetches a librarian by employee ID.
func (d *Database) GetLibrarianByEmployeeID(employeeID string) (*Librarian, error) {
	l, err := scanLibrarian(d.db.QueryRow(
		`SELECT `+librarianColumns+` FROM librarians WHERE employee_id=?`, employeeID))
	if err == sql.ErrNoRows {
		return nil, notFoundErr("librarian %s does not exist", employeeID)
	}
	return l, err
}

// GetAvailableLibrarians returns active librarians for assignment.
func (d *Database) GetAvailableLibrarians() ([]*Librarian, error) {
	rows, err := d.db.Query(`SELECT ` + librarianColumns + ` FROM librarians WHERE active=1 ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var librarians []*Librarian
	for rows.Next() {
		l, err := scanLibrarian(rows)
		if err != nil {
			return nil, err
		}
		librarians = append(librarians, l)
	}
	return librarians, rows.Err()
}

// ToggleLibrarianActive flips a librarian's active flag.
func (d *Database) ToggleLibrarianActive(id int64) error {
	res, err := d.db.Exec(`UPDATE librarians SET active = NOT active WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("librarian %d does not exist", id)
	}
	return nil
}

// SetLibrarianPasswordHash stores the bcrypt hash for a librarian.
func (d *Database) SetLibrarianPasswordHash(id int64, hash string) error {
	res, err := d.db.Exec(`UPDATE librarians SET password_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFoundErr("librarian %d does not exist", id)
	}
	return nil
}

// ManagedBorrowingCount counts the records a librarian has processed.
func (d *Database) ManagedBorrowingCount(librarianID int64) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM borrowing_records WHERE librarian_id=?`, librarianID).Scan(&n)
	return n, err
}
