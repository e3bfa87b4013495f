package library

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBook(t *testing.T, db *Database, title, isbn string, copies int) int64 {
	t.Helper()
	id, err := db.AddBook(&Book{Title: title, Author: "Test Author", ISBN: isbn, TotalCopies: copies})
	if err != nil {
		t.Fatalf("add book %s: %v", title, err)
	}
	return id
}

func seedMember(t *testing.T, db *Database, name, phone string) *Member {
	t.Helper()
	m := &Member{Name: name, Email: name + "@example.com", Phone: phone}
	id, err := db.AddMember(m)
	if err != nil {
		t.Fatalf("add member %s: %v", name, err)
	}
	m.ID = id
	return m
}

func seedLibrarian(t *testing.T, db *Database, employeeID string) int64 {
	t.Helper()
	id, err := db.AddLibrarian(&Librarian{Name: "Staff " + employeeID, EmployeeID: employeeID}, Date(2024, 1, 15))
	if err != nil {
		t.Fatalf("add librarian %s: %v", employeeID, err)
	}
	return id
}

func TestAddBookValidation(t *testing.T) {
	db := tempDB(t)

	if _, err := db.AddBook(&Book{Author: "A", ISBN: "111"}); !IsKind(err, KindValidation) {
		t.Fatalf("missing title: want validation error, got %v", err)
	}
	if _, err := db.AddBook(&Book{Title: "T", Author: "A"}); !IsKind(err, KindValidation) {
		t.Fatalf("missing ISBN: want validation error, got %v", err)
	}
	if _, err := db.AddBook(&Book{Title: "T", Author: "A", ISBN: "111", TotalCopies: -1}); !IsKind(err, KindValidation) {
		t.Fatalf("negative copies: want validation error, got %v", err)
	}
}

func TestISBNUniquenessNamesExistingBook(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "Dune", "978-0441172719", 2)

	_, err := db.AddBook(&Book{Title: "Other", Author: "Someone", ISBN: "978-0441172719", TotalCopies: 1})
	if !IsKind(err, KindConstraint) {
		t.Fatalf("want constraint error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Dune") || !strings.Contains(err.Error(), "Test Author") {
		t.Fatalf("error should name the existing book: %v", err)
	}
}

func TestUpdateBookKeepsOwnISBN(t *testing.T) {
	db := tempDB(t)
	id := seedBook(t, db, "Dune", "978-0441172719", 2)

	b, err := db.GetBook(id)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	b.Title = "Dune (Revised)"
	if err := db.UpdateBook(b); err != nil {
		t.Fatalf("update with unchanged ISBN: %v", err)
	}

	other := seedBook(t, db, "Other", "978-0000000001", 1)
	o, _ := db.GetBook(other)
	o.ISBN = "978-0441172719"
	if err := db.UpdateBook(o); !IsKind(err, KindConstraint) {
		t.Fatalf("want constraint error on ISBN clash, got %v", err)
	}
}

func TestDeleteBookBlockedByRecords(t *testing.T) {
	db := tempDB(t)
	bookID := seedBook(t, db, "Dune", "978-1", 1)
	member := seedMember(t, db, "alice", "0111111111")
	libID := seedLibrarian(t, db, "LIB001")

	r, err := db.BorrowBook(member.ID, bookID, libID, Date(2025, 1, 1), Date(2025, 1, 15), Date(2025, 1, 1), DefaultFinePerDay)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := db.DeleteBook(bookID); !IsKind(err, KindConstraint) {
		t.Fatalf("want constraint error, got %v", err)
	}

	// Even after return the history keeps the book undeletable.
	if _, err := db.ReturnBook(r.ID, Date(2025, 1, 10)); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := db.DeleteBook(bookID); !IsKind(err, KindConstraint) {
		t.Fatalf("want constraint error after return, got %v", err)
	}
}

func TestMemberSequenceNumbersAreMonotonic(t *testing.T) {
	db := tempDB(t)

	for i := 1; i <= 3; i++ {
		m := seedMember(t, db, fmt.Sprintf("member%d", i), fmt.Sprintf("01%08d", i))
		want := fmt.Sprintf("MEM%05d", i)
		if m.Sequence != want {
			t.Fatalf("member %d: want sequence %s, got %s", i, want, m.Sequence)
		}
	}
}

func TestPhoneUniquenessIgnoresInactiveMembers(t *testing.T) {
	db := tempDB(t)
	m1 := seedMember(t, db, "alice", "0123456789")

	if _, err := db.AddMember(&Member{Name: "bob", Email: "bob@example.com", Phone: "0123456789"}); !IsKind(err, KindConstraint) {
		t.Fatalf("duplicate phone among active members: want constraint error, got %v", err)
	}

	if _, err := db.SetMemberStatus(m1.ID, MemberInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := db.AddMember(&Member{Name: "bob", Email: "bob@example.com", Phone: "0123456789"}); err != nil {
		t.Fatalf("phone held only by inactive member should be reusable: %v", err)
	}
}

func TestMemberStatusDrivesBorrowLimit(t *testing.T) {
	db := tempDB(t)
	m := seedMember(t, db, "alice", "0123456789")
	if m.MaxBorrowLimit != 10 {
		t.Fatalf("active member: want limit 10, got %d", m.MaxBorrowLimit)
	}

	updated, err := db.SetMemberStatus(m.ID, MemberPending)
	if err != nil {
		t.Fatalf("set pending: %v", err)
	}
	if updated.MaxBorrowLimit != 5 {
		t.Fatalf("pending member: want limit 5, got %d", updated.MaxBorrowLimit)
	}
}

func TestStatusChangeBlockedWithTooManyBooksOut(t *testing.T) {
	db := tempDB(t)
	member := seedMember(t, db, "alice", "0123456789")
	libID := seedLibrarian(t, db, "LIB001")

	for i := 0; i < 6; i++ {
		bookID := seedBook(t, db, fmt.Sprintf("Book %d", i), fmt.Sprintf("isbn-%d", i), 1)
		if _, err := db.BorrowBook(member.ID, bookID, libID, Date(2025, 1, 1), Date(2025, 1, 15), Date(2025, 1, 1), DefaultFinePerDay); err != nil {
			t.Fatalf("borrow %d: %v", i, err)
		}
	}

	_, err := db.SetMemberStatus(member.ID, MemberInactive)
	if !IsKind(err, KindConstraint) {
		t.Fatalf("6 books out: want constraint error, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 book(s) must be returned first") {
		t.Fatalf("error should say how many returns are needed: %v", err)
	}
}

func TestAddLibrarianValidation(t *testing.T) {
	db := tempDB(t)
	today := Date(2025, 6, 1)

	cases := []struct {
		name string
		l    Librarian
	}{
		{"bad employee ID", Librarian{Name: "A", EmployeeID: "EMP001"}},
		{"employee ID too short", Librarian{Name: "A", EmployeeID: "LIB01"}},
		{"bad email", Librarian{Name: "A", EmployeeID: "LIB001", Email: "not-an-email"}},
		{"future hire date", Librarian{Name: "A", EmployeeID: "LIB001", HireDate: Date(2026, 1, 1)}},
	}
	for _, tc := range cases {
		if _, err := db.AddLibrarian(&tc.l, today); !IsKind(err, KindValidation) {
			t.Fatalf("%s: want validation error, got %v", tc.name, err)
		}
	}

	if _, err := db.AddLibrarian(&Librarian{Name: "A", EmployeeID: "LIB001", Email: "a@lib.example.com"}, today); err != nil {
		t.Fatalf("valid librarian: %v", err)
	}
	_, err := db.AddLibrarian(&Librarian{Name: "B", EmployeeID: "LIB001"}, today)
	if !IsKind(err, KindConstraint) {
		t.Fatalf("duplicate employee ID: want constraint error, got %v", err)
	}
}

func TestYearsOfService(t *testing.T) {
	l := &Librarian{HireDate: Date(2023, 1, 1)}
	got := l.YearsOfService(Date(2025, 1, 1))
	if got != 2.0 {
		t.Fatalf("want 2.0 years, got %v", got)
	}
	if (&Librarian{HireDate: Date(2025, 1, 1)}).YearsOfService(Date(2025, 1, 1)) != 0 {
		t.Fatalf("hired today: want 0 years")
	}
}

func TestToggleLibrarianActive(t *testing.T) {
	db := tempDB(t)
	id := seedLibrarian(t, db, "LIB001")

	if err := db.ToggleLibrarianActive(id); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	l, err := db.GetLibrarian(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if l.Active {
		t.Fatalf("want inactive after toggle")
	}

	available, err := db.GetAvailableLibrarians()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("inactive librarian should not be available, got %d", len(available))
	}
}

func TestDeleteMemberBlockedByRecords(t *testing.T) {
	db := tempDB(t)
	bookID := seedBook(t, db, "Dune", "978-1", 1)
	member := seedMember(t, db, "alice", "0111111111")
	libID := seedLibrarian(t, db, "LIB001")

	if _, err := db.BorrowBook(member.ID, bookID, libID, Date(2025, 1, 1), Date(2025, 1, 15), Date(2025, 1, 1), DefaultFinePerDay); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := db.DeleteMember(member.ID); !IsKind(err, KindConstraint) {
		t.Fatalf("want constraint error, got %v", err)
	}
}

func TestUpdateMemberContactRevalidatesPhone(t *testing.T) {
	db := tempDB(t)
	seedMember(t, db, "alice", "0111111111")
	bob := seedMember(t, db, "bob", "0222222222")

	if err := db.UpdateMemberContact(bob.ID, "bob@example.com", "0111111111"); !IsKind(err, KindConstraint) {
		t.Fatalf("phone held by active member: want constraint error, got %v", err)
	}
	if err := db.UpdateMemberContact(bob.ID, "bob@example.com", ""); !IsKind(err, KindValidation) {
		t.Fatalf("empty phone: want validation error, got %v", err)
	}
	if err := db.UpdateMemberContact(bob.ID, "bob@new.example.com", "0333333333"); err != nil {
		t.Fatalf("valid update: %v", err)
	}
	got, _ := db.GetMember(bob.ID)
	if got.Email != "bob@new.example.com" || got.Phone != "0333333333" {
		t.Fatalf("contact not persisted: %q / %q", got.Email, got.Phone)
	}
	// Keeping your own phone is not a clash.
	if err := db.UpdateMemberContact(bob.ID, "bob@new.example.com", "0333333333"); err != nil {
		t.Fatalf("unchanged phone: %v", err)
	}
}

func TestSetTotalCopiesAdjustsAvailability(t *testing.T) {
	db := tempDB(t)
	bookID := seedBook(t, db, "Dune", "978-1", 1)
	member := seedMember(t, db, "alice", "0111111111")
	libID := seedLibrarian(t, db, "LIB001")

	if _, err := db.BorrowBook(member.ID, bookID, libID, Date(2025, 1, 1), Date(2025, 1, 15), Date(2025, 1, 1), DefaultFinePerDay); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if avail, _ := db.AvailableCopies(bookID); avail != 0 {
		t.Fatalf("want 0 available, got %d", avail)
	}

	if err := db.SetTotalCopies(bookID, 3); err != nil {
		t.Fatalf("set copies: %v", err)
	}
	if avail, _ := db.AvailableCopies(bookID); avail != 2 {
		t.Fatalf("3 copies with 1 out: want 2 available, got %d", avail)
	}

	// Shrinking below the number out clamps availability at zero.
	if err := db.SetTotalCopies(bookID, 0); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if avail, _ := db.AvailableCopies(bookID); avail != 0 {
		t.Fatalf("want availability clamped at 0, got %d", avail)
	}

	if err := db.SetTotalCopies(bookID, -1); !IsKind(err, KindValidation) {
		t.Fatalf("negative copies: want validation error, got %v", err)
	}
	if err := db.SetTotalCopies(999, 1); !IsKind(err, KindNotFound) {
		t.Fatalf("missing book: want not_found, got %v", err)
	}
}

func TestNotFoundErrors(t *testing.T) {
	db := tempDB(t)

	if _, err := db.GetBook(99); !IsKind(err, KindNotFound) {
		t.Fatalf("missing book: want not_found, got %v", err)
	}
	if _, err := db.GetMember(99); !IsKind(err, KindNotFound) {
		t.Fatalf("missing member: want not_found, got %v", err)
	}
	if _, err := db.GetLibrarianByEmployeeID("LIB999"); !IsKind(err, KindNotFound) {
		t.Fatalf("missing librarian: want not_found, got %v", err)
	}
	if _, err := db.GetRecordBySequence("BRW99999"); !IsKind(err, KindNotFound) {
		t.Fatalf("missing record: want not_found, got %v", err)
	}
}
