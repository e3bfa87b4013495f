package library

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SetLibrarianPassword hashes and stores a librarian's password.
func (lm *LibraryManager) SetLibrarianPassword(employeeID, password string) error {
	if strings.TrimSpace(password) == "" {
		return validationErr("password cannot be empty")
	}
	l, err := lm.db.GetLibrarianByEmployeeID(employeeID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return lm.db.SetLibrarianPasswordHash(l.ID, string(hash))
}

// AuthenticateLibrarian verifies a librarian's credentials. Inactive
// librarians cannot authenticate. The error is deliberately uniform so
// callers cannot probe which employee IDs exist.
func (lm *LibraryManager) AuthenticateLibrarian(employeeID, password string) (*Librarian, error) {
	l, err := lm.db.GetLibrarianByEmployeeID(employeeID)
	if err != nil {
		return nil, fmt.Errorf("invalid employee ID or password")
	}
	if !l.Active {
		return nil, fmt.Errorf("librarian %s is not active", l.EmployeeID)
	}
	if l.PasswordHash == "" {
		return nil, fmt.Errorf("no password set for %s; ask an administrator to set one", l.EmployeeID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(l.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid employee ID or password")
	}
	return l, nil
}
