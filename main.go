package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-lending/library"
	"library-lending/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

type cliOptions struct {
	dbPath string
	asOf   string
}

func (o *cliOptions) today() (time.Time, error) {
	if o.asOf == "" {
		return library.Today(), nil
	}
	return library.ParseDate(o.asOf)
}

// withManager opens the library, runs fn, and closes it again.
func (o *cliOptions) withManager(fn func(*library.LibraryManager) error) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	mgr, err := library.NewLibraryManager(o.dbPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer mgr.Close()

	cfg, err := library.LoadConfig()
	if err != nil {
		return err
	}
	mgr.SetFinePerDay(cfg.FinePerDay)
	return fn(mgr)
}

// authenticate prompts for the acting librarian's password.
func authenticate(mgr *library.LibraryManager, employeeID string) (*library.Librarian, error) {
	password, err := readPassword(fmt.Sprintf("Password for %s: ", employeeID))
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return mgr.AuthenticateLibrarian(employeeID, password)
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library lending management",
		Long:          "Tracks the lending lifecycle: members borrow from a finite pool of copies,\nlibrarians process transactions, and overdue loans accrue fines.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "library.db", "path to the SQLite database")
	root.PersistentFlags().StringVar(&opts.asOf, "as-of", "", "reference date (YYYY-MM-DD, default today)")

	root.AddCommand(
		newBookCmd(opts),
		newMemberCmd(opts),
		newLibrarianCmd(opts),
		newBorrowCmd(opts),
		newReturnCmd(opts),
		newExtendCmd(opts),
		newRecordCmd(opts),
		newSweepCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// ------------------ book ------------------

func newBookCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage the catalog"}

	var b library.Book
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book to the catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				id, err := mgr.AddBook(&b)
				if err != nil {
					return err
				}
				fmt.Printf("Added book ID %d: %q by %s (%d copies)\n", id, b.Title, b.Author, b.TotalCopies)
				return nil
			})
		},
	}
	add.Flags().StringVar(&b.Title, "title", "", "book title")
	add.Flags().StringVar(&b.Author, "author", "", "book author")
	add.Flags().StringVar(&b.ISBN, "isbn", "", "ISBN (globally unique)")
	add.Flags().StringVar(&b.Category, "category", library.CategoryOther, "category")
	add.Flags().StringVar(&b.Publisher, "publisher", "", "publisher")
	add.Flags().IntVar(&b.PublicationYear, "year", 0, "publication year")
	add.Flags().IntVar(&b.TotalCopies, "copies", 1, "total copies")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the catalog with availability",
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				books, err := mgr.GetAllBooks()
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Println("No books in library.")
					return nil
				}
				fmt.Printf("%-5s %-35s %-25s %-15s %-10s\n", "ID", "Title", "Author", "ISBN", "Available")
				fmt.Println(strings.Repeat("-", 95))
				for _, b := range books {
					fmt.Printf("%-5d %-35s %-25s %-15s %d/%d\n",
						b.ID, truncateString(b.Title, 35), truncateString(b.Author, 25),
						b.ISBN, b.AvailableCopies, b.TotalCopies)
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a book without borrowing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book ID: %s", args[0])
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				if err := mgr.DeleteBook(id); err != nil {
					return err
				}
				fmt.Printf("Removed book %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

// ------------------ member ------------------

func newMemberCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage members"}

	var m library.Member
	var statusFlag string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		RunE: func(_ *cobra.Command, _ []string) error {
			m.Status = library.MemberStatus(statusFlag)
			return opts.withManager(func(mgr *library.LibraryManager) error {
				id, err := mgr.AddMember(&m)
				if err != nil {
					return err
				}
				fmt.Printf("Added member %s (ID %d), borrow limit %d\n", m.Sequence, id, m.MaxBorrowLimit)
				return nil
			})
		},
	}
	add.Flags().StringVar(&m.Name, "name", "", "member name")
	add.Flags().StringVar(&m.Email, "email", "", "email address")
	add.Flags().StringVar(&m.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&statusFlag, "status", string(library.MemberActive), "active|pending|inactive")

	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				members, err := mgr.GetAllMembers()
				if err != nil {
					return err
				}
				if len(members) == 0 {
					fmt.Println("No members registered.")
					return nil
				}
				fmt.Printf("%-10s %-25s %-10s %-6s %s\n", "Sequence", "Name", "Status", "Limit", "Phone")
				fmt.Println(strings.Repeat("-", 70))
				for _, m := range members {
					fmt.Printf("%-10s %-25s %-10s %-6d %s\n",
						m.Sequence, truncateString(m.Name, 25), m.Status, m.MaxBorrowLimit, m.Phone)
				}
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status <id> <active|pending|inactive>",
		Short: "Change a member's status (adjusts the borrow limit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member ID: %s", args[0])
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				m, err := mgr.SetMemberStatus(id, library.MemberStatus(args[1]))
				if err != nil {
					return err
				}
				fmt.Printf("Member %s is now %s, borrow limit %d\n", m.Sequence, m.Status, m.MaxBorrowLimit)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a member with borrowing summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member ID: %s", args[0])
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				m, err := mgr.GetMember(id)
				if err != nil {
					return err
				}
				s, err := mgr.MemberSummary(id)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s (%s)\n", m.Sequence, m.Name, m.Status)
				fmt.Printf("  Borrowed now:  %d of %d\n", s.CurrentBorrowed, m.MaxBorrowLimit)
				fmt.Printf("  Total records: %d (returned %d, overdue %d)\n", s.TotalBorrowed, s.ReturnedCount, s.OverdueCount)
				fmt.Printf("  Total fines:   RM %.2f\n", s.TotalFines)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, status, show)
	return cmd
}

// ------------------ librarian ------------------

func newLibrarianCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "librarian", Short: "Manage librarians"}

	var l library.Librarian
	var hireDate string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a librarian",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			if hireDate != "" {
				if l.HireDate, err = library.ParseDate(hireDate); err != nil {
					return err
				}
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				id, err := mgr.AddLibrarian(&l, today)
				if err != nil {
					return err
				}
				fmt.Printf("Added librarian %s (ID %d)\n", l.DisplayName(), id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&l.Name, "name", "", "librarian name")
	add.Flags().StringVar(&l.EmployeeID, "employee-id", "", "employee ID (format LIBxxx)")
	add.Flags().StringVar(&l.Email, "email", "", "email address")
	add.Flags().StringVar(&l.Department, "department", library.DeptCirculation, "department")
	add.Flags().StringVar(&l.Position, "position", library.PositionLibrarian, "position")
	add.Flags().StringVar(&hireDate, "hire-date", "", "hire date (YYYY-MM-DD, default today)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active librarians",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				librarians, err := mgr.GetAvailableLibrarians()
				if err != nil {
					return err
				}
				if len(librarians) == 0 {
					fmt.Println("No active librarians.")
					return nil
				}
				fmt.Printf("%-10s %-25s %-15s %-18s %-8s %s\n", "EmpID", "Name", "Department", "Position", "Years", "Processed")
				fmt.Println(strings.Repeat("-", 90))
				for _, l := range librarians {
					n, err := mgr.ManagedBorrowingCount(l.ID)
					if err != nil {
						return err
					}
					fmt.Printf("%-10s %-25s %-15s %-18s %-8.1f %d\n",
						l.EmployeeID, truncateString(l.Name, 25), l.Department, l.Position,
						l.YearsOfService(today), n)
				}
				return nil
			})
		},
	}

	setPassword := &cobra.Command{
		Use:   "set-password <employee-id>",
		Short: "Set a librarian's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				password, err := readPassword(fmt.Sprintf("New password for %s: ", args[0]))
				if err != nil {
					return err
				}
				confirm, err := readPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if password != confirm {
					return fmt.Errorf("passwords do not match")
				}
				if err := mgr.SetLibrarianPassword(args[0], password); err != nil {
					return err
				}
				fmt.Printf("Password set for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, setPassword)
	return cmd
}

// ------------------ circulation ------------------

func newBorrowCmd(opts *cliOptions) *cobra.Command {
	var memberID, bookID int64
	var librarianID, due, borrowedOn string

	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Lend a book to a member",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			expected, err := library.ParseDate(due)
			if err != nil {
				return err
			}
			borrowDate := today
			if borrowedOn != "" {
				if borrowDate, err = library.ParseDate(borrowedOn); err != nil {
					return err
				}
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				lib, err := authenticate(mgr, librarianID)
				if err != nil {
					return err
				}
				record, err := mgr.BorrowBook(memberID, bookID, lib.ID, borrowDate, expected, today)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %q lent to %s, due %s\n",
					record.Sequence, record.BookTitle, record.MemberName, library.FormatDate(record.ExpectedReturnDate))
				if record.Status == library.StatusOverdue {
					fmt.Println("Warning: due date is already past; record created as overdue.")
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&memberID, "member", 0, "member ID")
	cmd.Flags().Int64Var(&bookID, "book", 0, "book ID")
	cmd.Flags().StringVar(&librarianID, "librarian", "", "processing librarian's employee ID")
	cmd.Flags().StringVar(&due, "due", "", "expected return date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&borrowedOn, "borrowed-on", "", "borrow date (default: reference date)")
	return cmd
}

func newReturnCmd(opts *cliOptions) *cobra.Command {
	var librarianID string

	cmd := &cobra.Command{
		Use:   "return <record-sequence>",
		Short: "Process a return and assess any fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				if _, err := authenticate(mgr, librarianID); err != nil {
					return err
				}
				record, err := mgr.GetRecordBySequence(args[0])
				if err != nil {
					return err
				}
				updated, note, err := mgr.ReturnBook(record.ID, today)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", note.Title, note.Message)
				if updated.FineAmount > 0 {
					fmt.Printf("Days overdue: %d at RM %.2f/day\n", updated.DaysOverdue(today), updated.FinePerDay)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&librarianID, "librarian", "", "processing librarian's employee ID")
	return cmd
}

func newExtendCmd(opts *cliOptions) *cobra.Command {
	var librarianID, due string

	cmd := &cobra.Command{
		Use:   "extend <record-sequence>",
		Short: "Extend a borrowed record's due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			newExpected, err := library.ParseDate(due)
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				if _, err := authenticate(mgr, librarianID); err != nil {
					return err
				}
				record, err := mgr.GetRecordBySequence(args[0])
				if err != nil {
					return err
				}
				_, note, err := mgr.ExtendDueDate(record.ID, newExpected)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", note.Title, note.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&librarianID, "librarian", "", "processing librarian's employee ID")
	cmd.Flags().StringVar(&due, "due", "", "new expected return date (YYYY-MM-DD)")
	return cmd
}

// ------------------ record ------------------

func newRecordCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Inspect and prune borrowing records"}

	var memberID int64
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List borrowing records, most recent first",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				records, err := mgr.ListRecords(library.RecordFilter{
					MemberID: memberID,
					Status:   library.RecordStatus(status),
				})
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No borrowing records.")
					return nil
				}
				fmt.Printf("%-10s %-40s %-12s %-12s %-8s %s\n", "Sequence", "Record", "Due", "Returned", "Overdue", "Fine")
				fmt.Println(strings.Repeat("-", 100))
				for _, r := range records {
					fmt.Printf("%-10s %-40s %-12s %-12s %-8d RM %.2f\n",
						r.Sequence, truncateString(r.DisplayName(), 40),
						library.FormatDate(r.ExpectedReturnDate), library.FormatDate(r.ActualReturnDate),
						r.DaysOverdue(today), r.FineAmount)
				}
				return nil
			})
		},
	}
	list.Flags().Int64Var(&memberID, "member", 0, "filter by member ID")
	list.Flags().StringVar(&status, "status", "", "filter by status")

	remove := &cobra.Command{
		Use:   "delete <record-sequence>",
		Short: "Delete a returned borrowing record",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				record, err := mgr.GetRecordBySequence(args[0])
				if err != nil {
					return err
				}
				if err := mgr.DeleteRecord(record.ID); err != nil {
					return err
				}
				fmt.Printf("Deleted record %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

// ------------------ sweeps ------------------

func newSweepCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sweep", Short: "Run the periodic batch jobs by hand"}

	fines := &cobra.Command{
		Use:   "fines",
		Short: "Run the daily overdue fine sweep",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				note := mgr.TestFineSweep(today)
				fmt.Printf("%s: %s\n", note.Title, note.Message)
				if note.Severity == library.SeverityError {
					return fmt.Errorf("fine sweep failed")
				}
				return nil
			})
		},
	}

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "Flip past-due borrowed records to overdue (no fines)",
		RunE: func(_ *cobra.Command, _ []string) error {
			today, err := opts.today()
			if err != nil {
				return err
			}
			return opts.withManager(func(mgr *library.LibraryManager) error {
				n, err := mgr.UpdateOverdueRecords(today)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d record(s) overdue\n", n)
				return nil
			})
		},
	}

	members := &cobra.Command{
		Use:   "members",
		Short: "Run the weekly member status review (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withManager(func(mgr *library.LibraryManager) error {
				report, err := mgr.MemberReview()
				if err != nil {
					return err
				}
				fmt.Println("Weekly Member Status Review:")
				fmt.Printf("  Active members with overdue books: %d\n", report.ActiveWithOverdue)
				fmt.Printf("  Inactive members with no books out: %d\n", report.InactiveIdle)
				fmt.Printf("  Pending members: %d\n", report.Pending)
				fmt.Printf("  Total members: %d\n", report.TotalMembers)
				if len(report.Flagged) > 0 {
					fmt.Printf("  Requiring attention (3+ overdue): %s\n", strings.Join(report.Flagged, ", "))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(fines, overdue, members)
	return cmd
}

// ------------------ serve ------------------

func newServeCmd(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lending API over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := library.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			mgr, err := library.NewLibraryManager(opts.dbPath, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer mgr.Close()
			mgr.SetFinePerDay(cfg.FinePerDay)

			registry := prometheus.NewRegistry()
			mgr.SetMetrics(library.NewSweepMetrics(registry))

			router := server.NewRouter(server.Deps{
				Manager:  mgr,
				Logger:   logger,
				Gatherer: registry,
			})
			logger.Info("serving lending API", slog.String("addr", cfg.HTTPAddr))
			return http.ListenAndServe(cfg.HTTPAddr, router)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from LIBRARY_HTTP_ADDR or :8080)")
	return cmd
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
