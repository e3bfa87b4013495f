package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"library-lending/library"
)

// Bulk-loads a catalog CSV into the lending database. Expected columns:
// title,author,isbn,category,publisher,year,copies. A header row is
// detected and skipped. Rows that fail validation are reported and the
// import continues.
func main() {
	dbPath := flag.String("db", "library.db", "path to the SQLite database")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: import_catalog [--db library.db] <catalog.csv>")
		os.Exit(1)
	}
	csvPath := flag.Arg(0)

	manager, err := library.NewLibraryManager(*dbPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Importing catalog from %s...\n", csvPath)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	successCount := 0
	errorCount := 0
	line := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			fmt.Printf("Line %d: ERROR - %v\n", line, err)
			errorCount++
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "title") {
			continue // header row
		}
		if len(row) < 7 {
			fmt.Printf("Line %d: ERROR - expected 7 columns, got %d\n", line, len(row))
			errorCount++
			continue
		}

		book := library.Book{
			Title:     strings.TrimSpace(row[0]),
			Author:    strings.TrimSpace(row[1]),
			ISBN:      strings.TrimSpace(row[2]),
			Category:  strings.TrimSpace(row[3]),
			Publisher: strings.TrimSpace(row[4]),
		}
		if y := strings.TrimSpace(row[5]); y != "" {
			if book.PublicationYear, err = strconv.Atoi(y); err != nil {
				fmt.Printf("Line %d: ERROR - invalid year %q\n", line, y)
				errorCount++
				continue
			}
		}
		if book.TotalCopies, err = strconv.Atoi(strings.TrimSpace(row[6])); err != nil {
			fmt.Printf("Line %d: ERROR - invalid copies %q\n", line, row[6])
			errorCount++
			continue
		}

		fmt.Printf("Importing: %s by %s... ", book.Title, book.Author)
		bookID, err := manager.AddBook(&book)
		if err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Printf("SUCCESS (ID: %d)\n", bookID)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nCatalog:")
		books, err := manager.GetAllBooks()
		if err != nil {
			fmt.Printf("Error retrieving books: %v\n", err)
			return
		}
		fmt.Printf("%-3s %-50s %-30s %-10s\n", "ID", "Title", "Author", "Copies")
		fmt.Println(strings.Repeat("-", 95))
		for _, book := range books {
			fmt.Printf("%-3d %-50s %-30s %d\n", book.ID, truncateString(book.Title, 50), truncateString(book.Author, 30), book.TotalCopies)
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
