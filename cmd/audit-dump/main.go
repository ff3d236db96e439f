package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"skylabel/internal/audit"
)

func main() {
	_ = godotenv.Load()

	dbPath := os.Getenv("AUDIT_DB_PATH")
	if dbPath == "" {
		fmt.Println("Error: AUDIT_DB_PATH must be set")
		os.Exit(1)
	}

	limit := 20
	if len(os.Args) > 1 {
		parsed, err := strconv.Atoi(os.Args[1])
		if err != nil || parsed <= 0 {
			fmt.Println("Usage: audit-dump [limit]")
			os.Exit(1)
		}
		limit = parsed
	}

	store, err := audit.NewStore(dbPath)
	if err != nil {
		fmt.Printf("Error: failed to open audit store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entries, err := store.Recent(limit)
	if err != nil {
		fmt.Printf("Error: failed to read audit trail: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No replies recorded.")
		return
	}

	for _, entry := range entries {
		labels := strings.Join(entry.Labels, ", ")
		if labels == "" {
			labels = "(witty reply)"
		}
		fmt.Printf("%s  @%-25s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Author, labels)
		fmt.Printf("    %s\n", strings.ReplaceAll(entry.ReplyText, "\n", " / "))
	}
}
