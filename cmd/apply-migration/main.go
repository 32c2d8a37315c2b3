package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/seahkrah/SmartAttend-sub012/internal/config"
	"github.com/seahkrah/SmartAttend-sub012/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql>", os.Args[0])
	}

	migrationFile := os.Args[1]
	sqlContent, err := os.ReadFile(migrationFile)
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	statements := splitStatements(string(sqlContent))
	for i, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("Statement %d failed: %v\nSQL: %s", i+1, err, stmt)
		}
	}

	fmt.Printf("Applied %s (%d statements)\n", migrationFile, len(statements))
}

// splitStatements splits on ';' but keeps $$-quoted plpgsql bodies intact,
// so trigger functions survive the split.
func splitStatements(content string) []string {
	var out []string
	var b strings.Builder
	inDollar := false

	for i := 0; i < len(content); i++ {
		if i+1 < len(content) && content[i] == '$' && content[i+1] == '$' {
			inDollar = !inDollar
			b.WriteString("$$")
			i++
			continue
		}
		if content[i] == ';' && !inDollar {
			stmt := strings.TrimSpace(b.String())
			if stmt != "" && !isCommentOnly(stmt) {
				out = append(out, stmt)
			}
			b.Reset()
			continue
		}
		b.WriteByte(content[i])
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" && !isCommentOnly(stmt) {
		out = append(out, stmt)
	}
	return out
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
