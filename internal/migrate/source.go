// Package migrate applies migration scripts transactionally and records
// them in the history table.
package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Migration is one migration file on disk.
type Migration struct {
	// Version is the file's UTC timestamp prefix, YYYYMMDDHHMMSS.
	Version  string
	Name     string
	Filename string
	Checksum string
}

var filePattern = regexp.MustCompile(`^(\d{14})_(.+)\.sql$`)

// LoadDir scans a migrations directory and returns its migrations sorted
// ascending by version.
func LoadDir(dir string) ([]Migration, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	for _, file := range files {
		match := filePattern.FindStringSubmatch(filepath.Base(file))
		if match == nil {
			continue
		}
		sum, err := fileChecksum(file)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{
			Version:  match[1],
			Name:     match[2],
			Filename: file,
			Checksum: sum,
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// SQL reads the migration file's content.
func (m *Migration) SQL() (string, error) {
	data, err := os.ReadFile(m.Filename)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Statements splits the migration into individual statements through the
// grammar, never by regex.
func (m *Migration) Statements() ([]string, error) {
	sql, err := m.SQL()
	if err != nil {
		return nil, err
	}
	return SplitStatements(sql)
}

// SplitStatements splits a SQL script on statement boundaries.
func SplitStatements(sql string) ([]string, error) {
	stmts, err := pg_query.SplitWithParser(sql, true)
	if err != nil {
		return nil, fmt.Errorf("splitting migration script: %w", err)
	}
	var out []string
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}

// WriteFile creates a new migration file named <version>_<name>.sql and
// returns its path.
func WriteFile(dir, name, sql string, now time.Time) (string, error) {
	if name == "" {
		name = "migration"
	}
	version := now.UTC().Format("20060102150405")
	path := filepath.Join(dir, version+"_"+sanitizeName(name)+".sql")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(sql), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func fileChecksum(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
