// Package repository implements every vault persistence port on top of database/sql.
// PostgreSQL and MySQL share the query text; placeholders, upserts and unique-violation
// detection go through the dialect.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"

	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	maxIdentifierLength  = 64
	defaultRowsPageLimit = 100
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Repository is the SQL VaultRepository.
type Repository struct {
	db      *sql.DB
	dialect string
}

// New returns a repository for the given driver name ("postgres" or "mysql").
func New(db *sql.DB, driver string) (*Repository, error) {
	switch driver {
	case DialectPostgres, DialectMySQL:
		return &Repository{db: db, dialect: driver}, nil
	default:
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "unsupported sql dialect "+driver)
	}
}

func (r *Repository) querier(ctx context.Context) database.Querier {
	return database.GetTx(ctx, r.db)
}

// rebind rewrites '?' placeholders to $N for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// upsert builds an insert that overwrites updateCols when the conflict key exists.
func (r *Repository) upsert(table string, conflict []string, cols []string, updateCols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	sets := make([]string, 0, len(updateCols))
	if r.dialect == DialectPostgres {
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", q, strings.Join(conflict, ", "), strings.Join(sets, ", "))
	}
	for _, c := range updateCols {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s", q, strings.Join(sets, ", "))
}

// quoteIdent validates and quotes an application table or column name.
func (r *Repository) quoteIdent(name string) (string, error) {
	if len(name) > maxIdentifierLength || !identifierPattern.MatchString(name) {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "invalid identifier "+strconv.Quote(name))
	}
	if r.dialect == DialectPostgres {
		return `"` + name + `"`, nil
	}
	return "`" + name + "`", nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if apperrors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if apperrors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

// execErr maps driver errors to sentinels.
func execErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return apperrors.Wrap(apperrors.ErrConflict, msg)
	}
	return apperrors.Wrap(err, msg)
}

func rowErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return apperrors.ErrNotFound
	}
	return apperrors.Wrap(err, msg)
}

func affectedOrNotFound(res sql.Result, err error, msg string) error {
	if err != nil {
		return apperrors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, msg)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode column")
	}
	return string(b), nil
}

func fromJSON(raw string, out any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperrors.Wrap(err, "failed to decode column")
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// likePrefix escapes LIKE wildcards in prefix. Both dialects treat '\' as the default escape.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
