// Package service manages database roles on target PostgreSQL servers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/validation"
)

const connectTimeout = 10 * time.Second

// AdminConn is the admin login on a target database.
type AdminConn struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// RoleSpec describes a role to create.
type RoleSpec struct {
	Database      string
	Username      string
	Password      string
	ValidUntil    time.Time
	GrantedTables []string
	ReadOnly      bool
}

// ConnectionString renders a postgres URL.
func ConnectionString(host string, port int, database, user, password, sslMode string) string {
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/" + database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// quoteIdent sanitizes an allow-listed, optionally schema-qualified identifier.
func quoteIdent(name string) (string, error) {
	if !validation.IsSQLIdentifier(name) {
		return "", apperrors.Wrap(credentialDomain.ErrInvalidIdentifier, name)
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize(), nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BuildCreateRoleStatements renders the statements that create a login role expiring at
// ValidUntil and grant it the requested privileges. With no tables the grant covers
// every table of the public schema.
func BuildCreateRoleStatements(spec RoleSpec) ([]string, error) {
	role, err := quoteIdent(spec.Username)
	if err != nil {
		return nil, err
	}
	db, err := quoteIdent(spec.Database)
	if err != nil {
		return nil, err
	}

	privileges := "SELECT, INSERT, UPDATE, DELETE"
	if spec.ReadOnly {
		privileges = "SELECT"
	}

	stmts := []string{
		fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s VALID UNTIL %s",
			role, quoteLiteral(spec.Password), quoteLiteral(spec.ValidUntil.UTC().Format(time.RFC3339))),
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", db, role),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", role),
	}

	if len(spec.GrantedTables) == 0 {
		stmts = append(stmts, fmt.Sprintf("GRANT %s ON ALL TABLES IN SCHEMA public TO %s", privileges, role))
		if !spec.ReadOnly {
			stmts = append(stmts, fmt.Sprintf("GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO %s", role))
		}
		return stmts, nil
	}

	for _, table := range spec.GrantedTables {
		t, err := quoteIdent(table)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("GRANT %s ON TABLE %s TO %s", privileges, t, role))
	}
	return stmts, nil
}

// BuildDropRoleStatements renders the statements that strip and drop a role.
func BuildDropRoleStatements(username string) ([]string, error) {
	role, err := quoteIdent(username)
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("DROP OWNED BY %s", role),
		fmt.Sprintf("DROP ROLE IF EXISTS %s", role),
	}, nil
}

// PostgresRoleManager runs role statements through pgx, one connection per call.
type PostgresRoleManager struct {
	logger *slog.Logger
}

func NewPostgresRoleManager(logger *slog.Logger) *PostgresRoleManager {
	return &PostgresRoleManager{logger: logger}
}

func (m *PostgresRoleManager) connect(ctx context.Context, admin AdminConn) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(ConnectionString(admin.Host, admin.Port, admin.Database, admin.User, admin.Password, admin.SSLMode))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}
	cfg.ConnectTimeout = connectTimeout

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(credentialDomain.ErrTargetUnavailable, err.Error())
	}
	return conn, nil
}

func (m *PostgresRoleManager) exec(ctx context.Context, admin AdminConn, stmts []string) error {
	conn, err := m.connect(ctx, admin)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("failed to close target connection", slog.Any("error", err))
		}
	}()

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return apperrors.Wrap(err, "role statement failed")
			}
		}
		return nil
	})
}

func (m *PostgresRoleManager) CreateRole(ctx context.Context, admin AdminConn, role RoleSpec) error {
	stmts, err := BuildCreateRoleStatements(role)
	if err != nil {
		return err
	}
	return m.exec(ctx, admin, stmts)
}

// DropRole terminates the role's sessions, then drops it.
func (m *PostgresRoleManager) DropRole(ctx context.Context, admin AdminConn, username string) error {
	stmts, err := BuildDropRoleStatements(username)
	if err != nil {
		return err
	}

	conn, err := m.connect(ctx, admin)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE usename = $1", username)
	if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
		m.logger.Warn("failed to close target connection", slog.Any("error", closeErr))
	}
	if err != nil {
		m.logger.Warn("failed to terminate role sessions",
			slog.String("username", username), slog.Any("error", err))
	}

	return m.exec(ctx, admin, stmts)
}
