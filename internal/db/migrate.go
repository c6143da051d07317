package db

import (
	"database/sql"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies embedded schema migrations. Uses a short-lived
// database/sql connection; the pgxpool is opened separately.
func Migrate(url string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	conn, err := sql.Open("pgx", url)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := goose.Up(conn, "migrations"); err != nil {
		return err
	}

	log.Info().Msg("database migrations applied")
	return nil
}
