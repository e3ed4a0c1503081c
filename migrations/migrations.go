// migrations содержит SQL-схему сервиса, встроенную в бинарник, и
// применяет её через goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// FS — встроенные файлы миграций.
//
//go:embed *.sql
var FS embed.FS

// gooseUpContext — точка подмены goose.UpContext в тестах.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Run применяет все миграции к открытому соединению.
func Run(ctx context.Context, db *sql.DB) error {
	const op = "migrations.Run"

	goose.SetBaseFS(FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Up открывает соединение по dsn через драйвер pgx и применяет миграции.
func Up(ctx context.Context, dsn string) error {
	const op = "migrations.Up"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return Run(ctx, db)
}
