// emenu-useradd заводит или удаляет пользователя в таблицах UserDirectory.
//
//	emenu-useradd --config local.yaml -login alice -password secret
//	EMENU_PASSWORD=secret emenu-useradd -login alice
//	emenu-useradd -login alice -delete
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/config"
	"github.com/pribylovaa/emenu-auth/internal/directory"
	"github.com/pribylovaa/emenu-auth/internal/storage"
	"github.com/pribylovaa/emenu-auth/internal/storage/postgres"
	"github.com/pribylovaa/emenu-auth/migrations"
)

func main() {
	var (
		configPath string
		login      string
		password   string
		remove     bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&login, "login", "", "user login")
	flag.StringVar(&password, "password", "", "user password (or EMENU_PASSWORD)")
	flag.BoolVar(&remove, "delete", false, "delete the user instead of creating it")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if password == "" {
		password = os.Getenv("EMENU_PASSWORD")
	}

	if err := run(configPath, login, password, remove); err != nil {
		log.Error("useradd_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, login, password string, remove bool) error {
	if login == "" {
		return errors.New("-login is required")
	}

	cfg := config.MustLoad(configPath)
	if cfg.DB.Driver != config.DriverPostgres {
		return fmt.Errorf("db.driver %q keeps no users between processes", cfg.DB.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.DB.AutoMigrate {
		if err := migrations.Up(ctx, cfg.DB.DatabaseURL); err != nil {
			return err
		}
	}

	st, err := postgres.New(ctx, cfg.DB.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	dir := directory.New(st)

	if remove {
		if err := dir.Remove(ctx, login); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("user %q not found", login)
			}
			return err
		}

		slog.Info("user_deleted", slog.String("login", login))
		return nil
	}

	user, err := dir.Register(ctx, login, password)
	if err != nil {
		return err
	}

	fmt.Printf("created user %q with id %d\n", user.Login, user.ID)
	return nil
}
