// Command migrate applies or rolls back the EventHub schema and can seed demo data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	_ "github.com/lib/pq"

	"ms-eventhub/internal/config"
	"ms-eventhub/internal/database/migrations"
	"ms-eventhub/internal/logger"
)

func main() {
	dir := flag.String("dir", migrations.DefaultOptions().Dir, "directory holding the migration files")
	down := flag.Bool("down", false, "roll back every migration")
	to := flag.Uint("to", 0, "migrate to this version instead of the latest")
	seed := flag.Bool("seed", false, "insert demo users, venues and events after migrating")
	flag.Parse()

	logger := logger.NewLogger("migrate")
	defer logger.Close()

	cfg := config.Load()
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	defer sqldb.Close()
	if err := sqldb.PingContext(context.Background()); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}

	runner := migrations.NewRunner(sqldb, migrations.Options{Dir: *dir}, logger)
	defer runner.Close()

	switch {
	case *down:
		err = runner.Down()
	case *to > 0:
		err = runner.To(*to)
	default:
		err = runner.Up()
	}
	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}

	if *seed && !*down {
		if err := seedData(context.Background(), cfg.Database.DSN, logger); err != nil {
			logger.Fatal("SEED", err.Error())
		}
	}
	logger.Info("MIGRATE", "✅ Done")
}
