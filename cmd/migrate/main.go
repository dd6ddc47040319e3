package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/config"
	"github.com/ivankudzin/tgapp/moderator/internal/infra/logger"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
	"github.com/ivankudzin/tgapp/moderator/migrations"
)

func main() {
	statusOnly := flag.Bool("status", false, "print the current schema version and exit")
	flag.Parse()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if !*statusOnly {
		if err := pgrepo.Migrate(ctx, pool, migrations.FS, log); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
	}

	version, err := pgrepo.MigrationStatus(ctx, pool, migrations.FS)
	if err != nil {
		log.Fatal("read schema version", zap.Error(err))
	}
	fmt.Printf("schema version %d\n", version)
}
