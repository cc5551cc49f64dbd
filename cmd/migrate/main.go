package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dupulse.app/internal/config"
	"dupulse.app/internal/migrate"
	"dupulse.app/internal/store/pg"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	var (
		dsn = flag.String("dsn", cfg.PGDSN, "PostgreSQL DSN (default DUPULSE_PG_DSN)")
		dir = flag.String("dir", "", "Directory with *.up.sql/*.down.sql files (default: embedded schema)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DUPULSE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	files := migrate.Schema()
	if *dir != "" {
		files = os.DirFS(*dir)
	}
	mgr := migrate.NewManager(store.DB(), files)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
