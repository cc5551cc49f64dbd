// Command adminctl manages admin membership records directly in Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"dupulse.app/internal/audit"
	"dupulse.app/internal/auth"
	"dupulse.app/internal/config"
	"dupulse.app/internal/store/pg"
)

const usage = "usage: adminctl [-dsn DSN] grant <uid> [email] | revoke <uid> | list | check <uid>"

type adminStore interface {
	auth.MembershipStore
	GrantAdmin(ctx context.Context, uid, email string) (auth.AdminRecord, error)
	RevokeAdmin(ctx context.Context, uid string) error
	GetAdmin(ctx context.Context, uid string) (auth.AdminRecord, error)
	ListAdmins(ctx context.Context) ([]auth.AdminRecord, error)
}

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dsn := flag.String("dsn", cfg.PGDSN, "PostgreSQL DSN (default DUPULSE_PG_DSN)")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DUPULSE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("adminctl: %v", err)
	}
}

func run(ctx context.Context, store adminStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	ctx = audit.WithRequestID(ctx, "adminctl")

	switch args[0] {
	case "grant":
		if len(args) < 2 || len(args) > 3 {
			return errors.New(usage)
		}
		email := ""
		if len(args) == 3 {
			email = strings.ToLower(strings.TrimSpace(args[2]))
		}
		rec, err := store.GrantAdmin(ctx, args[1], email)
		if errors.Is(err, pg.ErrConflict) {
			return fmt.Errorf("%s is already an admin", args[1])
		}
		if err != nil {
			return err
		}
		_ = audit.LogEvent(ctx, "admin.granted", map[string]any{"uid": rec.UID, "email": rec.Email})
		fmt.Fprintf(out, "granted %s\n", rec.UID)
	case "revoke":
		if len(args) != 2 {
			return errors.New(usage)
		}
		err := store.RevokeAdmin(ctx, args[1])
		if errors.Is(err, pg.ErrNotFound) {
			return fmt.Errorf("%s is not an admin", args[1])
		}
		if err != nil {
			return err
		}
		_ = audit.LogEvent(ctx, "admin.revoked", map[string]any{"uid": args[1]})
		fmt.Fprintf(out, "revoked %s\n", args[1])
	case "list":
		records, err := store.ListAdmins(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "UID\tEMAIL\tCREATED")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.UID, rec.Email, rec.CreatedAt.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	case "check":
		if len(args) != 2 {
			return errors.New(usage)
		}
		ok, err := auth.MembershipPolicy{Store: store}.IsAdmin(ctx, auth.Identity{ID: args[1]})
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "%s is not an admin\n", args[1])
			return nil
		}
		rec, err := store.GetAdmin(ctx, args[1])
		if errors.Is(err, pg.ErrNotFound) {
			fmt.Fprintf(out, "%s is not an admin\n", args[1])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s is an admin since %s", rec.UID, rec.CreatedAt.UTC().Format(time.RFC3339))
		if rec.Email != "" {
			fmt.Fprintf(out, " (%s)", rec.Email)
		}
		fmt.Fprintln(out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
