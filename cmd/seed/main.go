// Command seed loads profiles and PT contracts from CSV files into Postgres
// in a single transaction.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/fitlink/fitlink-backend/internal/roles"
)

// CLI flags
var (
	profilesPath  = flag.String("profiles", "", "Path to profiles CSV")
	contractsPath = flag.String("contracts", "", "Path to PT contracts CSV")
	dsn           = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun        = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
)

type Counts struct {
	Profiles  int64
	Contracts int64
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *profilesPath == "" && *contractsPath == "" {
		fatalf("at least one of --profiles or --contracts is required")
	}

	var (
		ps  []ProfileCSV
		cs  []ContractCSV
		err error
	)
	if *profilesPath != "" {
		if ps, err = readFile(*profilesPath, loadProfiles); err != nil {
			fatalf("profiles CSV: %v", err)
		}
	}
	if *contractsPath != "" {
		if cs, err = readFile(*contractsPath, loadContracts); err != nil {
			fatalf("contracts CSV: %v", err)
		}
	}
	if err := validateRefs(ps, cs); err != nil {
		fatalf("validation failed: %v", err)
	}
	fmt.Printf("Loaded %d profiles and %d contracts\n", len(ps), len(cs))

	if *dryRun {
		printPlan(ps, cs)
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op if already committed
	}()

	before, err := countAll(ctx, tx)
	if err != nil {
		fatalf("pre-count: %v", err)
	}
	fmt.Printf("Before: profiles=%d contracts=%d\n", before.Profiles, before.Contracts)

	if err := upsertProfiles(ctx, tx, ps); err != nil {
		fatalf("profiles: %v", err)
	}
	if err := insertContracts(ctx, tx, cs); err != nil {
		fatalf("contracts: %v", err)
	}

	after, err := countAll(ctx, tx)
	if err != nil {
		fatalf("post-count: %v", err)
	}
	fmt.Printf("After:  profiles=%d contracts=%d\n", after.Profiles, after.Contracts)

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	fmt.Println("Seed complete")
}

func readFile[T any](path string, load func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return load(f)
}

func printPlan(ps []ProfileCSV, cs []ContractCSV) {
	byRole := map[roles.Role]int{}
	for _, p := range ps {
		byRole[p.Role]++
	}
	active := 0
	for _, c := range cs {
		if c.IsActive {
			active++
		}
	}
	fmt.Println("Plan preview:")
	fmt.Printf("  Profiles to upsert: %d (trainer=%d member=%d admin=%d)\n",
		len(ps), byRole[roles.Trainer], byRole[roles.Member], byRole[roles.Admin])
	fmt.Printf("  Contracts to insert: %d (%d active)\n", len(cs), active)
	fmt.Println("  Tables affected: public.profiles, public.pt_contracts")
}

func countAll(ctx context.Context, tx *sql.Tx) (Counts, error) {
	var c Counts
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM public.profiles`).Scan(&c.Profiles); err != nil {
		return c, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM public.pt_contracts`).Scan(&c.Contracts); err != nil {
		return c, err
	}
	return c, nil
}

func upsertProfiles(ctx context.Context, tx *sql.Tx, ps []ProfileCSV) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO public.profiles (id, role, full_name, phone_number, created_at)
	      VALUES ($1, $2, $3, NULLIF($4, ''), now())
	      ON CONFLICT (id) DO UPDATE
	      SET role = EXCLUDED.role, full_name = EXCLUDED.full_name, phone_number = EXCLUDED.phone_number`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range ps {
		if _, err := stmt.ExecContext(ctx, p.ID, string(p.Role), p.FullName, p.PhoneNumber); err != nil {
			return fmt.Errorf("upsert profile %s: %w", p.ID, err)
		}
	}
	return nil
}

func insertContracts(ctx context.Context, tx *sql.Tx, cs []ContractCSV) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO public.pt_contracts
	      (id, trainer_id, member_id, total_sessions, used_sessions, is_active, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, now())`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range cs {
		if _, err := stmt.ExecContext(ctx, uuid.New(), c.TrainerID, c.MemberID, c.TotalSessions, c.UsedSessions, c.IsActive); err != nil {
			return fmt.Errorf("insert contract %d (%s -> %s): %w", i+1, c.TrainerID, c.MemberID, err)
		}
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
