package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// CLI flags
var (
	yamlPath = flag.String("yaml", "seeds.yaml", "Path to the accounts YAML file")
	dsn      = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun   = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
)

// YAML contract: a top-level `accounts` list. Passwords are plaintext in the
// file and bcrypt-hashed before the upsert, so the file is only suitable for
// local/dev databases.
type seedFile struct {
	Accounts []seedAccount `yaml:"accounts"`
}

type seedAccount struct {
	Name          string `yaml:"name"`
	StdCode       string `yaml:"std_code"`
	Gender        string `yaml:"gender"`
	Email         string `yaml:"email"`
	PhoneNumber   string `yaml:"phone_number"`
	Password      string `yaml:"password"`
	Role          string `yaml:"role"`
	EmailVerified bool   `yaml:"email_verified"`
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()

	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal("no DSN: set -dsn or DATABASE_URL")
	}

	data, err := os.ReadFile(*yamlPath)
	if err != nil {
		log.Fatalf("reading %s: %v", *yamlPath, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Fatalf("parsing %s: %v", *yamlPath, err)
	}

	for i, acc := range file.Accounts {
		if acc.Email == "" || acc.Password == "" || acc.Name == "" {
			log.Fatalf("account %d: name, email and password are required", i)
		}
		if acc.Role == "" {
			file.Accounts[i].Role = "USER"
		}
	}

	log.Printf("parsed %d accounts from %s", len(file.Accounts), *yamlPath)
	if *dryRun {
		log.Println("dry-run: no DB writes")
		return
	}

	sqlDB, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var upserted int64
	for _, acc := range file.Accounts {
		hashed, err := bcrypt.GenerateFromPassword([]byte(acc.Password), 10)
		if err != nil {
			log.Fatalf("hashing password for %s: %v", acc.Email, err)
		}

		res, err := sqlDB.ExecContext(ctx, `
			INSERT INTO app_auth.users
				(id, name, std_code, gender, email, phone_number, hashed_password, role, email_verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (email) DO NOTHING`,
			uuid.NewString(), acc.Name, acc.StdCode, acc.Gender, acc.Email,
			acc.PhoneNumber, string(hashed), acc.Role, acc.EmailVerified,
		)
		if err != nil {
			log.Fatalf("upserting %s: %v", acc.Email, err)
		}
		n, _ := res.RowsAffected()
		upserted += n
	}

	fmt.Printf("done: %d of %d accounts inserted (existing emails skipped)\n", upserted, len(file.Accounts))
}
