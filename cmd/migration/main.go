package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"
	"worldkeeper/cmd/migration/versions"

	"github.com/caarlos0/env/v10"
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type migrationEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
}

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from.")
	rollback := flag.Bool("rollback", false, "Roll back the last applied migration instead of migrating forward.")

	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	var cfg migrationEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing env variables: %v", err)
	}

	db, err := gorm.Open(postgres.Open(postgresDsn(cfg.DatabaseUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, versions.All())

	if *rollback {
		if err := m.RollbackLast(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("rollback complete")
		return
	}

	if err := m.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations applied")
}
