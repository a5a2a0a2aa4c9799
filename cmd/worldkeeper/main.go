package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"worldkeeper/utils/logging"
	"worldkeeper/worldkeeper/auth"
	"worldkeeper/worldkeeper/schema"
	"worldkeeper/worldkeeper/services"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type worldKeeperEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	ShareDir    string `env:"SHARE_DIR,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	// Optional yaml file of cross-world entity type templates to seed.
	TemplatePath string `env:"TEMPLATE_PATH"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func (e *worldKeeperEnv) postgresDsn() string {
	parts, err := url.Parse(e.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	var cfg worldKeeperEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing env variables: %v", err)
	}

	err := os.MkdirAll(filepath.Join(cfg.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/worldkeeper.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	logging.InitLogging(logFile, "worldkeeper")

	db := initDb(cfg.postgresDsn())

	if cfg.TemplatePath != "" {
		if err := schema.SeedTemplates(db, cfg.TemplatePath); err != nil {
			log.Fatalf("error seeding entity type templates: %v", err)
		}
	}

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(cfg.JwtSecret),
			AdminUsername: cfg.AdminUsername,
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	worldKeeper := services.NewWorldKeeper(db, identityProvider)

	go worldKeeper.GrantSweep(time.Minute)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", worldKeeper.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	worldKeeper.StopGrantSweep()
}
