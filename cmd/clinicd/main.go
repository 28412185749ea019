package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jinzhu/copier"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/wisata-dental/clinic/pkg/broker"
	"github.com/wisata-dental/clinic/pkg/notification"
	"github.com/wisata-dental/clinic/pkg/ratelimit"
	"github.com/wisata-dental/clinic/pkg/staff"
)

type DbConfig struct {
	Host     string `env:"CLINIC_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"CLINIC_PG_PORT" env-default:"5432"`
	Database string `env:"CLINIC_PG_DATABASE" env-default:"clinic_db"`
	User     string `env:"CLINIC_PG_USER" env-default:"clinic"`
	Password string `env:"CLINIC_PG_PASSWORD" env-default:"pwd"`
}

func (d DbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type AssertionConfig struct {
	Secret   string `env:"ASSERTION_SECRET" env-default:"very-secure-assertion-secret"`
	Issuer   string `env:"ASSERTION_ISSUER" env-default:"clinic"`
	Audience string `env:"ASSERTION_AUDIENCE" env-default:"clinic-broker"`
}

type BrokerConfig struct {
	// ServiceAccount is the base64-encoded service credential handed to
	// verified staff. Empty leaves the broker unconfigured and returning
	// 500, which is visible instead of silently wrong.
	ServiceAccount string `env:"SERVICE_ACCOUNT_B64" env-default:""`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:""`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	TLS      bool   `env:"SMTP_TLS" env-default:"true"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"noreply@clinic.local"`
}

type StorageConfig struct {
	// Staff selects the account repository: postgres, file, or memory.
	Staff   string `env:"STAFF_STORE" env-default:"postgres"`
	DataDir string `env:"CLINIC_DATA_DIR" env-default:"./data"`
}

type Config struct {
	DbConfig        DbConfig
	AppConfig       app.AppConfig
	AssertionConfig AssertionConfig
	BrokerConfig    BrokerConfig
	SMTPConfig      SMTPConfig
	StorageConfig   StorageConfig
}

func buildStaffRepository(config Config) (staff.Repository, error) {
	switch config.StorageConfig.Staff {
	case "file":
		return staff.NewFileRepository(config.StorageConfig.DataDir)
	case "memory":
		return staff.NewInMemoryRepository(), nil
	default:
		pool, err := dbutils.NewDbPool(context.Background(), config.DbConfig.toDbConfig())
		if err != nil {
			return nil, err
		}
		return staff.NewPostgresRepository(pool), nil
	}
}

func main() {
	godotenv.Load()

	config := Config{}
	cleanenv.ReadEnv(&config)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	repo, err := buildStaffRepository(config)
	if err != nil {
		slog.Error("Failed to set up staff storage", "store", config.StorageConfig.Staff, "err", err)
		os.Exit(-1)
	}

	assertions := staff.NewAssertionService(
		config.AssertionConfig.Secret,
		config.AssertionConfig.Issuer,
		config.AssertionConfig.Audience,
	)

	staffOptions := []staff.ServiceOption{}
	if config.SMTPConfig.Host != "" {
		var smtp notification.SMTPConfig
		copier.Copy(&smtp, &config.SMTPConfig)
		notices, err := notification.NewManagerWithOptions(
			notification.WithSMTP(smtp),
			notification.WithDefaultTemplates(),
		)
		if err != nil {
			slog.Error("Failed to set up notices", "err", err)
			os.Exit(-1)
		}
		staffOptions = append(staffOptions, staff.WithNotices(notices))
	}

	staffService := staff.NewService(repo, assertions, staffOptions...)
	staffHandler := staff.NewHandler(staffService)

	brokerService, err := broker.NewServiceFromBase64(staffService, config.BrokerConfig.ServiceAccount)
	if err != nil {
		slog.Error("Failed to decode service credential", "err", err)
		os.Exit(-1)
	}
	if !brokerService.Configured() {
		slog.Warn("No service credential configured, staff device setup will fail until SERVICE_ACCOUNT_B64 is set")
	}
	brokerHandler := broker.NewHandler(brokerService)

	limits := ratelimit.NewMiddleware(ratelimit.DefaultConfig())
	tokenAuth := jwtauth.New("HS256", []byte(config.AssertionConfig.Secret), nil)

	server.R.Route("/api/auth", func(r chi.Router) {
		r.Use(limits.Handler)
		staffHandler.RegisterRoutes(r)
		brokerHandler.RegisterRoutes(r)

		// Assertion-protected account listing for the admin screen
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
			r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
				accounts, err := staffService.ListAccounts(r.Context())
				if err != nil {
					slog.Error("Failed to list accounts", "err", err)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				render.JSON(w, r, accounts)
			})
		})
	})

	server.Run()
}
