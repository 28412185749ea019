package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/wisata-dental/clinic/pkg/staff"
)

type DbConfig struct {
	Host     string `env:"CLINIC_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"CLINIC_PG_PORT" env-default:"5432"`
	Database string `env:"CLINIC_PG_DATABASE" env-default:"clinic_db"`
	User     string `env:"CLINIC_PG_USER" env-default:"clinic"`
	Password string `env:"CLINIC_PG_PASSWORD" env-default:"pwd"`
}

type Config struct {
	DbConfig DbConfig
	Staff    string `env:"STAFF_STORE" env-default:"postgres"`
	DataDir  string `env:"CLINIC_DATA_DIR" env-default:"./data"`
	Clinic   string `env:"CLINIC_NAME" env-default:""`
}

func main() {
	godotenv.Load()

	config := Config{}
	cleanenv.ReadEnv(&config)

	email := flag.String("email", "", "staff email address")
	name := flag.String("name", "", "staff display name")
	password := flag.String("password", "", "initial password")
	rate := flag.Float64("commission-rate", 0, "commission rate between 0 and 1")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	var repo staff.Repository
	var err error
	switch config.Staff {
	case "file":
		repo, err = staff.NewFileRepository(config.DataDir)
	case "memory":
		slog.Error("Memory storage cannot be seeded from a separate process")
		os.Exit(-1)
	default:
		pool, poolErr := dbutils.NewDbPool(context.Background(), dbutils.DbConfig{
			Host:     config.DbConfig.Host,
			Port:     config.DbConfig.Port,
			Database: config.DbConfig.Database,
			User:     config.DbConfig.User,
			Password: config.DbConfig.Password,
		})
		if poolErr != nil {
			slog.Error("Failed to connect to database", "err", poolErr)
			os.Exit(-1)
		}
		defer pool.Close()
		repo = staff.NewPostgresRepository(pool)
	}
	if err != nil {
		slog.Error("Failed to open staff storage", "err", err)
		os.Exit(-1)
	}

	assertions := staff.NewAssertionService("unused", "clinic", "clinic-broker")
	service := staff.NewService(repo, assertions)

	account, err := service.CreateAccount(context.Background(), staff.CreateAccountParams{
		Email:          *email,
		Name:           *name,
		Password:       *password,
		CommissionRate: *rate,
		ClinicName:     config.Clinic,
	})
	if err != nil {
		slog.Error("Failed to create staff account", "err", err)
		os.Exit(-1)
	}
	slog.Info("Created staff account", "id", account.ID, "email", account.Email)
}
