package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/wisata-dental/clinic/pkg/broker"
	"github.com/wisata-dental/clinic/pkg/exchange"
	"github.com/wisata-dental/clinic/pkg/loginflow"
	"github.com/wisata-dental/clinic/pkg/patient"
	"github.com/wisata-dental/clinic/pkg/secretwrap"
	"github.com/wisata-dental/clinic/pkg/session"
	"github.com/wisata-dental/clinic/pkg/sheets"
	"github.com/wisata-dental/clinic/pkg/staff"
	"github.com/wisata-dental/clinic/pkg/treatment"
	"github.com/wisata-dental/clinic/pkg/vault"
)

type Config struct {
	ServerURL string `env:"CLINIC_SERVER_URL" env-default:"http://localhost:4000"`
	DataDir   string `env:"CLINIC_DATA_DIR" env-default:""`
}

func dataDir(config Config) string {
	if config.DataDir != "" {
		return config.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".clinic")
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func main() {
	godotenv.Load()

	config := Config{}
	cleanenv.ReadEnv(&config)

	vaultRepo, err := vault.NewFileRepository(filepath.Join(dataDir(config), "vault.json"))
	if err != nil {
		slog.Error("Failed to open device storage", "err", err)
		os.Exit(-1)
	}

	manager := exchange.NewManager(exchange.NewExchanger())
	sheetsClient := sheets.NewClient(manager)

	flow := loginflow.NewFlow(
		staff.NewClient(config.ServerURL),
		broker.NewClient(config.ServerURL),
		sheetsClient,
		manager,
		secretwrap.NewWrapper(),
		vaultRepo,
		session.NewService(session.NewInMemRepository()),
	)

	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	if err := flow.Resume(ctx); err != nil {
		slog.Warn("Could not resume previous sign-in", "err", err)
	}

	for flow.State() != loginflow.StateReady {
		switch flow.State() {
		case loginflow.StateLogin:
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			if err := flow.SubmitStaffCredentials(ctx, email, password); err != nil {
				fmt.Println("Sign-in failed:", err)
			}

		case loginflow.StatePinSetup:
			pin := prompt(reader, "Choose a PIN for this device: ")
			if err := flow.SubmitPIN(ctx, pin); err != nil {
				fmt.Println("Setup failed:", err)
			}

		case loginflow.StatePinCheck:
			label := fmt.Sprintf("PIN for %s: ", flow.Email())
			if err := flow.SubmitPIN(ctx, prompt(reader, label)); err != nil {
				fmt.Println("Unlock failed:", err)
			}
			if flow.ResetOffered() {
				answer := prompt(reader, "Too many wrong PINs. Discard the saved credential and start over? [y/N] ")
				if strings.EqualFold(answer, "y") {
					if err := flow.ConfirmReset(ctx); err != nil {
						fmt.Println("Reset failed:", err)
					}
				}
			}

		case loginflow.StateDocumentSelect:
			docs, err := flow.Documents(ctx)
			if err != nil {
				fmt.Println("Could not list documents:", err)
				continue
			}
			for i, doc := range docs {
				fmt.Printf("%2d. %s (%s)\n", i+1, doc.Name, doc.ID)
			}
			choice := prompt(reader, "Document number, or a title to create a new one: ")
			var picked string
			for i, doc := range docs {
				if fmt.Sprint(i+1) == choice {
					picked = doc.ID
					break
				}
			}
			if picked != "" {
				err = flow.SelectDocument(ctx, picked)
			} else {
				err = flow.CreateDocument(ctx, choice)
			}
			if err != nil {
				fmt.Println("Document selection failed:", err)
			}
		}
	}

	sess := flow.Session()
	fmt.Printf("Signed in as %s (%s), document %s\n", flow.Email(), sess.Role, sess.DocumentID)

	patients, err := patient.NewService(sheetsClient).List(ctx, sess.DocumentID)
	if err != nil {
		slog.Error("Failed to read patients", "err", err)
		os.Exit(-1)
	}
	fmt.Printf("%d patients on file\n", len(patients))
	for _, p := range patients {
		fmt.Printf("  %s  %s\n", p.ID, p.Name)
	}

	now := time.Now()
	monthly, err := treatment.NewService(sheetsClient).ListByMonth(ctx, sess.DocumentID, now.Year(), now.Month())
	if err != nil {
		slog.Error("Failed to read treatments", "err", err)
		os.Exit(-1)
	}
	var revenue float64
	for _, tr := range monthly {
		revenue += tr.Price
	}
	fmt.Printf("%s: %d treatments, %.2f total\n", now.Format("January 2006"), len(monthly), revenue)
}
