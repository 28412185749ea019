package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager) error

// WithSMTP adds an email notifier with the provided SMTP configuration.
func WithSMTP(config SMTPConfig) ManagerOption {
	return func(m *Manager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		m.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithStaffWelcomeTemplate registers the account creation notice.
func WithStaffWelcomeTemplate() ManagerOption {
	return func(m *Manager) error {
		return m.RegisterNotice(StaffWelcome, EmailSystem, NoticeTemplate{
			Subject: "Your clinic account",
			Html:    loadTemplate("templates/email/staff_welcome.html"),
		})
	}
}

// WithAccountLockedTemplate registers the lockout notice.
func WithAccountLockedTemplate() ManagerOption {
	return func(m *Manager) error {
		return m.RegisterNotice(AccountLocked, EmailSystem, NoticeTemplate{
			Subject: "Your account was locked",
			Html:    loadTemplate("templates/email/account_locked.html"),
		})
	}
}

// WithPinResetDoneTemplate registers the PIN reset notice.
func WithPinResetDoneTemplate() ManagerOption {
	return func(m *Manager) error {
		return m.RegisterNotice(PinResetDone, EmailSystem, NoticeTemplate{
			Subject: "Device credential reset",
			Html:    loadTemplate("templates/email/pin_reset_done.html"),
		})
	}
}

// WithDefaultTemplates registers every notice template.
func WithDefaultTemplates() ManagerOption {
	return func(m *Manager) error {
		options := []ManagerOption{
			WithStaffWelcomeTemplate(),
			WithAccountLockedTemplate(),
			WithPinResetDoneTemplate(),
		}
		for _, option := range options {
			if err := option(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewManagerWithOptions creates a manager and applies the options.
func NewManagerWithOptions(options ...ManagerOption) (*Manager, error) {
	m := NewManager()
	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}
