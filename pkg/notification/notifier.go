package notification

// NoticeType identifies a kind of notice sent to clinic staff.
type NoticeType string

const (
	// StaffWelcome is sent when an account is created for a staff member.
	StaffWelcome NoticeType = "staff_welcome"
	// AccountLocked is sent when repeated failed sign-ins lock an account.
	AccountLocked NoticeType = "account_locked"
	// PinResetDone is sent after a staff member discards their wrapped
	// credential and completes a fresh device setup.
	PinResetDone NoticeType = "pin_reset_done"
)

// NoticeTemplate holds the subject and body templates for one notice on
// one delivery system.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// NotificationData is the payload for a single notice.
type NotificationData struct {
	To   string
	Data map[string]string
}

// Notifier delivers a rendered notice over one system.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
