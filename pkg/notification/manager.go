package notification

import (
	"fmt"
)

// System is a delivery channel for notices.
type System string

const (
	EmailSystem System = "email"
)

// Manager routes notices to registered notifiers using registered
// templates.
type Manager struct {
	notifiers map[System]Notifier
	templates map[NoticeType]map[System]NoticeTemplate
}

func NewManager() *Manager {
	return &Manager{
		notifiers: make(map[System]Notifier),
		templates: make(map[NoticeType]map[System]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a delivery system.
func (m *Manager) RegisterNotifier(system System, notifier Notifier) {
	m.notifiers[system] = notifier
}

// RegisterNotice adds or replaces the template for a notice type on a
// system.
func (m *Manager) RegisterNotice(noticeType NoticeType, system System, template NoticeTemplate) error {
	if noticeType == "" || system == "" {
		return fmt.Errorf("notice type and system cannot be empty")
	}
	if _, ok := m.templates[noticeType]; !ok {
		m.templates[noticeType] = make(map[System]NoticeTemplate)
	}
	m.templates[noticeType][system] = template
	return nil
}

// Send delivers a notice over the given system.
func (m *Manager) Send(noticeType NoticeType, system System, notification NotificationData) error {
	systemTemplates, ok := m.templates[noticeType]
	if !ok {
		return fmt.Errorf("no templates registered for notice type: %s", noticeType)
	}
	template, ok := systemTemplates[system]
	if !ok {
		return fmt.Errorf("no template registered for system %s under notice type %s", system, noticeType)
	}
	notifier, ok := m.notifiers[system]
	if !ok {
		return fmt.Errorf("no notifier registered for system: %s", system)
	}
	return notifier.Send(noticeType, notification, template)
}
