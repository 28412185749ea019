package notification

// MockNotifier records notices for tests instead of delivering them.
type MockNotifier struct {
	Sent []NotificationData
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.Sent = append(m.Sent, notification)
	return nil
}
