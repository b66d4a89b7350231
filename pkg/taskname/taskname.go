package taskname

const (
	// Notification tasks
	NotificationPush = "notification:push"
)
