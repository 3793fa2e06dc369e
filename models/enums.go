package models

type BankLinkStatus string

const (
	BankLinkStatusOK            BankLinkStatus = "OK"
	BankLinkStatusError         BankLinkStatus = "ERROR"
	BankLinkStatusPendingReauth BankLinkStatus = "PENDING_REAUTH"
)

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusCompleted WebhookStatus = "COMPLETED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

type SnapshotType string

const (
	SnapshotTypeSync        SnapshotType = "SYNC"
	SnapshotTypeUserUpdate  SnapshotType = "USER_UPDATE"
	SnapshotTypeForwardFill SnapshotType = "FORWARD_FILL"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual  = "manual"
	SyncTriggeredWebhook = "webhook"
	SyncTriggeredSystem  = "system"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
)
