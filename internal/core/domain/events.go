package domain

type Topic string

// Локальные топики шины, на провод не попадают
const (
	TopicDraftRequested  Topic = "rule-draft-requested"
	TopicSaveRequested   Topic = "rule-save-requested"
	TopicEditRequested   Topic = "rule-edit-requested"
	TopicRemoveRequested Topic = "rule-remove-requested"
	TopicRulesUpdated    Topic = "rule-set-updated"
	TopicRulesApplied    Topic = "rule-set-applied"
	TopicAlarmInfo       Topic = "alarm-info-updated"
	TopicSyncState       Topic = "sync-state-changed"
)

// Намерения передаются по указателю: обработчик хранилища записывает
// в них результат, publish синхронный.

type DraftIntent struct {
	Rule Rule
	Err  error
}

type SaveIntent struct {
	Serial int
	Fields RuleFields
	Rule   Rule
	Err    error
}

type EditIntent struct {
	Serial int
	Err    error
}

type RemoveIntent struct {
	Serial int
	Err    error
}

// RulesEvent несет копию правил; для rule-set-updated только сохраненные
type RulesEvent struct {
	Rules []Rule
}

type SyncState string

const (
	SyncStateIdle            SyncState = "idle"
	SyncStateAwaitingStartup SyncState = "awaiting-startup"
	SyncStateSynced          SyncState = "synced"
	SyncStateRetrying        SyncState = "retrying"
	SyncStateDisconnected    SyncState = "disconnected"
)

type SyncStatus struct {
	State     SyncState `json:"state"`
	LastError string    `json:"lastError,omitempty"`
}
