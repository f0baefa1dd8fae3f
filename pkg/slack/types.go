package slack

// AlertInfo holds the data needed to build an operational alert notification:
// a billing finalizer failure, account-pool exhaustion, or a poll-timeout
// storm surfaced by the worker fleet.
type AlertInfo struct {
	Kind        string // "billing_failed", "account_exhausted", "poll_timeout_storm"
	Severity    string
	Title       string
	Description string
	WorkspaceID string
	ProviderID  string
}
