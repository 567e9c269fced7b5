package model

// AutostartEntry is one persisted (platform, account, enabled) triple
// the autostart coordinator (C9) reads at boot. CredentialID names which
// stored credential that account's runtime should start with.
// AutoReconnect and EnableIncoming are that runtime's RuntimeOptions,
// persisted so a bot-only account stays configured the same way across
// restarts.
type AutostartEntry struct {
	Platform       string
	Account        string
	CredentialID   string
	Enabled        bool
	AutoReconnect  bool
	EnableIncoming bool
}

// Options returns this entry's persisted RuntimeOptions.
func (e AutostartEntry) Options() RuntimeOptions {
	return RuntimeOptions{AutoReconnect: e.AutoReconnect, EnableIncoming: e.EnableIncoming}
}
