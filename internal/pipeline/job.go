package pipeline

// Job is one voicemail notification accepted for processing. The webhook
// fills the four notification fields; the pipeline populates the rest as
// stages complete. A job lives for exactly one Process call and is never
// persisted.
type Job struct {
	Alias       string // mailbox alias, e.g. "helpdesk@example.com"
	DisplayName string
	MessageID   string // opaque PBX message identifier, scoped to the mailbox
	CallerANI   string

	// Populated mid-pipeline.
	UserObjectID string // PBX internal user identifier resolved from Alias
	LocalPath    string // downloaded wav on the spool directory
	RemoteKey    string // scratch object key, derived from MessageID
	Transcript   string
}
