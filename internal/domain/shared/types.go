package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// EventType names the payloads carried on the ledger topics.
type EventType string

const (
	EventTypeProgressRecorded EventType = "PROGRESS_RECORDED"
	EventTypeChainAlert       EventType = "CHAIN_ALERT"
)

// AlertKind classifies an audit finding.
type AlertKind string

const (
	AlertKindChainBroken    AlertKind = "CHAIN_BROKEN"    // a digest or link does not recompute
	AlertKindTailTruncated  AlertKind = "TAIL_TRUNCATED"  // chain is shorter than an anchored tip
	AlertKindAnchorMismatch AlertKind = "ANCHOR_MISMATCH" // record at an anchored position carries another hash
)
