package billing

// EventType identifies a metered usage event category
type EventType string

const (
	// EventTypeDocumentUpload counts documents uploaded by a tenant
	EventTypeDocumentUpload EventType = "DOCUMENT_UPLOAD"
	// EventTypeDocumentDownload counts documents downloaded by a tenant
	EventTypeDocumentDownload EventType = "DOCUMENT_DOWNLOAD"
	// EventTypeAPICall counts API requests made by a tenant
	EventTypeAPICall EventType = "API_CALL"
	// EventTypeUserCreation counts users created within a tenant
	EventTypeUserCreation EventType = "USER_CREATION"
	// EventTypeStorageUsage tracks storage consumed, in megabytes
	EventTypeStorageUsage EventType = "STORAGE_USAGE"
	// EventTypeComplianceCheck counts compliance checks executed for a tenant
	EventTypeComplianceCheck EventType = "COMPLIANCE_CHECK"
)

// IsValid checks if the event type is a known metered type
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeDocumentUpload, EventTypeDocumentDownload, EventTypeAPICall,
		EventTypeUserCreation, EventTypeStorageUsage, EventTypeComplianceCheck:
		return true
	}
	return false
}

// String returns the string representation
func (t EventType) String() string {
	return string(t)
}

// Unit returns the unit of measurement for this event type
func (t EventType) Unit() string {
	switch t {
	case EventTypeStorageUsage:
		return "megabytes"
	case EventTypeUserCreation:
		return "users"
	default:
		return "count"
	}
}

// DisplayName returns a human-readable name for this event type
func (t EventType) DisplayName() string {
	switch t {
	case EventTypeDocumentUpload:
		return "Document Uploads"
	case EventTypeDocumentDownload:
		return "Document Downloads"
	case EventTypeAPICall:
		return "API Calls"
	case EventTypeUserCreation:
		return "User Creations"
	case EventTypeStorageUsage:
		return "Storage Usage"
	case EventTypeComplianceCheck:
		return "Compliance Checks"
	default:
		return string(t)
	}
}

// AllEventTypes returns all metered event types
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeDocumentUpload,
		EventTypeDocumentDownload,
		EventTypeAPICall,
		EventTypeUserCreation,
		EventTypeStorageUsage,
		EventTypeComplianceCheck,
	}
}

// ParseEventType parses a string into an EventType
func ParseEventType(s string) (EventType, bool) {
	t := EventType(s)
	return t, t.IsValid()
}
