package model

import "time"

// CaseStatus tracks an investigation case through its lifecycle.
// Archived is the terminal soft state; cases are never auto-deleted.
type CaseStatus string

const (
	CaseActive     CaseStatus = "active"
	CaseMonitoring CaseStatus = "monitoring"
	CaseArchived   CaseStatus = "archived"
)

// Valid reports whether s is a known case status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseActive, CaseMonitoring, CaseArchived:
		return true
	}
	return false
}

// EntityType classifies a discovered identifier.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityPhone        EntityType = "phone"
	EntityEmail        EntityType = "email"
	EntityUsername     EntityType = "username"
	EntityWallet       EntityType = "wallet"
	EntityVehicle      EntityType = "vehicle"
	EntityIMEI         EntityType = "imei"
	EntityDomain       EntityType = "domain"
	EntityIP           EntityType = "ip"
	EntityOrganization EntityType = "organization"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityPhone, EntityEmail, EntityUsername, EntityWallet,
		EntityVehicle, EntityIMEI, EntityDomain, EntityIP, EntityOrganization:
		return true
	}
	return false
}

// RiskLevel is the categorical severity tag on an entity.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskUnknown, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Flagged reports whether r warrants an alert on a monitored case.
func (r RiskLevel) Flagged() bool {
	return r == RiskHigh || r == RiskCritical
}

// RelationshipType is the fixed vocabulary for entity edges.
type RelationshipType string

const (
	RelOwns      RelationshipType = "owns"
	RelAssoc     RelationshipType = "associated"
	RelContacted RelationshipType = "contacted"
	RelLinked    RelationshipType = "linked"
	RelWorksWith RelationshipType = "works_with"
	RelRelatedTo RelationshipType = "related_to"
	RelControls  RelationshipType = "controls"
	RelFinances  RelationshipType = "finances"
)

// Valid reports whether t is in the relationship vocabulary.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelOwns, RelAssoc, RelContacted, RelLinked, RelWorksWith,
		RelRelatedTo, RelControls, RelFinances:
		return true
	}
	return false
}

// SearchType names a search category. Categories mirror the provider
// configuration groups plus the key-less built-in lookups.
type SearchType string

const (
	SearchNIK      SearchType = "nik"
	SearchName     SearchType = "name"
	SearchPhone    SearchType = "phone"
	SearchEmail    SearchType = "email"
	SearchUsername SearchType = "username"
	SearchIMEI     SearchType = "imei"
	SearchCrypto   SearchType = "crypto"
	SearchVehicle  SearchType = "vehicle"
	SearchBreach   SearchType = "breach"
	SearchDomain   SearchType = "domain"
	SearchIP       SearchType = "ip"
)

// Valid reports whether t is a known search category.
func (t SearchType) Valid() bool {
	switch t {
	case SearchNIK, SearchName, SearchPhone, SearchEmail, SearchUsername,
		SearchIMEI, SearchCrypto, SearchVehicle, SearchBreach, SearchDomain, SearchIP:
		return true
	}
	return false
}

// Case is the top-level container scoping entities, relationships, and
// notes for one investigation.
type Case struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      CaseStatus `json:"status"`
	Tags        []string   `json:"tags"`
	Notes       string     `json:"notes"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CaseUpdate carries a partial update; nil fields are left untouched.
// Version, when set, guards against stale writes.
type CaseUpdate struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Status      *CaseStatus `json:"status"`
	Tags        *[]string   `json:"tags"`
	Notes       *string     `json:"notes"`
	Version     *int64      `json:"version"`
}

// CaseFilter selects cases for listing.
type CaseFilter struct {
	Status CaseStatus
	// Query matches a case-insensitive substring of title or description.
	Query string
}

// Entity is a discovered identifier tracked within a case. An entity
// always belongs to exactly one case.
type Entity struct {
	ID                string            `json:"id"`
	CaseID            string            `json:"caseId"`
	Type              EntityType        `json:"type"`
	Label             string            `json:"label"`
	Notes             string            `json:"notes"`
	RiskLevel         RiskLevel         `json:"riskLevel"`
	ConfidenceScore   int               `json:"confidenceScore"`
	Tags              []string          `json:"tags"`
	SourceAttribution string            `json:"sourceAttribution"`
	Data              map[string]string `json:"data"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// EntityUpdate carries a partial entity update; nil fields are untouched.
type EntityUpdate struct {
	Label             *string            `json:"label"`
	Notes             *string            `json:"notes"`
	RiskLevel         *RiskLevel         `json:"riskLevel"`
	ConfidenceScore   *int               `json:"confidenceScore"`
	Tags              *[]string          `json:"tags"`
	SourceAttribution *string            `json:"sourceAttribution"`
	Data              *map[string]string `json:"data"`
	Version           *int64             `json:"version"`
}

// EntityRelationship is a directed, typed, strength-weighted edge between
// two entities of the same case.
type EntityRelationship struct {
	ID               string           `json:"id"`
	SourceEntityID   string           `json:"sourceEntityId"`
	TargetEntityID   string           `json:"targetEntityId"`
	RelationshipType RelationshipType `json:"relationshipType"`
	Strength         int              `json:"strength"`
	Notes            string           `json:"notes"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// SearchHistory is an immutable log row for one executed search.
// CreatedAt is always stamped server-side.
type SearchHistory struct {
	ID          string     `json:"id"`
	SearchType  SearchType `json:"searchType"`
	SearchQuery string     `json:"searchQuery"`
	ResultCount int        `json:"resultCount"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HistoryFilter selects search-history rows.
type HistoryFilter struct {
	Type SearchType
	// Since excludes rows created before it; zero means no lower bound.
	Since time.Time
	// Limit caps the number of rows; zero means no cap.
	Limit int
}

// APIConfig is a credential record for one provider in one category.
// The key is write-only: it never appears in API responses or logs.
type APIConfig struct {
	ID            string     `json:"id"`
	Category      SearchType `json:"category"`
	ProviderName  string     `json:"providerName"`
	APIKey        string     `json:"-"`
	BaseURL       string     `json:"baseUrl"`
	QuotaLimit    int        `json:"quotaLimit"`
	RequestsToday int        `json:"requestsToday"`
	IsActive      bool       `json:"isActive"`
	LastSync      *time.Time `json:"lastSync"`
	ErrorLog      string     `json:"errorLog"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// RedactedKey returns a display form of the API key: the last four
// characters behind a fixed mask, or the mask alone for short keys.
func (c *APIConfig) RedactedKey() string {
	const mask = "****"
	if len(c.APIKey) <= 4 {
		return mask
	}
	return mask + c.APIKey[len(c.APIKey)-4:]
}

// APIConfigUpdate carries a partial config update.
type APIConfigUpdate struct {
	IsActive   *bool   `json:"isActive"`
	BaseURL    *string `json:"baseUrl"`
	QuotaLimit *int    `json:"quotaLimit"`
	APIKey     *string `json:"apiKey"`
}

// Activity actions recorded on the case timeline.
const (
	ActivityEntityAdded         = "entity_added"
	ActivityEntityRemoved       = "entity_removed"
	ActivityRelationshipAdded   = "relationship_added"
	ActivityRelationshipRemoved = "relationship_removed"
	ActivityNotesUpdated        = "notes_updated"
	ActivityStatusChanged       = "status_changed"
)

// CaseActivity is one append-only timeline row for a case.
type CaseActivity struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"caseId"`
	Action    string    `json:"action"`
	TargetID  string    `json:"targetId"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchResult is one hit returned by a provider.
type SearchResult struct {
	Type       EntityType        `json:"type"`
	Title      string            `json:"title"`
	Subtitle   string            `json:"subtitle,omitempty"`
	Source     string            `json:"source"`
	Confidence int               `json:"confidence"`
	Data       map[string]string `json:"data,omitempty"`
}

// Stats is the dashboard aggregate payload.
type Stats struct {
	TotalCases    int `json:"totalCases"`
	TotalEntities int `json:"totalEntities"`
	TotalSearches int `json:"totalSearches"`
	ActiveAlerts  int `json:"activeAlerts"`
}
