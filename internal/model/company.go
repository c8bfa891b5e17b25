package model

import (
	"time"
)

// Lifecycle is the tombstone state of an entity.
type Lifecycle string

const (
	LifecycleLive       Lifecycle = "live"
	LifecycleTombstoned Lifecycle = "tombstoned"
)

// Company is a firm-level entity that enforces domain (or normalized-name)
// uniqueness independent of how many executive records point at it.
type Company struct {
	ID             string     `json:"id"`
	CompanyName    string     `json:"companyName"`
	Domain         string     `json:"domain"`
	NormalizedName string     `json:"normalizedName"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// Lifecycle reports whether the company has been merged away.
func (c Company) Lifecycle() Lifecycle {
	if c.DeletedAt != nil {
		return LifecycleTombstoned
	}
	return LifecycleLive
}

// CompanyMergeLog is the append-only audit entry for one merge, dry-run or
// applied.
type CompanyMergeLog struct {
	ID                 string        `json:"id"`
	Domain             string        `json:"domain"`
	CanonicalCompanyID string        `json:"canonicalCompanyId"`
	MergedCompanyIDs   []string      `json:"mergedCompanyIds"`
	Before             MergeSnapshot `json:"before"`
	After              Company       `json:"after"`
	DryRun             bool          `json:"dryRun"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// MergeSnapshot captures participants before a merge.
type MergeSnapshot struct {
	Canonical Company   `json:"canonical"`
	Dupes     []Company `json:"dupes"`
}
