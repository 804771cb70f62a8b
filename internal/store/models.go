package store

import (
	"encoding/json"
	"strings"
	"time"

	"intertexe/backend/internal/fabric"
)

// Designer is a brand whose products are listed in the catalog.
type Designer struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:255;index"`
	Slug        string `gorm:"size:255;uniqueIndex"`
	Website     string `gorm:"size:512"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a garment with its declared composition and the latest evaluation verdict.
type Product struct {
	ID               uint   `gorm:"primaryKey"`
	DesignerID       uint   `gorm:"index"`
	Name             string `gorm:"size:255;index"`
	URL              string `gorm:"size:1024"`
	CompositionText  string `gorm:"type:text"`
	CompositionJSON  string `gorm:"type:text"`
	Approved         bool   `gorm:"index"`
	NaturalPercent   float64
	SyntheticPercent float64
	ReasonsJSON      string `gorm:"type:text"`
	EvaluatedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DesignerSummary aggregates product verdicts per designer.
type DesignerSummary struct {
	DesignerID     uint
	Name           string
	Slug           string
	Products       int
	Approved       int
	AverageNatural float64
}

// SetEntries persists the structured composition as JSON.
func (p *Product) SetEntries(entries []fabric.FiberEntry) {
	if entries == nil {
		p.CompositionJSON = "[]"
		return
	}
	payload, _ := json.Marshal(entries)
	p.CompositionJSON = string(payload)
}

// Entries returns the decoded composition entries.
func (p *Product) Entries() []fabric.FiberEntry {
	if strings.TrimSpace(p.CompositionJSON) == "" {
		return nil
	}
	var out []fabric.FiberEntry
	if err := json.Unmarshal([]byte(p.CompositionJSON), &out); err != nil {
		return nil
	}
	return out
}

// ApplyEvaluation copies a verdict onto the product.
func (p *Product) ApplyEvaluation(e fabric.Evaluation, at time.Time) {
	p.Approved = e.Approved
	p.NaturalPercent = e.NaturalPercent
	p.SyntheticPercent = e.SyntheticPercent
	payload, _ := json.Marshal(e.Reasons)
	p.ReasonsJSON = string(payload)
	p.EvaluatedAt = &at
}

// Reasons returns the decoded evaluation reasons.
func (p *Product) Reasons() []string {
	if strings.TrimSpace(p.ReasonsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(p.ReasonsJSON), &out); err != nil {
		return nil
	}
	return out
}
