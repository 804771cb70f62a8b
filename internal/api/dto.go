package api

import (
	"math"
	"time"

	"intertexe/backend/internal/catalog"
	"intertexe/backend/internal/fabric"
	"intertexe/backend/internal/store"
)

// ClassifyRequest carries a single fiber name.
type ClassifyRequest struct {
	Fiber string `json:"fiber"`
}

// ClassifyResponse reports the category of a fiber name.
type ClassifyResponse struct {
	Fiber           string          `json:"fiber"`
	Canonical       string          `json:"canonical"`
	Category        fabric.Category `json:"category"`
	Matched         string          `json:"matched,omitempty"`
	Recognized      bool            `json:"recognized"`
	LiningException bool            `json:"lining_exception"`
}

// ParseRequest carries free composition text.
type ParseRequest struct {
	Text string `json:"text"`
}

// EvaluateRequest accepts either structured entries or free text.
type EvaluateRequest struct {
	ProductName  string              `json:"product_name"`
	Text         string              `json:"text"`
	Compositions []fabric.FiberEntry `json:"compositions"`
}

// EvaluateResponse is the verdict together with the entries that were evaluated.
type EvaluateResponse struct {
	fabric.Evaluation
	ProductName string              `json:"product_name,omitempty"`
	Entries     []fabric.FiberEntry `json:"entries"`
	Unparsed    []string            `json:"unparsed,omitempty"`
}

// ConfigResponse describes the active classification table.
type ConfigResponse struct {
	Policy           fabric.Policy                `json:"policy"`
	Categories       map[fabric.Category][]string `json:"categories"`
	LiningExceptions []string                     `json:"lining_exceptions"`
	FiberTablePath   string                       `json:"fiber_table_path"`
	Products         int64                        `json:"products"`
}

// DesignerRequest creates or updates a designer.
type DesignerRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Website     string `json:"website"`
	Description string `json:"description"`
}

// DesignerDTO is the API representation of a designer.
type DesignerDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DesignersResponse is the paginated designer listing.
type DesignersResponse struct {
	Items []DesignerDTO `json:"items"`
	Total int64         `json:"total"`
}

// DesignerSummaryDTO aggregates product verdicts per designer.
type DesignerSummaryDTO struct {
	Slug           string  `json:"slug"`
	Name           string  `json:"name"`
	Products       int     `json:"products"`
	Approved       int     `json:"approved"`
	ApprovedShare  float64 `json:"approved_share"`
	AverageNatural float64 `json:"average_natural_percent"`
}

// ProductRequest adds a product; Compositions takes precedence over Composition text.
type ProductRequest struct {
	Designer     string              `json:"designer"`
	DesignerName string              `json:"designer_name"`
	Name         string              `json:"name"`
	URL          string              `json:"url"`
	Composition  string              `json:"composition"`
	Compositions []fabric.FiberEntry `json:"compositions"`
}

// ProductDTO is the API representation of a product and its verdict.
type ProductDTO struct {
	ID               uint                `json:"id"`
	DesignerID       uint                `json:"designer_id"`
	Name             string              `json:"name"`
	URL              string              `json:"url,omitempty"`
	Composition      string              `json:"composition,omitempty"`
	Entries          []fabric.FiberEntry `json:"entries"`
	Approved         bool                `json:"approved"`
	NaturalPercent   float64             `json:"natural_percent"`
	SyntheticPercent float64             `json:"synthetic_percent"`
	Reasons          []string            `json:"reasons"`
	EvaluatedAt      *time.Time          `json:"evaluated_at"`
	CreatedAt        time.Time           `json:"created_at"`
}

// ProductsResponse is the paginated product listing.
type ProductsResponse struct {
	Items []ProductDTO `json:"items"`
	Total int64        `json:"total"`
}

// StartReevaluationResponse describes the asynchronous re-evaluation kickoff payload.
type StartReevaluationResponse struct {
	JobID     string    `json:"job_id"`
	Total     int64     `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// ReevaluationStatusResponse reports the running or most recent re-evaluation job.
type ReevaluationStatusResponse struct {
	Running   bool   `json:"running"`
	JobID     string `json:"job_id,omitempty"`
	State     string `json:"state,omitempty"`
	Message   string `json:"message,omitempty"`
	Processed int    `json:"processed"`
	Approved  int    `json:"approved"`
	Total     int64  `json:"total"`
}

// UploadResponse reports the outcome of a CSV upload.
type UploadResponse struct {
	catalog.ImportResult
	Filename string `json:"filename"`
}

// DesignerFromModel converts a store.Designer into its DTO.
func DesignerFromModel(d store.Designer) DesignerDTO {
	return DesignerDTO{
		ID:          d.ID,
		Name:        d.Name,
		Slug:        d.Slug,
		Website:     d.Website,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
}

// SummaryFromModel converts a store.DesignerSummary into its DTO.
func SummaryFromModel(s store.DesignerSummary) DesignerSummaryDTO {
	dto := DesignerSummaryDTO{
		Slug:           s.Slug,
		Name:           s.Name,
		Products:       s.Products,
		Approved:       s.Approved,
		AverageNatural: round2(s.AverageNatural),
	}
	if s.Products > 0 {
		dto.ApprovedShare = round2(float64(s.Approved) / float64(s.Products))
	}
	return dto
}

// ProductFromModel converts a store.Product into its DTO.
func ProductFromModel(p store.Product) ProductDTO {
	entries := p.Entries()
	if entries == nil {
		entries = []fabric.FiberEntry{}
	}
	reasons := p.Reasons()
	if reasons == nil {
		reasons = []string{}
	}
	return ProductDTO{
		ID:               p.ID,
		DesignerID:       p.DesignerID,
		Name:             p.Name,
		URL:              p.URL,
		Composition:      p.CompositionText,
		Entries:          entries,
		Approved:         p.Approved,
		NaturalPercent:   p.NaturalPercent,
		SyntheticPercent: p.SyntheticPercent,
		Reasons:          reasons,
		EvaluatedAt:      p.EvaluatedAt,
		CreatedAt:        p.CreatedAt,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
