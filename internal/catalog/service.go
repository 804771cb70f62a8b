package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"intertexe/backend/internal/fabric"
	"intertexe/backend/internal/match"
	"intertexe/backend/internal/store"
	"intertexe/backend/internal/telemetry"
)

// ErrInvalidInput marks caller mistakes such as a missing product name.
var ErrInvalidInput = errors.New("invalid input")

// Service evaluates compositions and keeps product verdicts in the store.
type Service struct {
	db      *store.Database
	table   *fabric.Table
	metrics *telemetry.Metrics
}

// NewService wires the store and table. A nil table uses the embedded default and a nil
// metrics value disables instrumentation.
func NewService(db *store.Database, table *fabric.Table, metrics *telemetry.Metrics) *Service {
	if table == nil {
		table = fabric.DefaultTable()
	}
	return &Service{db: db, table: table, metrics: metrics}
}

// Table returns the classification table in use.
func (s *Service) Table() *fabric.Table {
	return s.table
}

// ParseComposition reads free text into main-fabric entries with canonical fiber names.
// Segments the parser could not read are returned alongside.
func (s *Service) ParseComposition(text string) ([]fabric.FiberEntry, []string) {
	parsed := fabric.ParseDetailed(text)
	s.metrics.RecordUnparsed(len(parsed.Unparsed))
	return match.CanonicalEntries(parsed.Entries), parsed.Unparsed
}

// Evaluate scores a composition against the service table.
func (s *Service) Evaluate(c fabric.Composition) fabric.Evaluation {
	start := time.Now()
	result := s.table.Evaluate(c)
	s.metrics.RecordEvaluation(s.table, c, result, time.Since(start))
	return result
}

// ValidateEntries rejects entries whose percent is not a finite value within 0 to 100.
func ValidateEntries(entries []fabric.FiberEntry) error {
	for i, entry := range entries {
		p := entry.Percent
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 100 {
			return fmt.Errorf("%w: entry %d (%s) percent %v outside 0-100", ErrInvalidInput, i+1, entry.Fiber, p)
		}
	}
	return nil
}

// ProductInput describes a product to add. Entries, when present, are used as given and
// are the only way to declare lining; otherwise Composition text is parsed.
type ProductInput struct {
	DesignerSlug string
	DesignerName string
	Name         string
	URL          string
	Composition  string
	Entries      []fabric.FiberEntry
}

// AddProduct evaluates and stores a new product. The designer is looked up by slug (or
// by the slug of DesignerName) and created when only a name is supplied.
func (s *Service) AddProduct(in ProductInput) (*store.Product, fabric.Evaluation, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fabric.Evaluation{}, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}

	if err := ValidateEntries(in.Entries); err != nil {
		return nil, fabric.Evaluation{}, err
	}

	designer, err := s.resolveDesigner(in.DesignerSlug, in.DesignerName)
	if err != nil {
		return nil, fabric.Evaluation{}, err
	}

	entries := match.CanonicalEntries(in.Entries)
	if len(entries) == 0 {
		if strings.TrimSpace(in.Composition) == "" {
			return nil, fabric.Evaluation{}, fmt.Errorf("%w: composition text or entries required", ErrInvalidInput)
		}
		entries, _ = s.ParseComposition(in.Composition)
	}

	result := s.Evaluate(fabric.Composition{ProductName: name, Compositions: entries})
	product := &store.Product{
		DesignerID:      designer.ID,
		Name:            name,
		URL:             strings.TrimSpace(in.URL),
		CompositionText: strings.TrimSpace(in.Composition),
	}
	product.SetEntries(entries)
	product.ApplyEvaluation(result, time.Now().UTC())
	if err := s.db.CreateProduct(product); err != nil {
		return nil, fabric.Evaluation{}, fmt.Errorf("save product %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"product_id":      product.ID,
		"designer":        designer.Slug,
		"approved":        result.Approved,
		"natural_percent": result.NaturalPercent,
	}).Debug("product evaluated")
	return product, result, nil
}

// ReevaluateProduct scores a stored product again against the current table.
func (s *Service) ReevaluateProduct(id uint) (*store.Product, fabric.Evaluation, error) {
	product, err := s.db.GetProduct(id)
	if err != nil {
		return nil, fabric.Evaluation{}, err
	}
	entries := product.Entries()
	if len(entries) == 0 && product.CompositionText != "" {
		entries, _ = s.ParseComposition(product.CompositionText)
		product.SetEntries(entries)
	}
	result := s.Evaluate(fabric.Composition{ProductName: product.Name, Compositions: entries})
	product.ApplyEvaluation(result, time.Now().UTC())
	if err := s.db.UpdateProductEvaluation(product); err != nil {
		return nil, fabric.Evaluation{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return product, result, nil
}

// Progress reports the state of a catalog re-evaluation.
type Progress struct {
	Processed int
	Total     int
	Approved  int
	Product   *store.Product
}

// Reevaluate re-scores every stored product, invoking progress after each one. It stops
// early when ctx is cancelled and returns the progress reached so far.
func (s *Service) Reevaluate(ctx context.Context, progress func(Progress)) (Progress, error) {
	ids, err := s.db.ProductIDs()
	if err != nil {
		return Progress{}, fmt.Errorf("list products: %w", err)
	}

	state := Progress{Total: len(ids)}
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		product, result, err := s.ReevaluateProduct(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logrus.WithField("product_id", id).Warn("product removed during re-evaluation")
				state.Total--
				continue
			}
			return state, err
		}
		state.Processed++
		if result.Approved {
			state.Approved++
		}
		state.Product = product
		if progress != nil {
			progress(state)
		}
	}
	state.Product = nil
	return state, nil
}

func (s *Service) resolveDesigner(slug, name string) (*store.Designer, error) {
	slug = strings.TrimSpace(slug)
	name = strings.TrimSpace(name)
	if slug == "" && name == "" {
		return nil, fmt.Errorf("%w: designer is required", ErrInvalidInput)
	}
	key := slug
	if key == "" {
		key = store.Slugify(name)
	}
	designer, err := s.db.GetDesigner(key)
	if err == nil {
		return designer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("designer %s: %w", slug, store.ErrNotFound)
	}
	designer = &store.Designer{Name: name, Slug: key}
	if err := s.db.SaveDesigner(designer); err != nil {
		return nil, fmt.Errorf("save designer %s: %w", name, err)
	}
	logrus.WithField("designer", designer.Slug).Info("created designer")
	return designer, nil
}
