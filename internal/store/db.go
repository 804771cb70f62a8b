package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Designer{}, &Product{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Slugify derives the designer key from a display name.
func Slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

// SaveDesigner inserts or updates the designer keyed by slug. The slug is derived from the
// name when empty.
func (d *Database) SaveDesigner(designer *Designer) error {
	if designer == nil {
		return errors.New("designer is nil")
	}
	designer.Name = strings.TrimSpace(designer.Name)
	if designer.Slug == "" {
		designer.Slug = Slugify(designer.Name)
	} else {
		designer.Slug = Slugify(designer.Slug)
	}
	if designer.Slug == "" {
		return errors.New("designer name is required")
	}
	// Omitted optional fields keep their stored values on conflict.
	columns := []string{"name", "updated_at"}
	if strings.TrimSpace(designer.Website) != "" {
		columns = append(columns, "website")
	}
	if strings.TrimSpace(designer.Description) != "" {
		columns = append(columns, "description")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(designer).Error; err != nil {
		return err
	}
	var stored Designer
	if err := d.gorm.Where("slug = ?", designer.Slug).First(&stored).Error; err != nil {
		return err
	}
	*designer = stored
	return nil
}

// GetDesigner retrieves a designer by slug.
func (d *Database) GetDesigner(slug string) (*Designer, error) {
	var designer Designer
	if err := d.gorm.Where("slug = ?", Slugify(slug)).First(&designer).Error; err != nil {
		return nil, translate(err)
	}
	return &designer, nil
}

// GetDesignerByID retrieves a designer by primary key.
func (d *Database) GetDesignerByID(id uint) (*Designer, error) {
	var designer Designer
	if err := d.gorm.First(&designer, id).Error; err != nil {
		return nil, translate(err)
	}
	return &designer, nil
}

// ListDesigners returns designers ordered by name.
func (d *Database) ListDesigners(offset, limit int) ([]Designer, int64, error) {
	var total int64
	if err := d.gorm.Model(&Designer{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := d.gorm.Model(&Designer{}).Order("name ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var rows []Designer
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CreateProduct inserts a new product row.
func (d *Database) CreateProduct(p *Product) error {
	if p == nil {
		return errors.New("product is nil")
	}
	p.Name = strings.TrimSpace(p.Name)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(p).Error
}

// UpdateProductEvaluation stores the verdict columns of an existing product.
func (d *Database) UpdateProductEvaluation(p *Product) error {
	if p == nil || p.ID == 0 {
		return errors.New("product is not persisted")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.gorm.Model(&Product{}).Where("id = ?", p.ID).Updates(map[string]any{
		"composition_json":  p.CompositionJSON,
		"approved":          p.Approved,
		"natural_percent":   p.NaturalPercent,
		"synthetic_percent": p.SyntheticPercent,
		"reasons_json":      p.ReasonsJSON,
		"evaluated_at":      p.EvaluatedAt,
		"updated_at":        time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProduct retrieves a product by ID.
func (d *Database) GetProduct(id uint) (*Product, error) {
	var p Product
	if err := d.gorm.First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// ProductIDs returns every product ID in ascending order.
func (d *Database) ProductIDs() ([]uint, error) {
	var ids []uint
	if err := d.gorm.Model(&Product{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountProducts returns the number of stored products.
func (d *Database) CountProducts() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ProductQuery encapsulates filters and pagination for listing products.
type ProductQuery struct {
	Query      string
	DesignerID uint
	Approved   *bool
	MinNatural float64
	Sort       string
	Offset     int
	Limit      int
}

// ListProducts returns paginated product rows applying optional filters.
func (d *Database) ListProducts(opts ProductQuery) ([]Product, int64, error) {
	base := d.gorm.Model(&Product{})
	if opts.DesignerID > 0 {
		base = base.Where("designer_id = ?", opts.DesignerID)
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := fmt.Sprintf("%%%s%%", q)
		base = base.Where("name LIKE ? OR composition_text LIKE ?", like, like)
	}
	if opts.Approved != nil {
		base = base.Where("approved = ?", *opts.Approved)
	}
	if opts.MinNatural > 0 {
		base = base.Where("natural_percent >= ?", opts.MinNatural)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := base.Order(orderForSort(opts.Sort)).Offset(opts.Offset)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var rows []Product
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DesignerSummaries aggregates product counts and natural share per designer.
func (d *Database) DesignerSummaries() ([]DesignerSummary, error) {
	var rows []DesignerSummary
	query := `
		SELECT d.id AS designer_id,
		       d.name AS name,
		       d.slug AS slug,
		       COUNT(p.id) AS products,
		       COALESCE(SUM(CASE WHEN p.approved THEN 1 ELSE 0 END), 0) AS approved,
		       COALESCE(AVG(p.natural_percent), 0) AS average_natural
		FROM designers d
		LEFT JOIN products p ON p.designer_id = d.id
		GROUP BY d.id, d.name, d.slug
		ORDER BY d.name ASC`
	if err := d.gorm.Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "name_asc":
		return "products.name ASC"
	case "name_desc":
		return "products.name DESC"
	case "natural_desc":
		return "products.natural_percent DESC, products.id DESC"
	case "natural_asc":
		return "products.natural_percent ASC, products.id DESC"
	case "evaluated_desc":
		return "products.evaluated_at DESC"
	case "created_asc":
		return "products.created_at ASC"
	default:
		return "products.id DESC"
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_products_designer_approved ON products(designer_id, approved)",
		"CREATE INDEX IF NOT EXISTS idx_products_natural_percent ON products(natural_percent)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
