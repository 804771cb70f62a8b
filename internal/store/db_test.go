package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intertexe/backend/internal/fabric"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "eileen-fisher", Slugify("  Eileen Fisher "))
	assert.Equal(t, "a-p-c", Slugify("A.P.C."))
	assert.Equal(t, "", Slugify("  "))
}

func TestSaveDesignerUpsertsBySlug(t *testing.T) {
	db := openTestDB(t)

	first := &Designer{Name: "Eileen Fisher", Website: "https://example.com"}
	require.NoError(t, db.SaveDesigner(first))
	require.NotZero(t, first.ID)
	assert.Equal(t, "eileen-fisher", first.Slug)

	second := &Designer{Name: "Eileen Fisher", Description: "updated"}
	require.NoError(t, db.SaveDesigner(second))
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, "https://example.com", second.Website)

	stored, err := db.GetDesigner("eileen-fisher")
	require.NoError(t, err)
	assert.Equal(t, "updated", stored.Description)
	assert.Equal(t, "https://example.com", stored.Website)

	third := &Designer{Name: "Eileen Fisher", Website: "https://eileenfisher.com"}
	require.NoError(t, db.SaveDesigner(third))
	stored, err = db.GetDesigner("eileen-fisher")
	require.NoError(t, err)
	assert.Equal(t, "https://eileenfisher.com", stored.Website)
	assert.Equal(t, "updated", stored.Description)

	_, total, err := db.ListDesigners(0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestSaveDesignerRequiresName(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveDesigner(&Designer{Name: "   "}))
	assert.Error(t, db.SaveDesigner(nil))
}

func TestGetDesignerByID(t *testing.T) {
	db := openTestDB(t)
	designer := &Designer{Name: "Khaite", Website: "https://khaite.com"}
	require.NoError(t, db.SaveDesigner(designer))

	found, err := db.GetDesignerByID(designer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Khaite", found.Name)
	assert.Equal(t, "khaite", found.Slug)
	assert.Equal(t, "https://khaite.com", found.Website)
}

func TestGetMissingRowsReturnNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetDesigner("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetDesignerByID(42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetProduct(42)
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.UpdateProductEvaluation(&Product{ID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductEvaluationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	designer := &Designer{Name: "Studio Nicholson"}
	require.NoError(t, db.SaveDesigner(designer))

	entries := []fabric.FiberEntry{{Fiber: "Cotton", Percent: 99}, {Fiber: "Elastane", Percent: 1}}
	product := &Product{DesignerID: designer.ID, Name: "Pleated Trouser", CompositionText: "99% cotton 1% elastane"}
	product.SetEntries(entries)
	product.ApplyEvaluation(fabric.EvaluateProduct(fabric.Composition{Compositions: entries}), time.Now())
	require.NoError(t, db.CreateProduct(product))

	stored, err := db.GetProduct(product.ID)
	require.NoError(t, err)
	assert.False(t, stored.Approved)
	assert.Equal(t, 99.0, stored.NaturalPercent)
	assert.Equal(t, entries, stored.Entries())
	assert.Equal(t, []string{"Contains 1% Elastane in main fabric (banned)"}, stored.Reasons())
	require.NotNil(t, stored.EvaluatedAt)

	approved := []fabric.FiberEntry{{Fiber: "Cotton", Percent: 100}}
	stored.SetEntries(approved)
	stored.ApplyEvaluation(fabric.EvaluateProduct(fabric.Composition{Compositions: approved}), time.Now())
	require.NoError(t, db.UpdateProductEvaluation(stored))

	reloaded, err := db.GetProduct(product.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Approved)
	assert.Equal(t, []string{"Meets INTERTEXE fabric standards"}, reloaded.Reasons())
}

func TestListProductsFilters(t *testing.T) {
	db := openTestDB(t)
	a := &Designer{Name: "Alpha"}
	b := &Designer{Name: "Beta"}
	require.NoError(t, db.SaveDesigner(a))
	require.NoError(t, db.SaveDesigner(b))

	seed := []struct {
		designer uint
		name     string
		approved bool
		natural  float64
	}{
		{a.ID, "Linen Shirt", true, 100},
		{a.ID, "Stretch Jean", false, 98},
		{b.ID, "Wool Coat", true, 80},
		{b.ID, "Fleece", false, 0},
	}
	for _, s := range seed {
		p := &Product{DesignerID: s.designer, Name: s.name, Approved: s.approved, NaturalPercent: s.natural}
		require.NoError(t, db.CreateProduct(p))
	}

	approved := true
	rows, total, err := db.ListProducts(ProductQuery{Approved: &approved, Sort: "natural_desc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "Linen Shirt", rows[0].Name)

	rows, total, err = db.ListProducts(ProductQuery{DesignerID: b.ID, MinNatural: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Wool Coat", rows[0].Name)

	rows, total, err = db.ListProducts(ProductQuery{Query: "jean"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Stretch Jean", rows[0].Name)

	rows, total, err = db.ListProducts(ProductQuery{Limit: 3, Sort: "name_asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, rows, 3)

	ids, err := db.ProductIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestDesignerSummaries(t *testing.T) {
	db := openTestDB(t)
	a := &Designer{Name: "Alpha"}
	empty := &Designer{Name: "Zeta"}
	require.NoError(t, db.SaveDesigner(a))
	require.NoError(t, db.SaveDesigner(empty))
	require.NoError(t, db.CreateProduct(&Product{DesignerID: a.ID, Name: "One", Approved: true, NaturalPercent: 100}))
	require.NoError(t, db.CreateProduct(&Product{DesignerID: a.ID, Name: "Two", Approved: false, NaturalPercent: 50}))

	rows, err := db.DesignerSummaries()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alpha", rows[0].Name)
	assert.Equal(t, 2, rows[0].Products)
	assert.Equal(t, 1, rows[0].Approved)
	assert.InDelta(t, 75.0, rows[0].AverageNatural, 0.001)
	assert.Equal(t, 0, rows[1].Products)
}
