package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ImportResult summarises a CSV import.
type ImportResult struct {
	Rows      int         `json:"rows"`
	Imported  int         `json:"imported"`
	Approved  int         `json:"approved"`
	Skipped   int         `json:"skipped"`
	Designers int         `json:"designers"`
	Problems  []RowReport `json:"problems,omitempty"`
}

// RowReport explains why a CSV row was skipped.
type RowReport struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type csvColumns struct {
	designer, product, composition, url int
}

// LoadFromCSV imports products from the CSV file at path.
func (s *Service) LoadFromCSV(path string) (ImportResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ImportResult{}, fmt.Errorf("%w: csv path is empty", ErrInvalidInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open products csv: %w", err)
	}
	defer f.Close()
	return s.ImportCSV(f)
}

// ImportCSV reads rows of designer, product, composition and optional url. A header row
// naming the columns is detected and may reorder them. Rows that are incomplete or whose
// composition yields no fiber are skipped and reported, not treated as errors.
func (s *Service) ImportCSV(r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		result          ImportResult
		cols            = csvColumns{designer: 0, product: 1, composition: 2, url: 3}
		headerProcessed bool
		designers       = make(map[uint]struct{})
		line            int
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read csv: %w", err)
		}
		line++
		if len(record) == 0 {
			continue
		}
		record[0] = strings.TrimPrefix(record[0], "\ufeff")

		if !headerProcessed {
			headerProcessed = true
			if detected, ok := detectColumns(record); ok {
				cols = detected
				continue
			}
		}

		result.Rows++
		designer := field(record, cols.designer)
		name := field(record, cols.product)
		text := field(record, cols.composition)
		if designer == "" || name == "" || text == "" {
			result.Skipped++
			result.Problems = append(result.Problems, RowReport{Row: line, Message: "designer, product and composition are required"})
			continue
		}

		entries, unparsed := s.ParseComposition(text)
		if len(entries) == 0 {
			result.Skipped++
			result.Problems = append(result.Problems, RowReport{Row: line, Message: fmt.Sprintf("no fibers recognised in %q", text)})
			continue
		}
		if len(unparsed) > 0 {
			logrus.WithFields(logrus.Fields{
				"row":      line,
				"unparsed": unparsed,
			}).Debug("composition segments dropped")
		}

		product, evaluation, err := s.AddProduct(ProductInput{
			DesignerName: designer,
			Name:         name,
			URL:          field(record, cols.url),
			Composition:  text,
			Entries:      entries,
		})
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				result.Skipped++
				result.Problems = append(result.Problems, RowReport{Row: line, Message: err.Error()})
				continue
			}
			return result, fmt.Errorf("row %d: %w", line, err)
		}
		result.Imported++
		if evaluation.Approved {
			result.Approved++
		}
		designers[product.DesignerID] = struct{}{}
	}

	result.Designers = len(designers)
	s.metrics.RecordImport(result.Imported, result.Skipped)
	logrus.WithFields(logrus.Fields{
		"rows":     result.Rows,
		"imported": result.Imported,
		"approved": result.Approved,
		"skipped":  result.Skipped,
	}).Info("products csv imported")
	return result, nil
}

func detectColumns(record []string) (csvColumns, bool) {
	cols := csvColumns{designer: -1, product: -1, composition: -1, url: -1}
	for idx, value := range record {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "designer", "brand":
			cols.designer = idx
		case "product", "name", "product_name":
			cols.product = idx
		case "composition", "fabric", "materials":
			cols.composition = idx
		case "url", "link":
			cols.url = idx
		}
	}
	if cols.designer < 0 || cols.product < 0 || cols.composition < 0 {
		return csvColumns{}, false
	}
	return cols, true
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
