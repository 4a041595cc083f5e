// Package dataset loads student placement records and answers column-level
// questions about them.
package dataset

import (
	"bytes"
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"placementqa/internal/domain"
)

// Dataset is an immutable, ordered set of records.
type Dataset struct {
	source      string
	records     []domain.Record
	fingerprint string
}

// New builds a dataset from records already in memory. The slice is copied.
func New(source string, records []domain.Record) *Dataset {
	rows := make([]domain.Record, len(records))
	copy(rows, records)
	h := sha1.New()
	for _, r := range rows {
		fmt.Fprintf(h, "%q|%d|%q|%q|%q|%q|%v|%v|%v\n", r.Name, r.Age, r.Degree, r.Stream,
			r.CollegeName, r.PlacementStatus, r.GPA, r.Salary, r.YearsOfExperience)
	}
	return &Dataset{source: source, records: rows, fingerprint: hex.EncodeToString(h.Sum(nil))}
}

// Load reads a CSV dataset from a local file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Reason: "read failed", cause: err}
	}
	return parse(path, data)
}

// Parse reads a CSV dataset from r. source names the origin in errors.
func Parse(source string, r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Source: source, Reason: "read failed", cause: err}
	}
	return parse(source, data)
}

func parse(source string, data []byte) (*Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Source: source, Reason: "empty file"}
		}
		return nil, &LoadError{Source: source, Reason: "malformed header", cause: err}
	}
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}
	var missing []string
	for _, col := range domain.RequiredColumns {
		if _, ok := positions[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &LoadError{Source: source, Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}

	var records []domain.Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("malformed row %d", line), cause: err}
		}
		rec, err := decodeRecord(row, positions)
		if err != nil {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d", line), cause: err}
		}
		records = append(records, rec)
	}

	h := sha1.Sum(data)
	return &Dataset{source: source, records: records, fingerprint: hex.EncodeToString(h[:])}, nil
}

func decodeRecord(row []string, positions map[string]int) (domain.Record, error) {
	field := func(col string) string { return strings.TrimSpace(row[positions[col]]) }
	number := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", col, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("column %s: %q is not a finite number", col, field(col))
		}
		return v, nil
	}

	age, err := number(domain.ColumnAge)
	if err != nil {
		return domain.Record{}, err
	}
	if age != math.Trunc(age) {
		return domain.Record{}, fmt.Errorf("column %s: %q is not a whole number", domain.ColumnAge, field(domain.ColumnAge))
	}
	gpa, err := number(domain.ColumnGPA)
	if err != nil {
		return domain.Record{}, err
	}
	salary, err := number(domain.ColumnSalary)
	if err != nil {
		return domain.Record{}, err
	}
	years, err := number(domain.ColumnYearsOfExperience)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{
		Name:              field(domain.ColumnName),
		Age:               int(age),
		Degree:            field(domain.ColumnDegree),
		Stream:            field(domain.ColumnStream),
		CollegeName:       field(domain.ColumnCollegeName),
		PlacementStatus:   field(domain.ColumnPlacementStatus),
		GPA:               gpa,
		Salary:            salary,
		YearsOfExperience: years,
	}, nil
}

// Source returns where the dataset was loaded from.
func (d *Dataset) Source() string { return d.source }

// Fingerprint is a content hash identifying this snapshot.
func (d *Dataset) Fingerprint() string { return d.fingerprint }

// Rows returns a copy of the records in file order.
func (d *Dataset) Rows() []domain.Record {
	out := make([]domain.Record, len(d.records))
	copy(out, d.records)
	return out
}

// Count returns the number of records.
func (d *Dataset) Count() int { return len(d.records) }

// IsNumeric reports whether col can be aggregated.
func IsNumeric(col string) bool {
	switch col {
	case domain.ColumnAge, domain.ColumnGPA, domain.ColumnSalary, domain.ColumnYearsOfExperience:
		return true
	}
	return false
}

// NumericValue returns the value of a numeric column for one record.
func NumericValue(r domain.Record, col string) (float64, error) {
	switch col {
	case domain.ColumnAge:
		return float64(r.Age), nil
	case domain.ColumnGPA:
		return r.GPA, nil
	case domain.ColumnSalary:
		return r.Salary, nil
	case domain.ColumnYearsOfExperience:
		return r.YearsOfExperience, nil
	}
	return 0, &UnsupportedColumnError{Column: col}
}

// Column returns the values of a numeric column in file order.
func (d *Dataset) Column(col string) ([]float64, error) {
	if !IsNumeric(col) {
		return nil, &UnsupportedColumnError{Column: col}
	}
	out := make([]float64, len(d.records))
	for i, r := range d.records {
		out[i], _ = NumericValue(r, col)
	}
	return out, nil
}

// ArgMax returns the first record holding the largest value of col.
func (d *Dataset) ArgMax(col string) (domain.Record, float64, error) {
	return d.extreme(col, func(v, best float64) bool { return v > best })
}

// ArgMin returns the first record holding the smallest value of col.
func (d *Dataset) ArgMin(col string) (domain.Record, float64, error) {
	return d.extreme(col, func(v, best float64) bool { return v < best })
}

func (d *Dataset) extreme(col string, better func(v, best float64) bool) (domain.Record, float64, error) {
	values, err := d.Column(col)
	if err != nil {
		return domain.Record{}, 0, err
	}
	if len(values) == 0 {
		return domain.Record{}, 0, ErrEmptyDataset
	}
	idx := 0
	for i := 1; i < len(values); i++ {
		// strict comparison keeps the earliest row on ties
		if better(values[i], values[idx]) {
			idx = i
		}
	}
	return d.records[idx], values[idx], nil
}

// Mean returns the arithmetic mean of col.
func (d *Dataset) Mean(col string) (float64, error) {
	values, err := d.Column(col)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, ErrEmptyDataset
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Where returns the row ids of records matching pred.
func (d *Dataset) Where(pred func(domain.Record) bool) *roaring.Bitmap {
	bm := roaring.New()
	for i, r := range d.records {
		if pred(r) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// CountWhere returns how many records match pred.
func (d *Dataset) CountWhere(pred func(domain.Record) bool) int {
	return int(d.Where(pred).GetCardinality())
}

// IsPlaced reports whether a record's placement status is "Placed".
func IsPlaced(r domain.Record) bool {
	return strings.EqualFold(strings.TrimSpace(r.PlacementStatus), "placed")
}
