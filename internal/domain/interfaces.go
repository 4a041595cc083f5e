package domain

import "context"

// Column names of the placement dataset.
const (
	ColumnName              = "name"
	ColumnAge               = "age"
	ColumnDegree            = "degree"
	ColumnStream            = "stream"
	ColumnCollegeName       = "college_name"
	ColumnPlacementStatus   = "placement_status"
	ColumnGPA               = "gpa"
	ColumnSalary            = "salary"
	ColumnYearsOfExperience = "years_of_experience"
)

// RequiredColumns lists every column a dataset file must provide.
var RequiredColumns = []string{
	ColumnName,
	ColumnAge,
	ColumnDegree,
	ColumnStream,
	ColumnCollegeName,
	ColumnPlacementStatus,
	ColumnGPA,
	ColumnSalary,
	ColumnYearsOfExperience,
}

// Record is a single student placement row.
type Record struct {
	Name              string
	Age               int
	Degree            string
	Stream            string
	CollegeName       string
	PlacementStatus   string
	GPA               float64
	Salary            float64
	YearsOfExperience float64
}

// Passage is the descriptive text rendered from one record.
type Passage struct {
	Index int
	Text  string
}

// SearchResult is a passage matched by a similarity search.
type SearchResult struct {
	Passage Passage
	Score   float64
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Model is a loaded embedding backend. Prepare fits it to a passage corpus
// and returns the embedder to use for that corpus and its queries.
type Model interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) (Embedder, error)
}

// VectorStore persists passage vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, passages []Passage, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// Answerer defines the question answering operation exposed by the core.
type Answerer interface {
	Answer(ctx context.Context, question, model string) string
}
