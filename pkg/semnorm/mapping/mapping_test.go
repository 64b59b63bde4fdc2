package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/semnorm/pkg/semnorm/catalog"
	"github.com/cognicore/semnorm/pkg/semnorm/dataset"
	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/embed/embedtest"
)

func testProvider() *embedtest.KeywordProvider {
	return embedtest.NewKeywordProvider(
		[]string{"student", "pupil"},
		[]string{"score", "grade", "mark", "exam"},
		[]string{"id", "identifier", "number"},
	)
}

func testCatalog(t *testing.T, provider embed.Provider) *catalog.Catalog {
	t.Helper()
	def := catalog.Definition{
		Version: "test",
		TableTypes: []catalog.TableTypeSpec{
			{Name: "ASSESSMENT", Anchors: []string{"test scores and grades"}},
		},
		Concepts: []catalog.ConceptSpec{
			{
				Key:          "student_id",
				Description:  "Student identifier number",
				ExpectedType: catalog.TypeString,
				Synonyms:     []string{"student number", "pupil id"},
			},
			{
				Key:          "test_score",
				Description:  "Test score or grade",
				ExpectedType: catalog.TypeNumber,
				Synonyms:     []string{"mark", "exam result"},
			},
		},
	}
	cat, err := catalog.Load(context.Background(), def, provider)
	require.NoError(t, err)
	return cat
}

func studentDataset() dataset.Dataset {
	return dataset.Dataset{
		Headers: []string{"Student Number", "Grade"},
		Rows: [][]any{
			{"S001", 85.5},
			{"S002", 92.0},
			{"S003", 78.0},
		},
	}
}

func byColumn(mappings []Mapping) map[string]Mapping {
	out := make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		out[m.SourceColumn] = m
	}
	return out
}

func TestMapColumnsStudentScenario(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	m := New(provider, Options{})

	mappings, err := m.MapColumns(context.Background(), studentDataset(), "ASSESSMENT", cat)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "Student Number", mappings[0].SourceColumn)
	assert.Equal(t, "Grade", mappings[1].SourceColumn)

	cols := byColumn(mappings)
	student := cols["Student Number"]
	assert.Equal(t, "student_id", student.ConceptKey)
	assert.Equal(t, StatusAuto, student.Status)
	assert.Equal(t, dataset.DTypeString, student.InferredDType)

	grade := cols["Grade"]
	assert.Equal(t, "test_score", grade.ConceptKey)
	assert.Equal(t, StatusAuto, grade.Status)
	assert.Equal(t, dataset.DTypeNumeric, grade.InferredDType)

	assert.Empty(t, Collisions(mappings))
}

func TestAdjustmentAppliedOncePerPair(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	m := New(provider, Options{})

	mappings, err := m.MapColumns(context.Background(), studentDataset(), "ASSESSMENT", cat)
	require.NoError(t, err)
	for _, mapping := range mappings {
		require.NotEmpty(t, mapping.Candidates)
		assert.LessOrEqual(t, len(mapping.Candidates), 3)
		assert.Equal(t, mapping.Candidates[0].Score, mapping.Score)
		for _, c := range mapping.Candidates {
			expected, ok := cat.Concept(c.ConceptKey)
			require.True(t, ok)
			assert.Equal(t, TypeAdjustment(mapping.InferredDType, expected.ExpectedType), c.Adjustment)
			assert.Equal(t, clamp(c.RawScore+c.Adjustment), c.Score)
			assert.GreaterOrEqual(t, c.Score, 0.0)
			assert.LessOrEqual(t, c.Score, 1.0)
		}
	}

	again, err := m.MapColumns(context.Background(), studentDataset(), "ASSESSMENT", cat)
	require.NoError(t, err)
	assert.Equal(t, mappings, again)
}

func TestUnrelatedColumnIsUnknown(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	m := New(provider, Options{})

	ds := dataset.Dataset{Headers: []string{"Notes"}, Rows: [][]any{{"hello"}, {"world"}}}
	mappings, err := m.MapColumns(context.Background(), ds, "ASSESSMENT", cat)
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	notes := mappings[0]
	assert.Equal(t, StatusUnknown, notes.Status)
	assert.Empty(t, notes.ConceptKey)
	assert.False(t, notes.Mapped())
	assert.Len(t, notes.Candidates, 2, "candidates are reported even when unknown")
	assert.Less(t, notes.Score, LowConfidenceThreshold)
}

func TestStatusThresholdBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Status
	}{
		{1.0, StatusAuto},
		{0.75, StatusAuto},
		{0.7499, StatusLowConfidence},
		{0.55, StatusLowConfidence},
		{0.5499, StatusUnknown},
		{0, StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.score), "score %v", tt.score)
	}

	// raw similarity plus the adjustment lands exactly on each boundary
	assert.Equal(t, StatusAuto, StatusFor(Adjust(0.7, dataset.DTypeString, catalog.TypeString)))
	assert.Equal(t, StatusLowConfidence, StatusFor(Adjust(0.7, dataset.DTypeDatetime, catalog.TypeNumber)))
}

func TestTypeAdjustmentTable(t *testing.T) {
	tests := []struct {
		dtype    dataset.DType
		expected catalog.ExpectedType
		want     float64
	}{
		{dataset.DTypeNumeric, catalog.TypeNumber, 0.10},
		{dataset.DTypeNumeric, catalog.TypeDate, -0.15},
		{dataset.DTypeNumeric, catalog.TypeString, -0.15},
		{dataset.DTypeNumeric, catalog.TypeCategorical, -0.15},
		{dataset.DTypeDatetime, catalog.TypeDate, 0.10},
		{dataset.DTypeDatetime, catalog.TypeNumber, -0.15},
		{dataset.DTypeDatetime, catalog.TypeString, -0.15},
		{dataset.DTypeDatetime, catalog.TypeCategorical, -0.15},
		{dataset.DTypeString, catalog.TypeString, 0.05},
		{dataset.DTypeString, catalog.TypeCategorical, 0.05},
		{dataset.DTypeString, catalog.TypeNumber, -0.15},
		{dataset.DTypeString, catalog.TypeDate, -0.15},
		{dataset.DTypeUnknown, catalog.TypeNumber, 0},
		{dataset.DTypeUnknown, catalog.TypeString, 0},
		{dataset.DTypeUnknown, catalog.TypeDate, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeAdjustment(tt.dtype, tt.expected), "%s/%s", tt.dtype, tt.expected)
	}
}

func TestAdjustClamps(t *testing.T) {
	assert.Equal(t, 1.0, Adjust(0.95, dataset.DTypeNumeric, catalog.TypeNumber))
	assert.Equal(t, 0.0, Adjust(0.1, dataset.DTypeString, catalog.TypeNumber))
	assert.InDelta(t, 0.8, Adjust(0.7, dataset.DTypeDatetime, catalog.TypeDate), 1e-12)
}

func TestEmptyDatasetSkipsEmbedding(t *testing.T) {
	provider := &embedtest.CountingProvider{Inner: testProvider()}
	cat := testCatalog(t, provider)
	provider.Reset()

	mappings, err := New(provider, Options{}).MapColumns(context.Background(), dataset.Dataset{}, "", cat)
	require.NoError(t, err)
	assert.Empty(t, mappings)
	assert.Empty(t, provider.Calls())
}

func TestMapColumnsUsesOneBatch(t *testing.T) {
	provider := &embedtest.CountingProvider{Inner: testProvider()}
	cat := testCatalog(t, provider)
	provider.Reset()

	_, err := New(provider, Options{}).MapColumns(context.Background(), studentDataset(), "ASSESSMENT", cat)
	require.NoError(t, err)
	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
}

func TestCollisions(t *testing.T) {
	mappings := []Mapping{
		{SourceColumn: "Date", ConceptKey: "date", Status: StatusAuto},
		{SourceColumn: "Student", ConceptKey: "student_name", Status: StatusAuto},
		{SourceColumn: "Recorded On", ConceptKey: "date", Status: StatusLowConfidence},
		{SourceColumn: "Misc", Status: StatusUnknown},
	}
	assert.Equal(t, map[string][]string{"date": {"Date", "Recorded On"}}, Collisions(mappings))
}

func TestMapColumnsPropagatesProviderFailure(t *testing.T) {
	cat := testCatalog(t, testProvider())
	_, err := New(embedtest.FailingProvider{Dims: 4}, Options{}).MapColumns(context.Background(), studentDataset(), "", cat)
	require.ErrorIs(t, err, embedtest.ErrFailing)
}

func TestTypeDisagreementReordersCandidates(t *testing.T) {
	provider := &embedtest.FixedProvider{
		Dims: 2,
		Vectors: map[string]embed.Vector{
			"When: 2024-03-12; 2024-03-14": {1, 0},
			"Term label":                   {1, 0},
			"Exam date":                    {0.8, 0.6},
		},
	}
	def := catalog.Definition{
		Version:    "test",
		TableTypes: []catalog.TableTypeSpec{{Name: "ASSESSMENT", Anchors: []string{"exams"}}},
		Concepts: []catalog.ConceptSpec{
			{Key: "term", Description: "Term label", ExpectedType: catalog.TypeCategorical},
			{Key: "exam_date", Description: "Exam date", ExpectedType: catalog.TypeDate},
		},
	}
	cat, err := catalog.Load(context.Background(), def, provider)
	require.NoError(t, err)

	ds := dataset.Dataset{Headers: []string{"When"}, Rows: [][]any{{"2024-03-12"}, {"2024-03-14"}}}
	mappings, err := New(provider, Options{}).MapColumns(context.Background(), ds, "ASSESSMENT", cat)
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	when := mappings[0]
	assert.Equal(t, dataset.DTypeDatetime, when.InferredDType)
	assert.Equal(t, "exam_date", when.ConceptKey, "a date column prefers the date concept over a closer categorical one")
	require.Len(t, when.Candidates, 2)
	assert.InDelta(t, 0.9, when.Candidates[0].Score, 1e-6)
	assert.Equal(t, "term", when.Candidates[1].ConceptKey)
	assert.Equal(t, PenaltyClash, when.Candidates[1].Adjustment)
	assert.InDelta(t, 0.85, when.Candidates[1].Score, 1e-6)
}
