package classify

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
		[]string{"score", "grade", "exam", "test", "mark"},
		[]string{"attend", "absent", "present", "register"},
		[]string{"student", "pupil"},
		[]string{"subject", "math", "physics"},
		[]string{"comment", "feedback"},
	)
}

func testCatalog(t *testing.T, provider embed.Provider) *catalog.Catalog {
	t.Helper()
	def := catalog.Definition{
		Version: "test",
		TableTypes: []catalog.TableTypeSpec{
			{Name: "ASSESSMENT", Anchors: []string{"test scores and grades", "exam results by subject"}},
			{Name: "ATTENDANCE", Anchors: []string{"attendance register", "days absent and present"}},
			{Name: "FEEDBACK", Anchors: []string{"comments feedback"}},
		},
		Concepts: []catalog.ConceptSpec{
			{Key: "student_name", Description: "student", ExpectedType: catalog.TypeString},
		},
	}
	cat, err := catalog.Load(context.Background(), def, provider)
	require.NoError(t, err)
	return cat
}

func assessmentDataset() dataset.Dataset {
	return dataset.Dataset{
		Headers: []string{"Student", "Subject", "Score"},
		Rows: [][]any{
			{"Anna", "Math", 85.0},
			{"Boris", "Physics", 92.0},
		},
	}
}

func sumScores(scores map[string]float64) float64 {
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return sum
}

func TestClassifyAssessment(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	c, err := New(provider, Options{})
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), assessmentDataset(), cat)
	require.NoError(t, err)

	assert.Equal(t, "ASSESSMENT", res.TableType)
	assert.True(t, res.Classified())
	assert.Greater(t, res.Confidence, 0.4)
	assert.Equal(t, res.PerTypeScores["ASSESSMENT"], res.Confidence)
	assert.Equal(t, AggregateMean, res.Aggregation)
	assert.Greater(t, res.RawScores["ASSESSMENT"], res.RawScores["ATTENDANCE"])

	require.Len(t, res.Contributions, 3)
	assert.Equal(t, "Score", res.Contributions[0].Header)
	assert.Equal(t, "test scores and grades", res.Contributions[0].Anchor)
	for i := 1; i < len(res.Contributions); i++ {
		assert.GreaterOrEqual(t, res.Contributions[i-1].Similarity, res.Contributions[i].Similarity)
	}
}

func TestSoftmaxInvariant(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	for _, agg := range []Aggregation{AggregateMean, AggregateMax} {
		c, err := New(provider, Options{Aggregation: agg})
		require.NoError(t, err)
		res, err := c.Classify(context.Background(), assessmentDataset(), cat)
		require.NoError(t, err)

		require.Len(t, res.PerTypeScores, 3)
		assert.InDelta(t, 1.0, sumScores(res.PerTypeScores), 1e-9)
		for name, p := range res.PerTypeScores {
			assert.GreaterOrEqual(t, p, 0.0, name)
			assert.LessOrEqual(t, p, 1.0, name)
		}
		assert.Equal(t, agg, res.Aggregation)
	}
}

func TestMaxAggregationUsesBestPair(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	mean, err := New(provider, Options{Aggregation: AggregateMean})
	require.NoError(t, err)
	maxC, err := New(provider, Options{Aggregation: AggregateMax})
	require.NoError(t, err)

	meanRes, err := mean.Classify(context.Background(), assessmentDataset(), cat)
	require.NoError(t, err)
	maxRes, err := maxC.Classify(context.Background(), assessmentDataset(), cat)
	require.NoError(t, err)

	assert.Greater(t, maxRes.RawScores["ASSESSMENT"], meanRes.RawScores["ASSESSMENT"])
	assert.InDelta(t, maxRes.Contributions[0].Similarity, maxRes.RawScores["ASSESSMENT"], 1e-12)
}

func TestLowConfidenceIsUnclassified(t *testing.T) {
	provider := testProvider()
	cat := testCatalog(t, provider)
	c, err := New(provider, Options{})
	require.NoError(t, err)

	ds := dataset.Dataset{Headers: []string{"Notes"}, Rows: [][]any{{"hello"}, {"world"}}}
	res, err := c.Classify(context.Background(), ds, cat)
	require.NoError(t, err)

	assert.Equal(t, Unclassified, res.TableType)
	assert.False(t, res.Classified())
	assert.Less(t, res.Confidence, 0.4)
	assert.NotEmpty(t, res.TopType, "arg-max is still reported for audit")
	assert.InDelta(t, 1.0, sumScores(res.PerTypeScores), 1e-9)
}

func TestEmptyDataset(t *testing.T) {
	provider := &embedtest.CountingProvider{Inner: testProvider()}
	cat := testCatalog(t, provider)
	provider.Reset()

	c, err := New(provider, Options{})
	require.NoError(t, err)
	res, err := c.Classify(context.Background(), dataset.Dataset{}, cat)
	require.NoError(t, err)

	assert.Equal(t, Unclassified, res.TableType)
	assert.Equal(t, 0.0, res.Confidence)
	assert.InDelta(t, 1.0, sumScores(res.PerTypeScores), 1e-9)
	assert.InDelta(t, 1.0/3, res.PerTypeScores["FEEDBACK"], 1e-9)
	assert.Empty(t, provider.Calls(), "nothing to embed")
}

func TestClassifyIsDeterministic(t *testing.T) {
	provider := embed.NewHashProvider(0)
	cat, err := catalog.Load(context.Background(), catalog.Default(), provider)
	require.NoError(t, err)
	c, err := New(provider, Options{})
	require.NoError(t, err)

	first, err := c.Classify(context.Background(), assessmentDataset(), cat)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), assessmentDataset(), cat)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifyEmbedsColumnsInOneBatch(t *testing.T) {
	provider := &embedtest.CountingProvider{Inner: testProvider()}
	cat := testCatalog(t, provider)
	provider.Reset()

	c, err := New(provider, Options{})
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), assessmentDataset(), cat)
	require.NoError(t, err)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"Student: Anna; Boris", "Subject: Math; Physics", "Score: 85; 92"}, calls[0])
}

func TestClassifyPropagatesProviderFailure(t *testing.T) {
	cat := testCatalog(t, testProvider())
	c, err := New(embedtest.FailingProvider{Dims: 6}, Options{})
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), assessmentDataset(), cat)
	require.ErrorIs(t, err, embedtest.ErrFailing)
}

func TestNewRejectsUnknownAggregation(t *testing.T) {
	_, err := New(testProvider(), Options{Aggregation: "median"})
	require.Error(t, err)
}

func TestNewMinConfidence(t *testing.T) {
	c, err := New(testProvider(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.4, c.opts.MinConfidence)

	c, err = New(testProvider(), Options{MinConfidence: 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.9, c.opts.MinConfidence)

	for _, bad := range []float64{-0.1, 1.5} {
		_, err := New(testProvider(), Options{MinConfidence: bad})
		require.Error(t, err, "min confidence %v", bad)
	}
}
