package vecindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webintel/webintel/internal/embed"
)

func embedOrFail(t *testing.T, e *embed.HashingEmbedder, text string) []float32 {
	t.Helper()
	vec, err := e.Embed(text)
	require.NoError(t, err)
	return vec
}

func TestIndex_RoundTrip(t *testing.T) {
	t.Parallel()

	e := embed.NewHashingEmbedder(128)
	ix := New(128)

	target := embedOrFail(t, e, "solar panel efficiency records in laboratory tests")
	require.NoError(t, ix.Upsert("emb-target", target))
	require.NoError(t, ix.Upsert("emb-other", embedOrFail(t, e, "municipal budget meeting minutes archive")))

	matches, err := ix.Search(target, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "emb-target", matches[0].ID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestIndex_SearchOrderingAndBounds(t *testing.T) {
	t.Parallel()

	e := embed.NewHashingEmbedder(128)
	ix := New(128)
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("document number %d about various topics and subjects", i)
		require.NoError(t, ix.Upsert(fmt.Sprintf("emb-%02d", i), embedOrFail(t, e, text)))
	}

	query := embedOrFail(t, e, "document number 7 about various topics and subjects")
	matches, err := ix.Search(query, 5)
	require.NoError(t, err)
	require.Len(t, matches, 5)
	for i := 1; i < len(matches); i++ {
		require.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score, "descending order")
	}
	for _, m := range matches {
		require.GreaterOrEqual(t, m.Score, 0.0)
		require.LessOrEqual(t, m.Score, 1.0)
	}
	require.Equal(t, "emb-07", matches[0].ID)
}

func TestIndex_UpsertReplacesAndRemove(t *testing.T) {
	t.Parallel()

	e := embed.NewHashingEmbedder(64)
	ix := New(64)

	require.NoError(t, ix.Upsert("emb-1", embedOrFail(t, e, "original text about trains and railways")))
	require.NoError(t, ix.Upsert("emb-1", embedOrFail(t, e, "replacement text about ocean shipping lanes")))
	require.Equal(t, 1, ix.Len())

	query := embedOrFail(t, e, "ocean shipping lanes")
	matches, err := ix.Search(query, 1)
	require.NoError(t, err)
	require.Equal(t, "emb-1", matches[0].ID)

	ix.Remove("emb-1")
	require.Equal(t, 0, ix.Len())
	matches, err = ix.Search(query, 1)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()

	ix := New(8)
	require.Error(t, ix.Upsert("bad", make([]float32, 4)))
	_, err := ix.Search(make([]float32, 4), 3)
	require.Error(t, err)
	require.Error(t, ix.Upsert("", make([]float32, 8)))
}

func TestIndex_ConcurrentUpsertAndSearch(t *testing.T) {
	t.Parallel()

	e := embed.NewHashingEmbedder(64)
	ix := New(64)
	query := embedOrFail(t, e, "a query used while writers are busy")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				text := fmt.Sprintf("writer %d item %d content payload words", w, i)
				vec, err := e.Embed(text)
				if err != nil {
					t.Error(err)
					return
				}
				if err := ix.Upsert(fmt.Sprintf("emb-%d-%d", w, i), vec); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := ix.Search(query, 10); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 200, ix.Len())
}
