package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/scrape"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Fallback Title</title>
<meta property="og:title" content="CPI Rises 0.3% in March">
<meta name="author" content="Jane Reporter">
<meta name="description" content="Consumer prices climbed again.">
<meta property="article:published_time" content="2024-03-12T09:30:00Z">
</head>
<body>
<nav><a href="/home">Home</a></nav>
<article>
<h1>CPI Rises 0.3% in March</h1>
<p>Consumer prices rose again in March, led by shelter costs.</p>
<p>Economists had expected a smaller increase.</p>
<a href="/analysis">Full analysis</a>
<a href="https://other.example.org/reaction">Market reaction</a>
<a href="mailto:tips@example.com">Send tips</a>
<a href="#top">Back to top</a>
</article>
<script>var tracking = true;</script>
</body>
</html>`

func TestArticle_ExtractStructured(t *testing.T) {
	t.Parallel()

	e := New(zap.NewNop())
	content, err := e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://news.example.com/cpi",
		Kind:        scrape.SourceWeb,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(articleHTML),
	})
	require.NoError(t, err)

	require.Equal(t, "CPI Rises 0.3% in March", content.Title)
	require.Equal(t, "Jane Reporter", content.Author)
	require.Contains(t, content.Text, "Consumer prices rose again in March")
	require.Contains(t, content.Text, "Economists had expected")
	require.NotContains(t, content.Text, "tracking")

	require.NotNil(t, content.PublishedAt)
	require.Equal(t, time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC), *content.PublishedAt)
	require.Equal(t, "Consumer prices climbed again.", content.Metadata["description"])
	require.Equal(t, "en", content.Metadata["lang"])
}

func TestArticle_ExtractLinks(t *testing.T) {
	t.Parallel()

	e := New(zap.NewNop())
	content, err := e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://news.example.com/cpi",
		ContentType: "text/html",
		Body:        []byte(articleHTML),
	})
	require.NoError(t, err)

	byURL := map[string]scrape.Link{}
	for _, l := range content.Links {
		byURL[l.URL] = l
	}
	require.Contains(t, byURL, "https://news.example.com/home")
	require.Contains(t, byURL, "https://news.example.com/analysis")
	require.Contains(t, byURL, "https://other.example.org/reaction")
	require.NotContains(t, byURL, "mailto:tips@example.com")

	require.True(t, byURL["https://news.example.com/analysis"].Internal)
	require.False(t, byURL["https://other.example.org/reaction"].Internal)
	require.Equal(t, "Full analysis", byURL["https://news.example.com/analysis"].AnchorText)
}

func TestArticle_FallbackToLongestBlock(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<div><p>Short intro.</p></div>
	<div id="long">
	<p>This block carries the bulk of the page text and should win.</p>
	<p>It keeps going with a second paragraph of real content.</p>
	</div>
	</body></html>`

	e := New(zap.NewNop())
	content, err := e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://example.com/bare",
		ContentType: "text/html",
		Body:        []byte(html),
	})
	require.NoError(t, err)
	require.Contains(t, content.Text, "bulk of the page text")
	require.Contains(t, content.Text, "second paragraph")
	require.NotContains(t, content.Text, "Short intro")
}

func TestArticle_EmptyTextFails(t *testing.T) {
	t.Parallel()

	e := New(zap.NewNop())
	_, err := e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://example.com/empty",
		ContentType: "text/html",
		Body:        []byte(`<html><body><script>app()</script></body></html>`),
	})
	require.ErrorIs(t, err, scrape.ErrExtractionFailed)
}

func TestArticle_PlainText(t *testing.T) {
	t.Parallel()

	e := New(zap.NewNop())
	content, err := e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://example.com/readme",
		ContentType: "text/plain",
		Body:        []byte("just   some words\nacross lines"),
	})
	require.NoError(t, err)
	require.Equal(t, "just some words across lines", content.Text)

	_, err = e.Extract(context.Background(), scrape.RawItem{
		URL:         "https://example.com/empty.txt",
		ContentType: "text/plain",
		Body:        nil,
	})
	require.ErrorIs(t, err, scrape.ErrExtractionFailed)
}
