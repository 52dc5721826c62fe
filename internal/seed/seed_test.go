package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webintel/webintel/internal/scrape"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	p := NewStatic([]string{"https://example.com/a", "https://example.com/b"})
	urls, err := p.Seeds(context.Background(), "anything", scrape.JobConfig{})
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)

	empty := NewStatic(nil)
	_, err = empty.Seeds(context.Background(), "anything", scrape.JobConfig{})
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)
}

func TestTemplate(t *testing.T) {
	t.Parallel()

	p := NewTemplate([]string{
		"https://duckduckgo.com/html/?q=%s",
		"https://example.com/fixed",
	})
	urls, err := p.Seeds(context.Background(), "energy storage", scrape.JobConfig{})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://duckduckgo.com/html/?q=energy+storage",
		"https://example.com/fixed",
	}, urls)

	_, err = p.Seeds(context.Background(), "  ", scrape.JobConfig{})
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)
}
