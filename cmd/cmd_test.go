package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-scraper/internal/app"
	"github.com/JakeFAU/article-scraper/internal/config"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

func TestParseSeed(t *testing.T) {
	t.Parallel()

	input := `
candidates:
  - url: " https://trusted-news.test/a "
    title: Inflation climbs
    term: inflation
  - url: https://www.youtube.com/watch?v=1
`
	records, err := parseSeed(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "https://trusted-news.test/a", records[0].URL)
	require.Equal(t, "Inflation climbs", records[0].Title)
	require.Equal(t, scraper.StatusPending, records[1].Status)
}

func TestParseSeed_Errors(t *testing.T) {
	t.Parallel()

	_, err := parseSeed(strings.NewReader("candidates:\n  - title: no url\n"))
	require.ErrorContains(t, err, "url is required")

	_, err = parseSeed(strings.NewReader("candidates: [unterminated"))
	require.Error(t, err)

	records, err := parseSeed(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestParseTerminalStatuses(t *testing.T) {
	t.Parallel()

	got, err := parseTerminalStatuses([]string{"scraper_failed", "relevance_failed"})
	require.NoError(t, err)
	require.Equal(t, []scraper.Status{scraper.StatusScraperFailed, scraper.StatusRelevanceFailed}, got)

	_, err = parseTerminalStatuses([]string{"pending"})
	require.ErrorContains(t, err, "not a terminal status")
}

// TestSeedThenPass shares one in-memory App across two commands.
func TestSeedThenPass(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	shared, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	orig := newApp
	newApp = func(context.Context, config.Config) (*app.App, error) { return shared, nil }
	t.Cleanup(func() { newApp = orig })

	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
candidates:
  - url: https://www.youtube.com/watch?v=1
  - url: https://vimeo.com/2
`), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"seed", "--file", seedPath})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "seeded 2 candidates")

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"pass"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), `"urls_processed": 2`)
	require.Contains(t, out.String(), `"scraper_skipped": 2`)
	require.Contains(t, out.String(), `"duration_ms":`)

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"reprocess", "--status", "scraper_skipped"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "marked 2 records")
}

func TestSeedRequiresFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	shared, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	orig := newApp
	newApp = func(context.Context, config.Config) (*app.App, error) { return shared, nil }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"seed"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
