package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Candidates []seedCandidate `yaml:"candidates"`
}

type seedCandidate struct {
	URL     string `yaml:"url"`
	Title   string `yaml:"title"`
	Snippet string `yaml:"snippet"`
	Term    string `yaml:"term"`
}

func parseSeed(r io.Reader) ([]scraper.CandidateRecord, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	out := make([]scraper.CandidateRecord, 0, len(f.Candidates))
	for i, c := range f.Candidates {
		url := strings.TrimSpace(c.URL)
		if url == "" {
			return nil, fmt.Errorf("candidate %d: url is required", i)
		}
		out = append(out, scraper.CandidateRecord{
			URL:     url,
			Title:   c.Title,
			Snippet: c.Snippet,
			Term:    c.Term,
			Status:  scraper.StatusPending,
		})
	}
	return out, nil
}

func newSeedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Loads pending candidates from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			records, err := parseSeed(f)
			if err != nil {
				return err
			}
			for _, rec := range records {
				id, err := a.Records().Create(cmd.Context(), rec)
				if err != nil {
					return fmt.Errorf("create candidate %s: %w", rec.URL, err)
				}
				a.Logger().Debug("candidate seeded", zap.String("id", id), zap.String("url", rec.URL))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d candidates\n", len(records))
			return err
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "YAML file with a candidates list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
