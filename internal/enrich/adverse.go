// Package enrich adds external context to a case: adverse-media screening of
// the counterparty and the inflow history used for payment stability.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
	"github.com/joseph-ayodele/packet-underwriter/internal/search"
	"github.com/joseph-ayodele/packet-underwriter/internal/textnorm"
)

// DefaultKeywords are appended to every screening query.
var DefaultKeywords = []string{"詐欺", "逮捕", "行政処分", "倒産", "訴訟", "fraud", "lawsuit"}

type AdverseConfig struct {
	Keywords        []string
	ResultsPerQuery int
	Concurrency     int
}

// AdverseScreener searches the web for each subject and keeps the results judged relevant.
type AdverseScreener struct {
	search search.Provider
	model  llm.Provider // nil judges by keywords only
	cfg    AdverseConfig
	logger *slog.Logger
}

func NewAdverseScreener(sp search.Provider, model llm.Provider, cfg AdverseConfig, logger *slog.Logger) *AdverseScreener {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &AdverseScreener{search: sp, model: model, cfg: cfg, logger: logger}
}

type subjectResult struct {
	query  string
	hits   []entity.AdverseMediaHit
	seen   int
	tokens int
	notes  []string
	failed bool
}

// Screen runs one query per distinct subject. A rate-limit error from any
// provider aborts the screen so the stage can be retried. A subject whose
// search fails otherwise is noted and leaves the screen Incomplete.
func (s *AdverseScreener) Screen(ctx context.Context, subjects []string) (entity.AdverseMedia, error) {
	subjects = distinctNames(subjects)
	out := entity.AdverseMedia{Queries: []string{}, Hits: []entity.AdverseMediaHit{}}
	if len(subjects) == 0 {
		out.Notes = append(out.Notes, "no counterparty name to screen")
		return out, nil
	}

	results := make([]subjectResult, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, subject := range subjects {
		g.Go(func() error {
			r, err := s.screenOne(gctx, subject)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for _, r := range results {
		out.Queries = append(out.Queries, r.query)
		out.Screened += r.seen
		out.Hits = append(out.Hits, r.hits...)
		out.LLMTokens += r.tokens
		out.Notes = append(out.Notes, r.notes...)
		if r.failed {
			out.Incomplete = true
		}
	}
	s.logger.Info("enrich.adverse_media.done",
		"subjects", len(subjects),
		"screened", out.Screened,
		"hits", len(out.Hits),
		"incomplete", out.Incomplete,
	)
	return out, nil
}

func (s *AdverseScreener) screenOne(ctx context.Context, subject string) (subjectResult, error) {
	query := subject + " " + strings.Join(s.cfg.Keywords, " OR ")
	r := subjectResult{query: query}

	found, err := s.search.Search(ctx, query, s.cfg.ResultsPerQuery)
	if err != nil {
		if common.IsRateLimited(err) {
			return r, err
		}
		s.logger.Warn("enrich.adverse_media.search_failed", "subject", subject, "err", err)
		r.notes = append(r.notes, fmt.Sprintf("search for %q failed: %v", subject, err))
		r.failed = true
		return r, nil
	}
	found = search.Dedupe(found)
	r.seen = len(found)
	if len(found) == 0 {
		return r, nil
	}

	verdicts, tokens, note, err := s.judge(ctx, subject, found)
	if err != nil {
		return r, err
	}
	r.tokens = tokens
	if note != "" {
		r.notes = append(r.notes, note)
	}
	for _, v := range verdicts {
		if !v.Relevant || v.Index < 0 || v.Index >= len(found) {
			continue
		}
		hit := found[v.Index]
		r.hits = append(r.hits, entity.AdverseMediaHit{
			Query:   query,
			Title:   hit.Title,
			URL:     hit.URL,
			Snippet: hit.Snippet,
			Reason:  v.Reason,
		})
	}
	return r, nil
}

// judge asks the model for verdicts, falling back to prose parsing of its
// reply and then to keyword matching.
func (s *AdverseScreener) judge(ctx context.Context, subject string, found []search.Result) ([]llm.RelevanceVerdict, int, string, error) {
	if s.model == nil {
		return s.keywordVerdicts(subject, found), 0, "", nil
	}
	hits := make([]llm.SearchHit, len(found))
	for i, f := range found {
		hits[i] = llm.SearchHit{Title: f.Title, URL: f.URL, Snippet: f.Snippet}
	}
	req := llm.Request{
		System:     llm.BuildRelevanceSystemPrompt(),
		User:       llm.BuildRelevanceUserPrompt(subject, hits),
		Schema:     llm.RelevanceSchema(),
		SchemaName: "adverse_media_relevance",
	}
	var typed llm.RelevanceVerdicts
	resp, _, err := llm.GenerateTyped(ctx, s.model, req, &typed, func(raw []byte) ([]byte, []string, error) {
		return llm.NormalizeRelevanceJSON(raw, s.logger)
	}, s.logger)
	tokens := resp.Usage.Total()
	switch {
	case err == nil:
		return uniqueVerdicts(typed.Verdicts), tokens, "", nil
	case common.IsRateLimited(err):
		return nil, tokens, "", err
	case errors.Is(err, common.ErrValidation):
		if v := ParseRelevanceProse(resp.Text); len(v) > 0 {
			return v, tokens, fmt.Sprintf("relevance for %q read from prose reply", subject), nil
		}
	}
	s.logger.Warn("enrich.adverse_media.judge_failed", "subject", subject, "err", err)
	return s.keywordVerdicts(subject, found), tokens, fmt.Sprintf("relevance for %q judged by keywords: %v", subject, err), nil
}

// keywordVerdicts marks a result relevant when it names the subject and an adverse keyword.
func (s *AdverseScreener) keywordVerdicts(subject string, found []search.Result) []llm.RelevanceVerdict {
	name := textnorm.FoldName(subject)
	var out []llm.RelevanceVerdict
	for i, f := range found {
		text := textnorm.Fold(f.Title + " " + f.Snippet)
		if name == "" || !strings.Contains(textnorm.FoldName(text), name) {
			continue
		}
		for _, kw := range s.cfg.Keywords {
			if strings.Contains(text, textnorm.Fold(kw)) {
				out = append(out, llm.RelevanceVerdict{Index: i, Relevant: true, Reason: "keyword: " + kw})
				break
			}
		}
	}
	return out
}

var reProseVerdict = regexp.MustCompile(`(?im)^[ \t]*\[?(\d+)\]?[ \t:.)\-]*relevant[ \t]*[:=][ \t]*(yes|no|true|false)\b[ \t,;:\-]*([^\n]*)$`)

// ParseRelevanceProse reads verdicts from lines like "[2] relevant: yes - arrested for fraud".
func ParseRelevanceProse(text string) []llm.RelevanceVerdict {
	var out []llm.RelevanceVerdict
	for _, m := range reProseVerdict.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		v := strings.ToLower(m[2])
		out = append(out, llm.RelevanceVerdict{
			Index:    idx,
			Relevant: v == "yes" || v == "true",
			Reason:   strings.TrimSpace(m[3]),
		})
	}
	return uniqueVerdicts(out)
}

func uniqueVerdicts(in []llm.RelevanceVerdict) []llm.RelevanceVerdict {
	seen := map[int]bool{}
	out := in[:0:0]
	for _, v := range in {
		if seen[v.Index] {
			continue
		}
		seen[v.Index] = true
		out = append(out, v)
	}
	return out
}

func distinctNames(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := textnorm.FoldName(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
