// Package pagination finds the next listing page of a paginated blog index.
package pagination

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

// Context is what every strategy inspects.
type Context struct {
	CurrentURL string
	Base       *url.URL
	Doc        *goquery.Document
}

// Strategy proposes a next-page URL. Guess marks strategies whose answer is
// a heuristic rather than an explicit "next" link in the markup.
type Strategy struct {
	Name  string
	Guess bool
	Find  func(c Context) (string, bool)
}

// DefaultStrategies is the fallback chain, evaluated in order.
var DefaultStrategies = []Strategy{
	{Name: "selector", Find: structuralNext},
	{Name: "pagination_block", Guess: true, Find: paginationBlockNext},
	{Name: "link_text", Guess: true, Find: linkTextNext},
	{Name: "url_increment", Guess: true, Find: urlIncrementNext},
}

// Config controls the resolver.
type Config struct {
	// ProbeGuesses validates heuristic answers with a HEAD request.
	ProbeGuesses bool
	Strategies   []Strategy
}

// Resolver walks the strategy chain.
type Resolver struct {
	cfg    Config
	prober crawler.Prober
	logger *zap.Logger
}

// New builds a Resolver. prober may be nil when ProbeGuesses is off.
func New(cfg Config, prober crawler.Prober, logger *zap.Logger) *Resolver {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, prober: prober, logger: logger}
}

// Next returns the URL of the listing page after currentURL, or false when
// no strategy yields one. A guessed URL that fails its probe ends pagination.
func (r *Resolver) Next(ctx context.Context, currentURL string, doc *goquery.Document) (string, bool) {
	base, err := url.Parse(currentURL)
	if err != nil {
		r.logger.Warn("invalid listing url", zap.String("url", currentURL), zap.Error(err))
		return "", false
	}
	c := Context{CurrentURL: currentURL, Base: base, Doc: doc}

	for _, strategy := range r.cfg.Strategies {
		next, ok := strategy.Find(c)
		if !ok || sameURL(next, currentURL) {
			continue
		}
		r.logger.Debug("next page resolved",
			zap.String("url", currentURL),
			zap.String("next", next),
			zap.String("strategy", strategy.Name),
		)
		if strategy.Guess && r.cfg.ProbeGuesses && r.prober != nil {
			status, err := r.prober.Probe(ctx, next)
			if err != nil || status < http.StatusOK || status >= http.StatusMultipleChoices {
				r.logger.Info("guessed next page rejected by probe",
					zap.String("next", next),
					zap.Int("status", status),
					zap.Error(err),
				)
				return "", false
			}
		}
		return next, true
	}
	return "", false
}

func sameURL(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	ua.Fragment, ub.Fragment = "", ""
	return ua.String() == ub.String()
}
