package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/signalcast/internal/classifier"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/external/feeds"
	"github.com/wonny/signalcast/pkg/logger"
)

// FeedFetcher 피드 수집 어댑터
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]feeds.Item, error)
}

// IngestResult 수집 패스 결과
type IngestResult struct {
	Feeds      int `json:"feeds"`
	FeedErrors int `json:"feed_errors"`
	Items      int `json:"items"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// IngestStage fetches every feed, classifies items and stores new signals
// ⭐ SSOT: 신호 쓰기는 이 단계에서만
type IngestStage struct {
	signals    contracts.SignalRepository
	fetcher    FeedFetcher
	classifier *classifier.Classifier
	urls       []string
	workers    int
	logger     *logger.Logger
	now        func() time.Time
}

// NewIngestStage creates the ingest stage
func NewIngestStage(signals contracts.SignalRepository, fetcher FeedFetcher, cls *classifier.Classifier, urls []string, log *logger.Logger) *IngestStage {
	return &IngestStage{
		signals:    signals,
		fetcher:    fetcher,
		classifier: cls,
		urls:       urls,
		workers:    4,
		logger:     log.WithModule("jobs.ingest"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the stage name
func (s *IngestStage) Name() string {
	return "ingest"
}

// Run executes one ingest pass
func (s *IngestStage) Run(ctx context.Context) error {
	res, err := s.Ingest(ctx)
	if err != nil {
		return err
	}
	if res.Feeds > 0 && res.FeedErrors == res.Feeds {
		return fmt.Errorf("all %d feeds failed", res.Feeds)
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d signals failed to store", res.Failed)
	}
	return nil
}

// Ingest fetches feeds concurrently, then classifies and inserts serially.
// A failing feed is logged and skipped.
func (s *IngestStage) Ingest(ctx context.Context) (IngestResult, error) {
	res := IngestResult{Feeds: len(s.urls)}

	var (
		mu      sync.Mutex
		fetched = make([][]feeds.Item, len(s.urls))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, url := range s.urls {
		g.Go(func() error {
			items, err := s.fetcher.Fetch(gctx, url)
			if err != nil {
				s.logger.WithFields(map[string]interface{}{
					"feed":  url,
					"error": err.Error(),
				}).Warn("Feed fetch failed")
				mu.Lock()
				res.FeedErrors++
				mu.Unlock()
				return nil
			}
			fetched[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	fetchedAt := s.now()
	for _, items := range fetched {
		for _, it := range items {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Items++

			sig := s.toSignal(it, fetchedAt)
			inserted, err := s.signals.Insert(ctx, sig)
			if err != nil {
				res.Failed++
				s.logger.WithFields(map[string]interface{}{
					"source":      it.Source,
					"external_id": it.GUID,
				}).WithError(err).Error("Insert signal failed")
				continue
			}
			if inserted {
				res.Inserted++
			} else {
				res.Duplicates++
			}
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"feeds":       res.Feeds,
		"feed_errors": res.FeedErrors,
		"items":       res.Items,
		"inserted":    res.Inserted,
		"duplicates":  res.Duplicates,
	}).Info("Ingest finished")
	return res, nil
}

func (s *IngestStage) toSignal(it feeds.Item, fetchedAt time.Time) *contracts.Signal {
	c := s.classifier.Classify(classifier.Item{
		Source:  it.Source,
		Title:   it.Title,
		Summary: it.Summary,
	})
	return &contracts.Signal{
		Source:         it.Source,
		ExternalID:     it.GUID,
		Title:          it.Title,
		Summary:        it.Summary,
		URL:            it.Link,
		PublishedAt:    it.PublishedAt,
		FetchedAt:      fetchedAt,
		Category:       c.Category,
		Sentiment:      c.Sentiment,
		ImpactLevel:    c.ImpactLevel,
		Confidence:     c.Confidence,
		AffectedAssets: c.AffectedAssets,
	}
}
