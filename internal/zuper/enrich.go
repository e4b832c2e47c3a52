package zuper

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zulandar/jobvalidator/internal/metrics"
)

// progressEvery is how many completed detail fetches pass between progress
// callbacks. The final completion is always reported.
const progressEvery = 50

// DetailFetcher fetches one job's full record.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, jobUID string) (*Job, error)
}

// EnrichStats summarizes an enrichment pass.
type EnrichStats struct {
	Total    int
	Done     int
	Enriched int
	Failed   int
	// ByCategory counts failures by Classify category.
	ByCategory map[string]int
}

func (s EnrichStats) clone() EnrichStats {
	c := s
	c.ByCategory = make(map[string]int, len(s.ByCategory))
	for k, v := range s.ByCategory {
		c.ByCategory[k] = v
	}
	return c
}

// EnrichProgress receives periodic snapshots of an enrichment pass.
type EnrichProgress func(EnrichStats)

// EnrichMany replaces each job with its detail record using at most
// concurrency parallel fetches. Output order matches input order. When a
// detail fetch fails the list record is kept with an empty asset list.
// Malformed jobs and jobs without a uid pass through untouched.
func EnrichMany(ctx context.Context, f DetailFetcher, jobs []Job, concurrency int, progress EnrichProgress) ([]Job, EnrichStats) {
	if concurrency <= 0 {
		concurrency = 20
	}
	out := make([]Job, len(jobs))
	eligible := func(j *Job) bool { return j.Malformed == nil && j.JobUID != "" }
	stats := EnrichStats{ByCategory: map[string]int{}}
	for i := range jobs {
		if eligible(&jobs[i]) {
			stats.Total++
		}
	}
	var mu sync.Mutex

	finish := func(i int, job Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		out[i] = job
		stats.Done++
		if err != nil {
			stats.Failed++
			stats.ByCategory[Classify(err)]++
		} else {
			stats.Enriched++
		}
		if progress != nil && (stats.Done%progressEvery == 0 || stats.Done == stats.Total) {
			progress(stats.clone())
		}
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range jobs {
		if !eligible(&jobs[i]) {
			out[i] = jobs[i]
			continue
		}
		g.Go(func() error {
			orig := jobs[i]
			var (
				detail *Job
				err    error
			)
			if err = ctx.Err(); err == nil {
				detail, err = f.FetchDetail(ctx, orig.JobUID)
			}
			if err != nil {
				orig.Assets = AssetList{}
				finish(i, orig, err)
				return nil
			}
			if detail.JobUID == "" {
				detail.JobUID = orig.JobUID
			}
			finish(i, *detail, nil)
			return nil
		})
	}
	_ = g.Wait()
	return out, stats.clone()
}

// EnrichMany fetches detail records for jobs using the client's configured
// concurrency and logs one summary line for the pass.
func (c *Client) EnrichMany(ctx context.Context, jobs []Job, progress EnrichProgress) []Job {
	out, stats := EnrichMany(ctx, c, jobs, c.concurrency, progress)
	for cat, n := range stats.ByCategory {
		metrics.EnrichFailures.WithLabelValues(cat).Add(float64(n))
	}
	entry := c.log.WithFields(logrus.Fields{
		"total":    stats.Total,
		"enriched": stats.Enriched,
		"failed":   stats.Failed,
	})
	if stats.Failed > 0 {
		entry.WithFields(logrus.Fields{
			"timeouts":     stats.ByCategory[CategoryTimeout],
			"rate_limited": stats.ByCategory[CategoryRateLimit],
			"other":        stats.ByCategory[CategoryOther],
		}).Warn("enrichment finished with failures, kept list records")
	} else {
		entry.Info("enrichment finished")
	}
	return out
}
