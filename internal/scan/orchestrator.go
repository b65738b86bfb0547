package scan

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/internal/cache"
	"github.com/wardenlabs/hostwarden/internal/ratelimit"
	"github.com/wardenlabs/hostwarden/pkg/models"
)

// RetryOptions bounds the attempt loop. Delay for retry n is
// BaseDelay * 2^n, capped at MaxDelay.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Options wires an Orchestrator.
type Options struct {
	ManagementPort int
	CommandTimeout time.Duration
	GroupSize      int
	Retry          RetryOptions
}

// ProgressFunc is invoked after every completed host in a batch, cache
// hits included.
type ProgressFunc func(completed, total int, hostname string)

// Orchestrator drives the scan pipeline. All collaborators are injected;
// the shared rate limiter in particular is never constructed here, so
// every orchestrator in the process draws from one token budget.
type Orchestrator struct {
	cache    *cache.Manager
	limiter  *ratelimit.Limiter
	resolver Resolver
	prober   Prober
	executor RemoteExecutor
	logger   *zap.Logger
	opts     Options
}

// NewOrchestrator builds an orchestrator. A nil resolver falls back to the
// system resolver.
func NewOrchestrator(c *cache.Manager, l *ratelimit.Limiter, prober Prober, executor RemoteExecutor, resolver Resolver, opts Options, logger *zap.Logger) *Orchestrator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if opts.GroupSize < 1 {
		opts.GroupSize = 1
	}
	return &Orchestrator{
		cache:    c,
		limiter:  l,
		resolver: resolver,
		prober:   prober,
		executor: executor,
		logger:   logger.Named("scan"),
		opts:     opts,
	}
}

// ScanHost runs the full pipeline for one host and category. A live cached
// result is returned unless force is set, which skips the cache check and
// gathers fresh facts (the fresh result still replaces the cached one).
// Failures are reported in the result, not as an error; the error return is
// reserved for context cancellation and unknown categories.
func (o *Orchestrator) ScanHost(ctx context.Context, host *models.Host, category models.ScanCategory, force bool) (*models.ScanResult, error) {
	if !category.Valid() {
		return nil, ErrUnknownCategory
	}

	if !force {
		if v, ok := o.cache.Get(host.Key(), category); ok {
			if cached, ok := v.(*models.ScanResult); ok {
				hit := *cached
				hit.Cached = true
				return &hit, nil
			}
		}
	}

	start := time.Now()
	result := &models.ScanResult{
		Hostname:  host.Key(),
		Category:  category,
		Timestamp: start,
	}

	var lastErr error
	for attempt := 0; attempt <= o.opts.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := o.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		data, err := o.attempt(ctx, host, category)
		if err == nil {
			result.Success = true
			result.Data = data
			result.Retries = attempt
			result.Duration = time.Since(start)
			o.cache.Set(host.Key(), result, category)
			metricScans.WithLabelValues(string(category), "success").Inc()
			metricScanDuration.WithLabelValues(string(category)).Observe(result.Duration.Seconds())
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		result.Retries = attempt
		o.logger.Debug("scan attempt failed",
			zap.String("hostname", host.Key()),
			zap.String("category", string(category)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	result.Error = lastErr.Error()
	result.Duration = time.Since(start)
	metricScans.WithLabelValues(string(category), "failure").Inc()
	o.logger.Warn("scan exhausted retries",
		zap.String("hostname", host.Key()),
		zap.String("category", string(category)),
		zap.Int("retries", result.Retries),
		zap.Error(lastErr))
	return result, nil
}

// attempt is one pass of resolve, rate limit, probe, inspect.
func (o *Orchestrator) attempt(ctx context.Context, host *models.Host, category models.ScanCategory) (map[string]string, error) {
	addresses, err := o.resolveAddresses(ctx, host)
	if err != nil {
		return nil, err
	}

	// The token is taken after resolution so DNS failures do not burn
	// network budget. Waiting suspends; attempts are never dropped.
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	address, err := o.prober.Probe(ctx, addresses, o.opts.ManagementPort)
	if err != nil {
		return nil, err
	}

	return inspect(ctx, o.executor, address, category, o.opts.CommandTimeout)
}

// resolveAddresses prefers the inventory IP and falls back to DNS.
func (o *Orchestrator) resolveAddresses(ctx context.Context, host *models.Host) ([]string, error) {
	if host.IPAddress != "" {
		return []string{host.IPAddress}, nil
	}
	addresses, err := o.resolver.LookupHost(ctx, host.Hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrHostUnreachable, host.Hostname, err)
	}
	return addresses, nil
}

func (o *Orchestrator) backoff(ctx context.Context, retry int) error {
	delay := o.opts.Retry.BaseDelay << uint(retry)
	if o.opts.Retry.MaxDelay > 0 && delay > o.opts.Retry.MaxDelay {
		delay = o.opts.Retry.MaxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ScanHosts scans a batch in fixed-size concurrent groups. Hosts fail
// independently; progress fires after every completion, cache hits
// included. Force applies to every host in the batch. Results come back
// in input order.
func (o *Orchestrator) ScanHosts(ctx context.Context, hosts []*models.Host, category models.ScanCategory, force bool, progress ProgressFunc) []*models.ScanResult {
	batchID := uuid.NewString()
	total := len(hosts)
	results := make([]*models.ScanResult, total)

	o.logger.Info("starting batch scan",
		zap.String("batch_id", batchID),
		zap.String("category", string(category)),
		zap.Int("hosts", total),
		zap.Bool("force", force),
		zap.Int("group_size", o.opts.GroupSize))

	var mu sync.Mutex
	completed := 0
	report := func(i int, res *models.ScanResult) {
		mu.Lock()
		results[i] = res
		completed++
		done := completed
		mu.Unlock()
		if progress != nil {
			progress(done, total, res.Hostname)
		}
	}

	for offset := 0; offset < total; offset += o.opts.GroupSize {
		end := offset + o.opts.GroupSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				host := hosts[i]
				res, err := o.ScanHost(ctx, host, category, force)
				if err != nil {
					res = &models.ScanResult{
						Hostname:  host.Key(),
						Category:  category,
						Error:     err.Error(),
						Timestamp: time.Now(),
					}
				}
				report(i, res)
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	o.logger.Info("batch scan finished",
		zap.String("batch_id", batchID),
		zap.Int("completed", completed),
		zap.Int("total", total))
	return results
}
