// Package app assembles the funnel pipeline from configuration. Both the
// batch command and the HTTP server run reports through a Pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/leadfunnel/internal/config"
	"github.com/AngelCh415/leadfunnel/internal/funnel"
	"github.com/AngelCh415/leadfunnel/internal/identity"
	"github.com/AngelCh415/leadfunnel/internal/ingest"
	"github.com/AngelCh415/leadfunnel/internal/keywords"
	"github.com/AngelCh415/leadfunnel/internal/lookup"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/models"
	"github.com/AngelCh415/leadfunnel/internal/report"
	"github.com/AngelCh415/leadfunnel/internal/store"
)

// Exit codes of the batch command.
const (
	ExitOK          = 0
	ExitOther       = 1
	ExitConfig      = 2
	ExitSource      = 3
	ExitWriteFailed = 4
	ExitInterrupted = 130
)

// ExitCode maps a run error to its process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ingest.ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, keywords.ErrNoKeywords), errors.Is(err, config.ErrInvalid):
		return ExitConfig
	case errors.Is(err, ingest.ErrSourceUnavailable):
		return ExitSource
	case errors.Is(err, report.ErrWrite):
		return ExitWriteFailed
	}
	return ExitOther
}

type Pipeline struct {
	cfg     config.Config
	etl     *ingest.ETL
	st      *store.MemoryStore
	log     *slog.Logger
	m       *metrics.Collectors
	closers []io.Closer

	mu sync.Mutex // one run at a time
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Records  []models.FunnelRecord
	Summary  ingest.Summary
	Path     string
	Recovery string // recovery dump, set when the report write failed
	Duration time.Duration
}

// New builds the pipeline. st receives the records of each successful run
// and may be shared with a metrics.Service.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Collectors, st *store.MemoryStore) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, st: st, log: log, m: m}
	if p.st == nil {
		p.st = store.NewMemoryStore()
	}

	kw, err := keywords.Load(cfg.KeywordFile, log)
	if err != nil {
		return nil, err
	}
	var rules []identity.Rule
	if cfg.ChannelRulesFile != "" {
		if rules, err = identity.LoadRules(cfg.ChannelRulesFile); err != nil {
			return nil, fmt.Errorf("%w: channel rules: %v", config.ErrInvalid, err)
		}
		log.Info("channel rules loaded", slog.String("path", cfg.ChannelRulesFile), slog.Int("rules", len(rules)))
	}

	httpc := ingest.NewHTTPClient(cfg.HTTPTimeout())
	bookings, err := p.openLookup(ctx, "booking", cfg.BookingEndpoint, cfg.BookingTable, httpc)
	if err != nil {
		p.Close()
		return nil, err
	}
	transactions, err := p.openLookup(ctx, "transaction", cfg.TransactionEndpoint, cfg.TransactionTable, httpc)
	if err != nil {
		p.Close()
		return nil, err
	}
	var (
		b lookup.Bookings     = bookings
		t lookup.Transactions = transactions
	)
	if cache := p.openCache(ctx); cache != nil {
		b = lookup.NewCachedBookings(b, cache, cfg.CacheTTL())
		t = lookup.NewCachedTransactions(t, cache, cfg.CacheTTL())
	}

	src := ingest.NewQiscusClient(httpc, ingest.QiscusOptions{
		BaseURL:          cfg.QiscusBaseURL,
		AppID:            cfg.QiscusAppID,
		Secret:           cfg.QiscusSecret,
		RoomIDs:          cfg.RoomIDs,
		RoomsEndpoint:    cfg.RoomsEndpoint,
		MessagesEndpoint: cfg.MessagesEndpoint,
		PageSize:         cfg.PageSize,
		Timeout:          cfg.HTTPTimeout(),
		Retries:          cfg.SourceRetries,
		RequestsPerSec:   cfg.RequestsPerSecond,
		Burst:            cfg.RateBurst,
	}, log, m)
	res := identity.NewResolver(identity.Options{
		OperatorDomains:  cfg.OperatorDomains,
		OperatorAccounts: cfg.OperatorAccounts,
		Rules:            rules,
	})
	corr := funnel.NewCorrelator(b, t, cfg.HTTPTimeout(), m)
	p.etl = ingest.NewETL(src, kw, res, corr, log, m, ingest.ETLOptions{
		Workers:  cfg.Workers,
		MaxPages: cfg.MaxPages,
		Location: cfg.Location(),
	})
	return p, nil
}

func (p *Pipeline) openLookup(ctx context.Context, kind, endpoint, table string, httpc ingest.HTTPClient) (lookup.Client, error) {
	k := lookup.Kind(endpoint)
	if k == "unknown" {
		return nil, fmt.Errorf("%w: %s endpoint has no supported scheme", config.ErrInvalid, kind)
	}
	c, closer, err := lookup.Open(ctx, endpoint, lookup.Options{
		HTTP:          httpc,
		Token:         p.cfg.InternalAPIToken,
		Table:         table,
		MongoDatabase: p.cfg.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", kind, err)
	}
	p.closers = append(p.closers, closer)
	p.log.Info("lookup ready", slog.String("kind", kind), slog.String("transport", k))
	return c, nil
}

// openCache returns nil when no cache is configured or Redis does not
// answer; lookups then go straight to their systems.
func (p *Pipeline) openCache(ctx context.Context) lookup.Cache {
	if p.cfg.CacheRedisAddr == "" {
		return nil
	}
	rc := lookup.NewRedisCache(p.cfg.CacheRedisAddr)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pctx); err != nil {
		p.log.Warn("lookup cache unavailable, continuing without it",
			slog.String("addr", p.cfg.CacheRedisAddr), slog.Any("err", err))
		rc.Close()
		return nil
	}
	p.closers = append(p.closers, rc)
	return rc
}

// Store holds the records of the last successful run.
func (p *Pipeline) Store() *store.MemoryStore { return p.st }

// Run executes one report run: scan rooms, persist the report, and publish
// the records to the store. On a write failure the records are dumped for
// recovery and the error matches report.ErrWrite. An interrupted run leaves
// the previous report and store untouched and dumps its partial records.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{RunID: uuid.NewString(), Path: p.cfg.OutputFile}
	log := p.log.With(slog.String("run_id", res.RunID))
	start := time.Now()
	log.Info("run started")

	recs, sum, err := p.etl.WithLogger(log).Run(ctx)
	res.Summary = sum
	if errors.Is(err, ingest.ErrInterrupted) {
		res.Duration = time.Since(start)
		p.m.Run(res.Duration, len(recs), false)
		log.Error("run interrupted: report not replaced", slog.String("path", p.cfg.OutputFile), slog.Any("err", err))
		res.Records = recs
		if len(recs) > 0 {
			res.Recovery = report.Recover(recs, "", log)
		}
		return res, err
	}
	if err != nil {
		res.Duration = time.Since(start)
		p.m.Run(res.Duration, 0, false)
		log.Error("run aborted: rooms unavailable", slog.Any("err", err))
		return res, err
	}
	res.Records = recs
	p.st.Replace(recs)

	if err := report.WriteFile(p.cfg.OutputFile, recs); err != nil {
		res.Duration = time.Since(start)
		p.m.Run(res.Duration, len(recs), false)
		log.Error("run failed: report not written", slog.String("path", p.cfg.OutputFile), slog.Any("err", err))
		res.Recovery = report.Recover(recs, "", log)
		return res, err
	}
	res.Duration = time.Since(start)
	p.m.Run(res.Duration, len(recs), true)

	attrs := []any{
		slog.String("path", p.cfg.OutputFile),
		slog.Int("rooms", sum.Rooms),
		slog.Int("records", len(recs)),
		slog.Duration("duration", res.Duration),
	}
	for outcome, n := range sum.Outcomes {
		attrs = append(attrs, slog.Int("rooms_"+outcome, n))
	}
	log.Info("report written", attrs...)
	for _, row := range metrics.Summarize(recs) {
		log.Info("funnel summary", slog.String("date", row.Date), slog.String("channel", row.Channel),
			slog.Int("leads", row.Leads), slog.Int("bookings", row.Bookings),
			slog.Int("transactions", row.Transactions), slog.Float64("revenue", row.Revenue))
	}
	return res, nil
}

// Close releases lookup connections and the cache client.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
