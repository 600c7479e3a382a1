package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/detect"
	"github.com/AngelCh415/leadfunnel/internal/funnel"
	"github.com/AngelCh415/leadfunnel/internal/identity"
	"github.com/AngelCh415/leadfunnel/internal/keywords"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/models"
	"github.com/AngelCh415/leadfunnel/internal/store"
)

// ErrInterrupted means the run's context ended before every room was
// processed; the records returned with it are partial.
var ErrInterrupted = errors.New("run interrupted")

// Room outcomes, used as log messages and metric labels.
const (
	OutcomeEmitted      = "emitted"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeNoMessages   = "no_messages"
	OutcomeNoLead       = "no_lead"
	OutcomeBadTimestamp = "bad_timestamp"
	OutcomeNoIdentity   = "no_identity"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeDuplicate    = "duplicate"
)

type ETLOptions struct {
	Workers  int
	MaxPages int
	// Location for lead dates; nil keeps the message's own offset.
	Location *time.Location
}

// ETL runs the per-room funnel pipeline over every room the source lists.
type ETL struct {
	src  Source
	kw   *keywords.Set
	res  *identity.Resolver
	corr *funnel.Correlator
	log  *slog.Logger
	m    *metrics.Collectors
	opts ETLOptions
}

func NewETL(src Source, kw *keywords.Set, res *identity.Resolver, corr *funnel.Correlator,
	log *slog.Logger, m *metrics.Collectors, opts ETLOptions) *ETL {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &ETL{src: src, kw: kw, res: res, corr: corr, log: log, m: m, opts: opts}
}

// WithLogger returns a copy of e that logs to log, typically one carrying a
// run id.
func (e *ETL) WithLogger(log *slog.Logger) *ETL {
	cp := *e
	cp.log = log
	return &cp
}

// Summary counts room outcomes for one run.
type Summary struct {
	Rooms    int
	Outcomes map[string]int
}

// Run lists rooms and processes them on a bounded worker pool. Only a failed
// room listing aborts; every per-room failure is a skip. Records come back
// ordered by room id. If ctx ends mid-run the partial records are returned
// with an error matching ErrInterrupted.
func (e *ETL) Run(ctx context.Context) ([]models.FunnelRecord, Summary, error) {
	rooms, err := e.src.ListRooms(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Summary{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return nil, Summary{}, err
	}
	e.log.Info("rooms listed", slog.Int("rooms", len(rooms)))

	var (
		st       = store.NewMemoryStore()
		sem      = make(chan struct{}, e.opts.Workers)
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[string]int{}
	)
	for _, room := range rooms {
		if ctx.Err() != nil {
			break
		}
		if !st.MarkSeen(room.ID) {
			e.finish(room.ID, OutcomeDuplicate, outcomes, &mu)
			continue
		}
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(room models.Room) {
			defer wg.Done()
			defer func() { <-sem }()
			rec, outcome := e.processRoom(ctx, room)
			if outcome == OutcomeEmitted {
				st.Add(rec)
			}
			e.finish(room.ID, outcome, outcomes, &mu)
		}(room)
	}
	wg.Wait()

	out := st.All()
	if ctx.Err() != nil {
		e.log.Warn("ingest interrupted", slog.Int("rooms", len(rooms)), slog.Int("records", len(out)))
		return out, Summary{Rooms: len(rooms), Outcomes: outcomes}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	e.log.Info("ingest complete", slog.Int("rooms", len(rooms)), slog.Int("records", len(out)))
	return out, Summary{Rooms: len(rooms), Outcomes: outcomes}, nil
}

func (e *ETL) finish(id models.RoomID, outcome string, outcomes map[string]int, mu *sync.Mutex) {
	mu.Lock()
	outcomes[outcome]++
	mu.Unlock()
	e.m.Room(outcome)
}

// processRoom walks one room through fetch, detect, resolve and correlate.
// It never returns an error: anything that goes wrong is a skip outcome.
func (e *ETL) processRoom(ctx context.Context, room models.Room) (models.FunnelRecord, string) {
	log := e.log.With(slog.String("room_id", room.ID.String()))

	msgs, truncated, err := FetchAll(ctx, e.src, room.ID, e.opts.MaxPages)
	if err != nil {
		log.Warn("room skipped: messages unavailable", slog.String("outcome", OutcomeFetchFailed), slog.Any("err", err))
		return models.FunnelRecord{}, OutcomeFetchFailed
	}
	if truncated {
		// Pages walk back in time, so the oldest messages are the ones missing.
		log.Warn("history truncated at page limit, lead date may be late",
			slog.Int("max_pages", e.opts.MaxPages), slog.Int("messages", len(msgs)))
	}
	if len(msgs) == 0 {
		log.Warn("room skipped: no messages", slog.String("outcome", OutcomeNoMessages))
		return models.FunnelRecord{}, OutcomeNoMessages
	}

	hit := detect.FindOpening(msgs, e.kw)
	if hit.Unsorted {
		log.Warn("unparsable timestamp, detecting in original order", slog.Int("messages", len(msgs)))
	}
	if !hit.Found {
		log.Info("room skipped: no opening message", slog.String("outcome", OutcomeNoLead))
		return models.FunnelRecord{}, OutcomeNoLead
	}
	date, err := detect.LeadDate(hit.Message, e.opts.Location)
	if err != nil {
		log.Warn("room skipped: lead timestamp unparsable", slog.String("outcome", OutcomeBadTimestamp),
			slog.String("message_id", hit.Message.ID), slog.Any("err", err))
		return models.FunnelRecord{}, OutcomeBadTimestamp
	}

	customer, channel := e.res.Resolve(room)
	if customer == "" {
		log.Warn("room skipped: no customer participant", slog.String("outcome", OutcomeNoIdentity))
		return models.FunnelRecord{}, OutcomeNoIdentity
	}

	lead := models.LeadEvent{RoomID: room.ID, LeadDate: date, CustomerID: customer, Channel: channel}
	rec, err := e.corr.Correlate(ctx, lead)
	if err != nil {
		var le *funnel.LookupError
		kind := "unknown"
		if errors.As(err, &le) {
			kind = le.Kind
		}
		log.Warn("room skipped: lookup failed", slog.String("outcome", OutcomeLookupFailed),
			slog.String("kind", kind), slog.Any("err", err))
		return models.FunnelRecord{}, OutcomeLookupFailed
	}

	log.Debug("lead emitted", slog.String("outcome", OutcomeEmitted), slog.String("keyword", hit.Keyword),
		slog.String("channel", channel), slog.String("leads_date", date.Format(models.DateLayout)))
	return rec, OutcomeEmitted
}
