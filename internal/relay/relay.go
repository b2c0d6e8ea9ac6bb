// Package relay implements the batch relay: it takes an ordered batch of
// event records, turns each one into a document and writes it to the
// destination store, isolating per-record failures so that one bad record
// never stops the rest of the batch. Failures are reported once, after every
// record has been attempted.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Writer is the destination store's write operation. It must not return
// until the write has succeeded or failed.
type Writer interface {
	Write(ctx context.Context, doc Document) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, doc Document) error

func (f WriterFunc) Write(ctx context.Context, doc Document) error {
	return f(ctx, doc)
}

// Options configures a Relay. The zero value processes records one at a time
// with blind inserts and logs through slog.Default.
type Options struct {
	KeyPolicy KeyPolicy
	// Concurrency bounds the number of records in flight within one batch.
	// Values <= 1 keep strict delivery order with one write at a time.
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Relay processes batches against a single Writer. It holds no per-batch
// state and is safe for concurrent use by multiple batches.
type Relay struct {
	writer      Writer
	keyPolicy   KeyPolicy
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(w Writer, opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Relay{
		writer:      w,
		keyPolicy:   opts.KeyPolicy,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.With("component", "relay"),
		metrics:     opts.Metrics,
	}
}

// Result summarises one batch. Failures is in record order.
type Result struct {
	Attempted  int
	Written    int
	Duplicates int
	Failed     int
	Failures   []*RecordError
	Duration   time.Duration
}

type outcomeKind int

const (
	outcomeWritten outcomeKind = iota
	outcomeDuplicate
	outcomeFailed
)

type outcome struct {
	kind outcomeKind
	err  *RecordError
}

// ProcessBatch attempts every record exactly once. It returns nil when all
// records were stored, the single *RecordError when one failed, or a
// *BatchError carrying every failure when several did. A non-nil error means
// the batch as a whole must be treated as failed by the caller.
func (r *Relay) ProcessBatch(ctx context.Context, records []Record) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx, r.logger)
	log.Debug("batch started", "records", len(records))

	outcomes := make([]outcome, len(records))
	if r.concurrency == 1 || len(records) < 2 {
		for i, rec := range records {
			outcomes[i] = r.processRecord(ctx, log, i, rec)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i, rec := range records {
			i, rec := i, rec
			g.Go(func() error {
				outcomes[i] = r.processRecord(ctx, log, i, rec)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := Result{Attempted: len(records)}
	for _, o := range outcomes {
		switch o.kind {
		case outcomeWritten:
			result.Written++
		case outcomeDuplicate:
			result.Duplicates++
		case outcomeFailed:
			result.Failed++
			result.Failures = append(result.Failures, o.err)
		}
	}
	result.Duration = time.Since(start)
	r.observeBatch(result)

	err := batchErr(len(records), result.Failures)
	if err != nil {
		log.Error("batch completed with failures",
			"records", result.Attempted,
			"written", result.Written,
			"duplicates", result.Duplicates,
			"failed", result.Failed,
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result, err
	}
	log.Info("batch completed",
		"records", result.Attempted,
		"written", result.Written,
		"duplicates", result.Duplicates,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (r *Relay) processRecord(ctx context.Context, log *slog.Logger, i int, rec Record) outcome {
	fail := func(kind, err error) outcome {
		recErr := &RecordError{Index: i, Record: rec, Kind: kind, Err: err}
		log.Error("record failed",
			"index", i,
			"position", rec.Position(),
			"kind", apperrors.Kind(recErr),
			"error", err,
		)
		return outcome{kind: outcomeFailed, err: recErr}
	}

	text, err := decode(rec.Body)
	if err != nil {
		return fail(apperrors.ErrDecode, err)
	}
	body, err := parse(text)
	if err != nil {
		return fail(apperrors.ErrParse, err)
	}

	doc := Document{Key: r.keyPolicy.key(rec), Body: body}
	if err := r.write(ctx, doc); err != nil {
		if doc.Key != "" && errors.Is(err, apperrors.ErrDuplicateDocument) {
			log.Debug("record already stored", "index", i, "position", rec.Position(), "key", doc.Key)
			return outcome{kind: outcomeDuplicate}
		}
		return fail(apperrors.ErrStoreWrite, fmt.Errorf("writing document: %w", err))
	}

	log.Debug("record processed", "index", i, "position", rec.Position(), "size", len(rec.Body))
	return outcome{kind: outcomeWritten}
}

// write calls the store and turns a panic in the driver into an error so it
// stays confined to its record.
func (r *Relay) write(ctx context.Context, doc Document) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("store panicked: %v", p)
		}
		if r.metrics != nil {
			r.metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
		}
	}()
	return r.writer.Write(ctx, doc)
}

func (r *Relay) observeBatch(res Result) {
	if r.metrics == nil {
		return
	}
	m := r.metrics
	m.BatchSize.Observe(float64(res.Attempted))
	m.BatchDuration.Observe(res.Duration.Seconds())
	m.BatchesTotal.WithLabelValues(batchLabel(res)).Inc()
	m.RecordsTotal.WithLabelValues("written").Add(float64(res.Written))
	m.RecordsTotal.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	m.RecordsTotal.WithLabelValues("failed").Add(float64(res.Failed))
	for _, f := range res.Failures {
		m.RecordFailuresTotal.WithLabelValues(apperrors.Kind(f)).Inc()
	}
}

func batchLabel(res Result) string {
	switch {
	case res.Attempted == 0:
		return "empty"
	case res.Failed == 0:
		return "success"
	case res.Failed == res.Attempted:
		return "failed"
	default:
		return "partial"
	}
}
