package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/dedup"
	"github.com/tollgrid/cdrpipe/internal/mapping"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/resource"
	"github.com/tollgrid/cdrpipe/internal/types"
)

const (
	// sampleSize is how many leading records feed the layout classifier
	// and the mapping resolver's pattern probes.
	sampleSize = 10

	// memoryTargetMB is the published peak-memory target for any job size.
	memoryTargetMB = 2048
)

// Job is one validation submission. The contract is identical whether the
// job arrives synchronously or from a task queue.
type Job struct {
	JobID          string
	UserID         string
	Records        []*types.RawRecord
	Metadata       types.FileMetadata
	ManualMappings []types.FieldMapping
	Config         types.JobConfig
}

// Deps wires the orchestrator's collaborators. Events is required;
// everything else degrades gracefully when nil.
type Deps struct {
	Resolver    *mapping.Resolver
	Classifier  LayoutClassifier
	Status      JobStatusSink
	Events      EventSink
	Templates   mapping.TemplateStore
	DeadLetters *recovery.DeadLetterQueue
	Retry       *recovery.RetryManager
	Monitor     *resource.MemoryMonitor
	Cache       *resource.Cache
	Logger      *zap.Logger
}

// Orchestrator drives one job through the pipeline state machine:
// initialization, field_mapping, data_normalization, duplicate_detection,
// database_integration, then completed or failed. Transitions are strictly
// forward; an unrecoverable stage error moves directly to failed and no
// further stages run.
type Orchestrator struct {
	deps       Deps
	classifier *recovery.Classifier
	logger     *zap.Logger
}

// NewOrchestrator validates and wires the dependency set.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Events == nil {
		return nil, fmt.Errorf("event sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = mapping.NewResolver(deps.Templates, nil, deps.Logger)
	}
	if deps.Retry == nil {
		deps.Retry = recovery.NewRetryManager(
			recovery.NewClassifier(),
			recovery.NewBreakerRegistry(recovery.DefaultBreakerConfig(), deps.Logger),
			deps.Logger)
	}
	return &Orchestrator{
		deps:       deps,
		classifier: recovery.NewClassifier(),
		logger:     deps.Logger,
	}, nil
}

// Run executes one job end to end. A ValidationResult is always returned,
// including on failure, so callers can distinguish "succeeded with N items
// dead-lettered" from "failed outright".
func (o *Orchestrator) Run(ctx context.Context, job Job) *types.ValidationResult {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	r := &run{
		o:     o,
		job:   job,
		cfg:   job.Config,
		stage: types.StageInitialization,
		start: time.Now(),
		result: &types.ValidationResult{
			JobID:  job.JobID,
			UserID: job.UserID,
		},
	}
	r.cfg.ApplyDefaults()
	// The job's retry_attempts setting caps every category's retry budget.
	r.retry = o.deps.Retry.WithCap(r.cfg.RetryAttempts)

	// The wall-clock budget covers the whole job; blowing it surfaces as
	// a timeout at whatever stage was running.
	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout())
	defer cancel()

	if err := r.initialize(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.resolveMappings(ctx); err != nil {
		return r.fail(ctx, err)
	}
	events, err := r.normalizeAll(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	events, err = r.deduplicate(ctx, events)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.result.Events = events
	if err := r.integrate(ctx, events); err != nil {
		return r.fail(ctx, err)
	}
	return r.complete(ctx)
}

// run is the per-job mutable state of one Run invocation.
type run struct {
	o      *Orchestrator
	job    Job
	cfg    types.JobConfig
	stage  types.Stage
	result *types.ValidationResult
	start  time.Time
	retry  *recovery.RetryManager

	normalizer  *RecordNormalizer
	byTarget    map[types.TargetField]*types.FieldMapping
	resolution  mapping.Resolution
	carrierHint string
	formatHint  string
	mode        resource.ExecutionMode

	mergeQualitySum float64
	mergeCount      int

	lastProgress  float64
	lastProcessed int
}

func (r *run) initialize(ctx context.Context) error {
	if r.job.UserID == "" {
		return stageError(r.stage, "missing required user_id")
	}
	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	r.normalizer = NewRecordNormalizer(r.cfg.DefaultRegion)
	r.carrierHint = r.job.Metadata.CarrierHint
	r.formatHint = r.job.Metadata.DetectedFormat
	r.emitStatus(ctx, 0.05, "job accepted", 0, len(r.job.Records))
	return nil
}

func (r *run) resolveMappings(ctx context.Context) error {
	if err := r.advance(ctx, types.StageFieldMapping, 0.15, "resolving field mappings", 0, len(r.job.Records)); err != nil {
		return err
	}
	if len(r.job.Records) == 0 {
		r.byTarget = map[types.TargetField]*types.FieldMapping{}
		return nil
	}

	samples := r.job.Records
	if len(samples) > sampleSize {
		samples = samples[:sampleSize]
	}

	in := mapping.ResolveInput{
		SourceFields:   sourceFields(samples),
		Samples:        samples,
		CarrierHint:    r.carrierHint,
		FormatHint:     r.formatHint,
		ManualMappings: r.job.ManualMappings,
	}

	if r.o.deps.Classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout())
		cls, err := r.o.deps.Classifier.Classify(cctx, samples, r.job.Metadata.Filename)
		cancel()
		switch {
		case err != nil:
			r.o.logger.Warn("layout classifier failed, falling back to heuristics",
				zap.String("job_id", r.job.JobID), zap.Error(err))
			r.result.Warnings = append(r.result.Warnings, "layout classification unavailable, mappings resolved heuristically")
		case cls != nil:
			in.Suggested = cls.Suggested
			if cls.Carrier != "" {
				in.CarrierHint = cls.Carrier
			}
			if cls.Format != "" {
				in.FormatHint = cls.Format
			}
		}
	}
	r.carrierHint, r.formatHint = in.CarrierHint, in.FormatHint

	res := r.o.deps.Resolver.Resolve(ctx, in)
	r.resolution = res
	r.result.Mappings = res.Mappings
	r.result.Warnings = append(r.result.Warnings, res.ValidationIssues...)

	if missing := res.MissingRequired(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return stageError(r.stage, fmt.Sprintf("field mapping cannot satisfy required fields: %s", strings.Join(names, ", ")))
	}

	r.byTarget = make(map[types.TargetField]*types.FieldMapping, len(res.Mappings))
	for _, m := range res.Mappings {
		r.byTarget[m.TargetField] = m
	}
	return nil
}

// itemOutcome is one record's normalization result: exactly one of event
// or err is set.
type itemOutcome struct {
	idx   int
	event *types.CanonicalEvent
	note  Note
	err   *types.ValidationError
}

// row pairs a raw record with its global input position for item IDs.
type row struct {
	idx int
	rec *types.RawRecord
}

func (r *run) normalizeAll(ctx context.Context) ([]*types.CanonicalEvent, error) {
	total := len(r.job.Records)
	if err := r.advance(ctx, types.StageNormalization, 0.35, "normalizing records", 0, total); err != nil {
		return nil, err
	}
	r.result.NormalizationStats.TotalRecords = total
	if total == 0 {
		return nil, nil
	}

	override := resource.ExecutionMode("")
	if !r.cfg.EnableStreaming {
		override = resource.ModeParallel
	}
	r.mode = resource.SelectMode(total, r.cfg.StreamingThreshold, override)
	batches := chunkRecords(r.job.Records, r.cfg.BatchSize)

	r.o.logger.Info("normalization starting",
		zap.String("job_id", r.job.JobID),
		zap.String("mode", string(r.mode)),
		zap.Int("records", total),
		zap.Int("batches", len(batches)))

	var outcomes []itemOutcome
	switch r.mode {
	case resource.ModeStreaming:
		pos := 0
		next := func(context.Context) ([]row, error) {
			if pos >= len(batches) {
				return nil, resource.ErrEndOfInput
			}
			b := batches[pos]
			pos++
			return b, nil
		}
		outs, err := resource.StreamBatches(ctx, resource.StreamOptions{
			MaxConcurrentBatches: r.cfg.ParallelWorkers,
			Monitor:              r.o.deps.Monitor,
			Logger:               r.o.logger,
		}, next, r.processBatch)
		if err != nil {
			return nil, err
		}
		outcomes = outs
	default:
		workers := resource.WorkerCount(r.cfg.ParallelWorkers, r.o.deps.Monitor)
		for _, br := range resource.ParallelBatches(ctx, workers, r.o.logger, batches, r.processBatch) {
			if br.Err != nil {
				return nil, br.Err
			}
			outcomes = append(outcomes, br.Items...)
		}
	}

	events := make([]*types.CanonicalEvent, 0, len(outcomes))
	ns := &r.result.NormalizationStats
	for _, out := range outcomes {
		if out.err == nil {
			events = append(events, out.event)
			ns.Normalized++
			if out.note.UsedPhoneFallback {
				ns.PhoneFallbacks++
			}
			ns.PIIRedactions += out.note.PIIRedactions
			continue
		}
		r.result.Errors = append(r.result.Errors, out.err)
		switch out.err.RecoveryStrategy {
		case types.RecoveryEscalate:
			return nil, out.err
		case types.RecoveryDeadLetter:
			if r.o.deps.DeadLetters == nil {
				ns.Skipped++
				break
			}
			if err := r.o.deps.DeadLetters.Enqueue(ctx, r.job.JobID, rawItem(r.job.Records[out.idx]), out.err); err != nil {
				r.o.logger.Error("dead-letter enqueue failed",
					zap.String("job_id", r.job.JobID),
					zap.String("item_id", out.err.Context.ItemID),
					zap.Error(err))
				ns.Skipped++
				break
			}
			ns.DeadLettered++
		default:
			ns.Skipped++
		}
	}
	r.emitStatus(ctx, 0.6, "normalization complete", ns.Normalized, total)
	return events, nil
}

// processBatch normalizes one batch. Item failures are captured per slot;
// the only batch-level errors are cancellation and cache machinery faults.
func (r *run) processBatch(ctx context.Context, batch []row) ([]itemOutcome, error) {
	if r.o.deps.Monitor != nil {
		r.o.deps.Monitor.Check()
	}

	var key string
	if r.cfg.EnableCaching && r.o.deps.Cache != nil && len(batch) > 0 {
		key = r.batchKey(batch)
		if payload, ok := r.o.deps.Cache.Get(ctx, key); ok {
			if outs, err := decodeCachedBatch(batch, payload); err == nil {
				return outs, nil
			}
		}
	}

	outs := make([]itemOutcome, 0, len(batch))
	clean := true
	for _, rw := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := r.normalizeOne(ctx, rw)
		if out.err != nil {
			clean = false
		}
		outs = append(outs, out)
	}

	if clean && key != "" {
		if payload, err := encodeCachedBatch(outs); err == nil {
			r.o.deps.Cache.Set(ctx, key, payload)
		}
	}
	return outs, nil
}

// normalizeOne runs one record through the normalizer under the retry
// manager, so classification and retry budgets come from the standard
// per-category policy table.
func (r *run) normalizeOne(ctx context.Context, rw row) itemOutcome {
	itemID := fmt.Sprintf("row-%d", rw.idx)
	var ev *types.CanonicalEvent
	var note Note
	ve := r.retry.Execute(ctx, types.ErrorContext{
		JobID:     r.job.JobID,
		UserID:    r.job.UserID,
		Operation: "normalize_record",
		Stage:     string(types.StageNormalization),
		ItemID:    itemID,
	}, func(context.Context) error {
		var ierr *types.ValidationError
		ev, note, ierr = r.normalizer.Normalize(rw.rec, r.byTarget, r.job.UserID, itemID)
		if ierr != nil {
			return ierr
		}
		return nil
	})
	if ve != nil {
		return itemOutcome{idx: rw.idx, err: ve}
	}
	return itemOutcome{idx: rw.idx, event: ev, note: note}
}

func (r *run) deduplicate(ctx context.Context, events []*types.CanonicalEvent) ([]*types.CanonicalEvent, error) {
	if err := r.advance(ctx, types.StageDuplicateDetection, 0.7, "detecting duplicates", len(events), len(r.job.Records)); err != nil {
		return nil, err
	}
	if !r.cfg.EnableDedup {
		r.result.DuplicateStats.InputEvents = len(events)
		r.result.DuplicateStats.OutputEvents = len(events)
		return events, nil
	}

	dcfg := dedup.Config{
		Strategy:          r.cfg.DedupStrategy,
		TimeToleranceSecs: r.cfg.TimeToleranceSecs,
	}
	det, err := dedup.NewDetector(dcfg, r.o.logger)
	if err != nil {
		return nil, err
	}
	res, err := det.Detect(ctx, events)
	if err != nil {
		return nil, err
	}
	r.result.DuplicateStats = res.Stats
	for _, m := range res.Merges {
		r.mergeQualitySum += m.QualityScore
		r.mergeCount++
	}
	return res.Events, nil
}

func (r *run) integrate(ctx context.Context, events []*types.CanonicalEvent) error {
	if err := r.advance(ctx, types.StageDatabaseIntegration, 0.85, "writing events", len(events), len(r.job.Records)); err != nil {
		return err
	}

	errCtx := types.ErrorContext{
		JobID:     r.job.JobID,
		UserID:    r.job.UserID,
		Operation: "bulk_insert_events",
		Stage:     string(r.stage),
	}
	if ve := r.retry.ExecuteOn(ctx, "database", errCtx, func(ctx context.Context) error {
		_, err := r.o.deps.Events.BulkInsertEvents(ctx, events)
		return err
	}); ve != nil {
		return ve
	}

	summaries := BuildContactSummaries(r.job.UserID, events)
	r.result.Contacts = summaries
	errCtx.Operation = "bulk_insert_contacts"
	if ve := r.retry.ExecuteOn(ctx, "database", errCtx, func(ctx context.Context) error {
		return r.o.deps.Events.BulkInsertContacts(ctx, summaries)
	}); ve != nil {
		return ve
	}
	return nil
}

func (r *run) complete(ctx context.Context) *types.ValidationResult {
	r.result.Success = true
	r.result.QualityScore = r.qualityScore()
	r.finishMetrics()

	m := r.result.Metrics
	if !m.MetTimeTarget {
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("processing took %s, over the %s target for %d records",
				m.ProcessingTime.Round(time.Second), timeTarget(len(r.job.Records)), len(r.job.Records)))
	}
	if !m.MetMemoryTarget {
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("peak memory %.0f MB exceeded the %d MB target", m.PeakMemoryMB, memoryTargetMB))
	}
	if r.result.QualityScore < r.cfg.QualityThreshold {
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("quality score %.2f below threshold %.2f", r.result.QualityScore, r.cfg.QualityThreshold))
	}

	r.recordTemplateOutcome(ctx)

	ns := r.result.NormalizationStats
	if err := r.advance(ctx, types.StageCompleted, 1.0, "completed", ns.Normalized, ns.TotalRecords); err != nil {
		r.o.logger.Warn("completion transition failed", zap.Error(err))
	}
	r.o.logger.Info("job completed",
		zap.String("job_id", r.job.JobID),
		zap.Int("events", len(r.result.Events)),
		zap.Int("skipped", ns.Skipped),
		zap.Int("dead_lettered", ns.DeadLettered),
		zap.Float64("quality", r.result.QualityScore),
		zap.Duration("elapsed", r.result.Metrics.ProcessingTime))
	return r.result
}

// fail classifies err, moves the state machine to failed, and returns the
// result with the error attached. Metrics are still filled in so failed
// jobs report what they consumed.
func (r *run) fail(ctx context.Context, err error) *types.ValidationResult {
	ve := r.o.classifier.Classify(err, types.ErrorContext{
		JobID:  r.job.JobID,
		UserID: r.job.UserID,
		Stage:  string(r.stage),
	})
	r.result.Errors = append(r.result.Errors, ve)
	r.result.Success = false
	r.finishMetrics()

	if r.stage.CanTransitionTo(types.StageFailed) {
		r.stage = types.StageFailed
	}

	// The job context may already be expired; status still goes out.
	statusCtx := context.WithoutCancel(ctx)
	if r.o.deps.Status != nil {
		_ = r.o.deps.Status.AddError(statusCtx, r.job.JobID, ve)
	}
	r.emitStatus(statusCtx, r.lastProgress, "failed: "+ve.Message, r.lastProcessed, len(r.job.Records))

	r.o.logger.Error("job failed",
		zap.String("job_id", r.job.JobID),
		zap.String("stage", string(ve.Context.Stage)),
		zap.String("category", string(ve.Category)),
		zap.Error(ve))
	return r.result
}

// advance moves the state machine forward one stage and emits a status
// update. Backward or terminal-origin transitions are refused.
func (r *run) advance(ctx context.Context, next types.Stage, progress float64, message string, processed, total int) error {
	if !r.stage.CanTransitionTo(next) {
		return stageError(r.stage, fmt.Sprintf("illegal stage transition %s -> %s", r.stage, next))
	}
	r.stage = next
	r.emitStatus(ctx, progress, message, processed, total)
	return nil
}

func (r *run) emitStatus(ctx context.Context, progress float64, message string, processed, total int) {
	r.lastProgress, r.lastProcessed = progress, processed
	if r.o.deps.Status == nil {
		return
	}
	err := r.o.deps.Status.UpdateStatus(ctx, &types.JobStatus{
		JobID:         r.job.JobID,
		UserID:        r.job.UserID,
		Stage:         r.stage,
		Progress:      progress,
		Message:       message,
		ProcessedRows: processed,
		TotalRows:     total,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		r.o.logger.Warn("status update failed",
			zap.String("job_id", r.job.JobID), zap.Error(err))
	}
}

func (r *run) finishMetrics() {
	elapsed := time.Since(r.start)
	m := &r.result.Metrics
	m.ProcessingTime = elapsed
	m.ExecutionMode = string(r.mode)
	if r.o.deps.Monitor != nil {
		m.PeakMemoryMB = r.o.deps.Monitor.PeakMB()
	}
	if secs := elapsed.Seconds(); secs > 0 {
		m.ThroughputPerSec = float64(r.result.NormalizationStats.Normalized) / secs
	}
	m.MetTimeTarget = elapsed <= timeTarget(len(r.job.Records))
	m.MetMemoryTarget = m.PeakMemoryMB < memoryTargetMB
}

// qualityScore blends mapping quality, normalization success rate, and
// average merge quality into one [0,1] figure.
func (r *run) qualityScore() float64 {
	mapQ := 1.0
	if len(r.job.Records) > 0 {
		mapQ = r.resolution.QualityScore
	}
	normRate := 1.0
	if ns := r.result.NormalizationStats; ns.TotalRecords > 0 {
		normRate = float64(ns.Normalized) / float64(ns.TotalRecords)
	}
	mergeQ := 1.0
	if r.mergeCount > 0 {
		mergeQ = r.mergeQualitySum / float64(r.mergeCount)
	}
	score := 0.4*mapQ + 0.4*normRate + 0.2*mergeQ
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// recordTemplateOutcome feeds this job's mapping result back into the
// template store so future jobs for the same carrier/format start warm.
func (r *run) recordTemplateOutcome(ctx context.Context) {
	if r.o.deps.Templates == nil || r.carrierHint == "" || r.formatHint == "" || len(r.result.Mappings) == 0 {
		return
	}
	mappings := make([]types.FieldMapping, 0, len(r.result.Mappings))
	for _, m := range r.result.Mappings {
		mappings = append(mappings, *m)
	}
	ns := r.result.NormalizationStats
	success := ns.TotalRecords == 0 || float64(ns.Normalized)/float64(ns.TotalRecords) >= r.cfg.QualityThreshold
	if err := r.o.deps.Templates.RecordOutcome(ctx, r.carrierHint, r.formatHint, mappings, success); err != nil {
		r.o.logger.Warn("template outcome not recorded",
			zap.String("carrier", r.carrierHint),
			zap.String("format", r.formatHint),
			zap.Error(err))
	}
}

// stageError builds a pre-classified stage-level failure that escalates.
func stageError(stage types.Stage, msg string) *types.ValidationError {
	return &types.ValidationError{
		ErrorID:          uuid.NewString(),
		Category:         types.CategoryValidation,
		Severity:         types.SeverityHigh,
		Message:          msg,
		Context:          types.ErrorContext{Stage: string(stage)},
		RecoveryStrategy: types.RecoveryEscalate,
	}
}

// timeTarget is the published processing-time target by job size: 100k
// records in 5 minutes, 1M in 30, larger jobs pro rata.
func timeTarget(records int) time.Duration {
	switch {
	case records <= 100_000:
		return 5 * time.Minute
	case records <= 1_000_000:
		return 30 * time.Minute
	default:
		return time.Duration(float64(records) / 1_000_000 * float64(30*time.Minute))
	}
}

func chunkRecords(records []*types.RawRecord, size int) [][]row {
	if size <= 0 {
		size = len(records)
	}
	var batches [][]row
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := make([]row, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, row{idx: i, rec: records[i]})
		}
		batches = append(batches, batch)
	}
	return batches
}

// sourceFields returns the union of sample field names in first-seen order.
func sourceFields(samples []*types.RawRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range samples {
		for _, f := range rec.Fields() {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// rawItem flattens a raw record into the DLQ's item payload shape.
func rawItem(rec *types.RawRecord) map[string]any {
	m := make(map[string]any, rec.Len())
	for _, f := range rec.Fields() {
		v, _ := rec.Get(f)
		m[f] = v
	}
	return m
}

// batchKey fingerprints a batch for the normalization cache.
func (r *run) batchKey(batch []row) string {
	first := recordSignature(batch[0].rec)
	last := recordSignature(batch[len(batch)-1].rec)
	return resource.BatchKey("normalize:"+r.job.UserID, len(batch), first, last)
}

func recordSignature(rec *types.RawRecord) string {
	var sb strings.Builder
	for _, f := range rec.Fields() {
		sb.WriteString(f)
		sb.WriteByte('=')
		sb.WriteString(rec.GetString(f))
		sb.WriteByte(';')
	}
	return sb.String()
}

// cachedItem is the persisted form of one fully-normalized record. Only
// batches with zero item errors are cached, so errors never round-trip.
type cachedItem struct {
	Event      *types.CanonicalEvent `json:"event"`
	Fallback   bool                  `json:"fallback,omitempty"`
	Redactions int                   `json:"redactions,omitempty"`
}

func encodeCachedBatch(outs []itemOutcome) ([]byte, error) {
	items := make([]cachedItem, len(outs))
	for i, out := range outs {
		items[i] = cachedItem{
			Event:      out.event,
			Fallback:   out.note.UsedPhoneFallback,
			Redactions: out.note.PIIRedactions,
		}
	}
	return json.Marshal(items)
}

func decodeCachedBatch(batch []row, payload []byte) ([]itemOutcome, error) {
	var items []cachedItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	if len(items) != len(batch) {
		return nil, fmt.Errorf("cached batch size mismatch: %d != %d", len(items), len(batch))
	}
	outs := make([]itemOutcome, len(items))
	for i, it := range items {
		outs[i] = itemOutcome{
			idx:   batch[i].idx,
			event: it.Event,
			note:  Note{UsedPhoneFallback: it.Fallback, PIIRedactions: it.Redactions},
		}
	}
	return outs, nil
}
