package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dago-node-extract/internal/rule"
	"github.com/aescanero/dago-node-extract/internal/selector"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// Job outcomes reported to the JobRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// JobRecorder receives job metrics.
type JobRecorder interface {
	RecordJob(jobType, outcome string, duration time.Duration)
}

type nopJobRecorder struct{}

func (nopJobRecorder) RecordJob(string, string, time.Duration) {}

// Processor runs jobs against the rule engine and renders result payloads.
type Processor struct {
	workerID string
	engine   *rule.Engine
	docs     DocumentLoader
	recorder JobRecorder
	logger   *zap.Logger
}

// NewProcessor creates a processor. docs may be nil when jobs always carry
// their document inline; recorder may be nil.
func NewProcessor(workerID string, engine *rule.Engine, docs DocumentLoader, recorder JobRecorder, logger *zap.Logger) *Processor {
	if recorder == nil {
		recorder = nopJobRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		workerID: workerID,
		engine:   engine,
		docs:     docs,
		recorder: recorder,
		logger:   logger,
	}
}

// Process runs job and returns the JSON result payload. An error is returned
// when the job cannot be run, or when the engine is in strict mode and an
// evaluation fails.
func (p *Processor) Process(ctx context.Context, job *Job) (string, error) {
	start := time.Now()

	payload, success, err := p.process(ctx, job)
	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case !success:
		outcome = OutcomeFailure
	}
	p.recorder.RecordJob(string(job.Type), outcome, time.Since(start))

	if err != nil {
		return "", err
	}

	p.logger.Debug("job processed",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Bool("success", success),
		zap.Duration("duration", time.Since(start)),
	)
	return payload, nil
}

func (p *Processor) process(ctx context.Context, job *Job) (string, bool, error) {
	doc, err := p.document(ctx, job)
	if err != nil {
		return "", false, err
	}
	scope := rule.NewScope(job.Variables)

	out, err := p.header(job)
	if err != nil {
		return "", false, err
	}

	switch job.Type {
	case JobParse:
		res, err := p.engine.Parse(ctx, doc, job.Rule, scope)
		if err != nil {
			return "", false, err
		}
		out, err = setResult(out, "", res)
		return out, res.Success, err

	case JobBatch:
		batch, err := p.engine.ParseBatch(ctx, doc, job.Fields, scope)
		if err != nil {
			return "", false, err
		}
		out, ok, err := setBatch(out, batch)
		return out, ok, err

	case JobArray:
		arr, err := p.engine.ParseArray(ctx, doc, job.ItemRule, job.Fields, scope)
		if err != nil {
			return "", false, err
		}
		out, err = setArray(out, arr)
		return out, arr.Success, err
	}
	return "", false, fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, job.Type)
}

func (p *Processor) document(ctx context.Context, job *Job) (*selector.Document, error) {
	if job.Document != "" {
		return selector.NewDocument(job.Document, job.ContentType), nil
	}
	if p.docs == nil {
		return nil, fmt.Errorf("%w: document_key given but no document store configured", ErrInvalidJob)
	}
	text, err := p.docs.Load(ctx, job.DocumentKey)
	if err != nil {
		return nil, err
	}
	return selector.NewDocument(text, job.ContentType), nil
}

func (p *Processor) header(job *Job) (string, error) {
	out, err := sjson.Set("", "id", job.ID)
	if err != nil {
		return "", fmt.Errorf("failed to build result: %w", err)
	}
	for _, kv := range []struct {
		path  string
		value interface{}
	}{
		{"type", string(job.Type)},
		{"worker_id", p.workerID},
		{"timestamp", time.Now().UTC().Format(time.RFC3339Nano)},
	} {
		if out, err = sjson.Set(out, kv.path, kv.value); err != nil {
			return "", fmt.Errorf("failed to build result: %w", err)
		}
	}
	return out, nil
}

// ErrorPayload renders the payload published for a job that failed as a
// whole.
func ErrorPayload(workerID, jobID string, err error) string {
	out, _ := sjson.Set("", "id", jobID)
	out, _ = sjson.Set(out, "worker_id", workerID)
	out, _ = sjson.Set(out, "error", err.Error())

	var re *rule.Error
	switch {
	case errors.As(err, &re):
		out, _ = sjson.Set(out, "code", string(re.Code))
	case errors.Is(err, ErrInvalidJob):
		out, _ = sjson.Set(out, "code", "InvalidJob")
	case errors.Is(err, ErrDocumentNotFound):
		out, _ = sjson.Set(out, "code", "DocumentNotFound")
	}
	out, _ = sjson.Set(out, "timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	return out
}

func setResult(out, prefix string, res *rule.Result) (string, error) {
	var err error
	if out, err = sjson.Set(out, prefix+"success", res.Success); err != nil {
		return "", err
	}
	if out, err = sjson.Set(out, prefix+"data", res.Data); err != nil {
		return "", err
	}
	if res.Selector != "" {
		if out, err = sjson.Set(out, prefix+"selector", res.Selector); err != nil {
			return "", err
		}
	}
	if len(res.Errors) > 0 {
		if out, err = sjson.Set(out, prefix+"errors", res.Errors); err != nil {
			return "", err
		}
	}
	if res.Meta.Tree != "" {
		if out, err = sjson.Set(out, prefix+"tree", res.Meta.Tree); err != nil {
			return "", err
		}
	}
	return out, nil
}

// setBatch writes `data.<key>` for every field and `errors.<key>` for failed
// ones, in field order.
func setBatch(out string, batch rule.BatchResult) (string, bool, error) {
	var err error
	if out, err = sjson.SetRaw(out, "data", "{}"); err != nil {
		return "", false, err
	}

	success := true
	for _, f := range batch {
		key := escapePath(f.Key)
		if out, err = sjson.Set(out, "data."+key, f.Result.Data); err != nil {
			return "", false, err
		}
		if !f.Result.Success {
			success = false
			if out, err = sjson.Set(out, "errors."+key, f.Result.Errors); err != nil {
				return "", false, err
			}
		}
	}
	out, err = sjson.Set(out, "success", success)
	return out, success, err
}

func setArray(out string, arr *rule.ArrayResult) (string, error) {
	var err error
	if out, err = sjson.Set(out, "success", arr.Success); err != nil {
		return "", err
	}
	if out, err = sjson.SetRaw(out, "data", "[]"); err != nil {
		return "", err
	}
	for _, item := range arr.Items {
		obj, _, err := setBatch("{}", item)
		if err != nil {
			return "", err
		}
		if out, err = sjson.SetRaw(out, "data.-1", obj); err != nil {
			return "", err
		}
	}
	if len(arr.Errors) > 0 {
		if out, err = sjson.Set(out, "errors", arr.Errors); err != nil {
			return "", err
		}
	}
	return out, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// escapePath escapes a field key for use as one sjson path component.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
