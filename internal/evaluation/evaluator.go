package evaluation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dbqueue"
	"voice-call-agent/internal/session"
)

// Operation names used for queued enrichment writes.
const (
	OpUpdateSummary       = "update_summary"
	OpUpdateQuality       = "update_quality"
	OpUpdateEntities      = "update_entities"
	OpUpdateSuccessStatus = "update_success_status"
)

const (
	summarySystem = "You are a professional conversation summarizer for a voice call service. " +
		"Pick out the key points discussed between the user and the agent. " +
		"The summary should be crisp, concise and clear."
	summaryUser = "Summarize the conversation below so that anyone reading it understands its main points. " +
		"Do not exceed 100 words.\n\nTranscript:\n"

	successSystem = "You are a call quality evaluator. Respond with only ONE word: Success, Failure, or Undetermined."
	successUser   = "Decide whether this call went well from the customer's perspective.\n" +
		"Success: the customer's needs were met and their questions answered.\n" +
		"Failure: the customer was frustrated or issues were left unresolved.\n" +
		"Undetermined: not enough information, the call dropped early or the outcome is unclear.\n\n" +
		"Transcript:\n"
)

// Enqueuer schedules persistence work without waiting for it.
type Enqueuer interface {
	Enqueue(name string, fn dbqueue.Func) string
}

// Evaluator summarizes finished calls, scores the conversation, extracts
// EntityFields and classifies the outcome. Results are written through the
// DB queue.
type Evaluator struct {
	// EntityFields is the list extracted after each call. Empty disables
	// entity extraction.
	EntityFields []EntityField

	completer Completer
	queue     Enqueuer
	store     calls.Store
	timeout   time.Duration
	log       *slog.Logger

	wg sync.WaitGroup
}

func New(completer Completer, queue Enqueuer, store calls.Store, timeout time.Duration, log *slog.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{completer: completer, queue: queue, store: store, timeout: timeout, log: log}
}

// Process evaluates the transcript in the background. It outlives ctx's
// cancellation, bounded by the evaluator's own timeout.
func (e *Evaluator) Process(ctx context.Context, callID string, transcript *session.Transcript) {
	text := transcript.Text()
	if strings.TrimSpace(text) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.Evaluate(ctx, callID, text)
	}()
}

// Wait blocks until every evaluation started by Process has finished.
func (e *Evaluator) Wait() { e.wg.Wait() }

// Evaluate runs every evaluation for one call and queues their writes.
func (e *Evaluator) Evaluate(ctx context.Context, callID, transcript string) {
	log := e.log.With("room", callID)

	if summary, err := e.Summarize(ctx, transcript); err != nil {
		log.Warn("call summary failed", "err", err)
	} else {
		e.queue.Enqueue(OpUpdateSummary, func(ctx context.Context) (bool, error) {
			return e.store.UpdateSummary(ctx, callID, summary)
		})
	}

	quality, err := e.ConversationQuality(ctx, transcript)
	if err != nil {
		log.Warn("conversation quality evaluation failed", "err", err)
		quality["error"] = err.Error()
	}
	e.queue.Enqueue(OpUpdateQuality, func(ctx context.Context) (bool, error) {
		return e.store.UpdateQuality(ctx, callID, quality)
	})

	if len(e.EntityFields) > 0 {
		entities, err := e.ExtractEntities(ctx, transcript, e.EntityFields)
		if err != nil {
			log.Warn("entity extraction failed", "err", err)
		}
		e.queue.Enqueue(OpUpdateEntities, func(ctx context.Context) (bool, error) {
			return e.store.UpdateEntities(ctx, callID, entities)
		})
	}

	status, err := e.Classify(ctx, transcript)
	if err != nil {
		log.Warn("call success evaluation failed", "err", err)
	}
	e.queue.Enqueue(OpUpdateSuccessStatus, func(ctx context.Context) (bool, error) {
		return e.store.UpdateSuccessStatus(ctx, callID, status)
	})
	log.Info("call evaluated", "success_status", status)
}

func (e *Evaluator) Summarize(ctx context.Context, transcript string) (string, error) {
	return e.completer.Complete(ctx, Prompt{
		System:      summarySystem,
		User:        summaryUser + transcript,
		Temperature: 0.2,
	})
}

// Classify returns Success, Failure or Undetermined. Errors still come with
// Undetermined.
func (e *Evaluator) Classify(ctx context.Context, transcript string) (string, error) {
	content, err := e.completer.Complete(ctx, Prompt{
		System:      successSystem,
		User:        successUser + transcript + "\n\nYour one-word evaluation:",
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return calls.SuccessUndetermined, err
	}
	return ParseSuccess(content), nil
}

// ParseSuccess extracts the success label from a model reply, ignoring case
// and punctuation. Anything unrecognised is Undetermined.
func ParseSuccess(content string) string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		switch w {
		case "success":
			return calls.SuccessSuccess
		case "failure":
			return calls.SuccessFailure
		case "undetermined":
			return calls.SuccessUndetermined
		}
	}
	return calls.SuccessUndetermined
}
