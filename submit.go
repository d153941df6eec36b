package imagestudio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Submitter runs the submission workflow for a Session: validate the current
// state, make one generation call, and write the outcome back.
type Submitter struct {
	generator Generator
	logger    *slog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithSubmitLogger sets the logger used for submission events.
func WithSubmitLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.logger = logger
	}
}

// NewSubmitter creates a Submitter that sends requests to gen.
func NewSubmitter(gen Generator, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		generator: gen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the session and, if valid, dispatches exactly one
// generation request. Every failure ends here: it is reduced into the
// session's error field and the loading flag is cleared on all paths.
//
// If the session already has a submission in flight, Submit dispatches
// nothing and returns the pending outcome.
func (s *Submitter) Submit(ctx context.Context, session *Session) Outcome {
	release, ok := session.acquireLoading()
	if !ok {
		s.logger.Warn("submission rejected", "error", ErrSubmissionInFlight.Error())
		return session.Outcome()
	}
	defer release()

	req := session.Snapshot().Request()

	if err := ValidateRequest(req); err != nil {
		s.logger.Debug("submission failed validation",
			"mode", req.Mode.String(),
			"function", req.Function,
			"error", err.Error(),
		)
		session.SetError(UserMessage(err))
		release()
		return session.Outcome()
	}

	start := time.Now()
	s.logger.Debug("dispatching generation",
		"mode", req.Mode.String(),
		"function", req.Function,
		"images", len(req.Images()),
	)

	ref, err := s.call(ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("generation failed",
			"mode", req.Mode.String(),
			"function", req.Function,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		session.SetError(UserMessage(err))
		release()
		return session.Outcome()
	}

	s.logger.Info("generation completed",
		"mode", req.Mode.String(),
		"function", req.Function,
		"duration_ms", duration.Milliseconds(),
	)
	session.SetGeneratedImage(ref)
	release()
	return session.Outcome()
}

// call invokes the generator, turning a panic into an error so the workflow
// can still record a failure.
func (s *Submitter) call(ctx context.Context, req GenerationRequest) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panicked: %v", r)
		}
	}()
	return s.generator.GenerateImage(ctx, req)
}
