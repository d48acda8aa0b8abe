package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/metrics"
)

const defaultMaxRounds = 5

// Terminating conditions recorded on the routing metric.
const (
	outcomeCompleted = "completed"
	outcomeDeclined  = "declined"
	outcomeRoundCap  = "round_cap"
	outcomeError     = "error"
)

// Service chains agent processing based on self-reported capability
// scores. Each invocation is self-contained: the trail and the visited
// set live on the stack, so concurrent sessions never interfere.
type Service struct {
	pool      Pool
	maxRounds int
	logger    *zap.Logger
}

// New creates a router over the given agent pool.
func New(pool Pool, maxRounds int, logger *zap.Logger) *Service {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, maxRounds: maxRounds, logger: logger}
}

// Route processes the message starting from the named agent, then runs
// the capability-evaluation hand-off loop until no unvisited agent wants
// the work, a candidate declines, the round cap is reached, or a
// hand-off fails. A failed hand-off keeps the output produced before it.
func (s *Service) Route(
	ctx context.Context, message, startName string, shared *domain.SharedContext,
) (domain.RouteResult, error) {
	start, err := s.pool.Get(startName)
	if err != nil {
		return domain.RouteResult{}, err
	}

	result := domain.RouteResult{
		SessionID: uuid.NewString(),
		Status:    domain.RouteSuccess,
	}
	processed := map[string]bool{}

	log := s.logger.With(zap.String("session_id", result.SessionID))
	log.Info("Routing session started",
		zap.String("start_agent", startName),
		zap.Int("max_rounds", s.maxRounds),
	)

	output, err := start.Process(ctx, message, shared)
	if err != nil {
		metrics.RoutingRoundsTotal.WithLabelValues(outcomeError).Inc()
		result.Status = domain.RouteError
		result.Error = err.Error()
		return result, err
	}

	result.Trail = append(result.Trail, domain.ProcessingStep{
		Agent:     start.Name(),
		Input:     message,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
	processed[start.Name()] = true
	result.Processed = append(result.Processed, start.Name())

	outcome := outcomeRoundCap
	for round := 0; round < s.maxRounds; round++ {
		candidate, eval := s.bestCandidate(ctx, output, processed)
		if candidate == nil {
			outcome = outcomeCompleted
			break
		}

		last := &result.Trail[len(result.Trail)-1]
		last.NextAgent = candidate.Name()
		last.Reason = eval.Reason

		if candidate.MakeDecision(ctx, output) != "yes" {
			log.Info("Candidate declined hand-off",
				zap.String("agent", candidate.Name()),
				zap.Float64("score", eval.Score),
			)
			outcome = outcomeDeclined
			break
		}

		next, err := candidate.Process(ctx, output, shared)
		if err != nil {
			// The partial answer built so far survives a failed extension.
			log.Warn("Hand-off processing failed, keeping prior output",
				zap.String("agent", candidate.Name()),
				zap.Error(err),
			)
			last.NextAgentError = err.Error()
			outcome = outcomeError
			break
		}

		result.Trail = append(result.Trail, domain.ProcessingStep{
			Agent:     candidate.Name(),
			Input:     output,
			Output:    next,
			Timestamp: time.Now().UTC(),
		})
		processed[candidate.Name()] = true
		result.Processed = append(result.Processed, candidate.Name())
		output = next
	}

	metrics.RoutingRoundsTotal.WithLabelValues(outcome).Inc()

	for _, a := range s.pool.List() {
		if !processed[a.Name()] {
			result.Unused = append(result.Unused, a.Name())
		}
	}
	if len(result.Unused) > 0 {
		log.Info("Some agents were not used", zap.Strings("unused", result.Unused))
	}

	result.FinalOutput = output
	return result, nil
}

// bestCandidate concurrently evaluates every unvisited agent against the
// current output and returns the strictly highest scorer above zero.
// Ties keep the earliest agent in registration order.
func (s *Service) bestCandidate(
	ctx context.Context, output string, processed map[string]bool,
) (Agent, domain.Evaluation) {
	var unvisited []Agent
	for _, a := range s.pool.List() {
		if !processed[a.Name()] {
			unvisited = append(unvisited, a)
		}
	}
	if len(unvisited) == 0 {
		return nil, domain.Evaluation{}
	}

	evals := make([]domain.Evaluation, len(unvisited))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range unvisited {
		i, a := i, a
		g.Go(func() error {
			evals[i] = a.EvaluateCapability(gctx, output)
			return nil
		})
	}
	_ = g.Wait() // EvaluateCapability never errors

	var best Agent
	var bestEval domain.Evaluation
	for i, a := range unvisited {
		if evals[i].Score > bestEval.Score {
			best = a
			bestEval = evals[i]
		}
	}
	if bestEval.Score <= 0 {
		return nil, domain.Evaluation{}
	}
	return best, bestEval
}
