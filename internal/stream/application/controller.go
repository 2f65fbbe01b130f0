package application

import (
	"context"
	"errors"
	"log"
	"time"

	"cascade/internal/observability/metrics"
	stream "cascade/internal/stream/domain"
)

// Result is the committed outcome of an operation.
type Result struct {
	Operation stream.OperationKind
	// Stream is the record after the operation. For a no-op withdraw it is the
	// unchanged record.
	Stream    *stream.Stream
	Transfers []stream.Transfer
	Amount    uint64
	// Now is the ledger time the operation ran at.
	Now int64
	// Changed is false when nothing was persisted.
	Changed bool
}

// Controller is the stream lifecycle controller. Each operation runs as one
// atomic step against the ledger and recomputes vesting from a fresh read.
type Controller struct {
	ledger    Ledger
	publisher EventPublisher
	policy    stream.Policy
	retries   int
	logger    *log.Logger
	clock     func() time.Time
}

// ControllerOption configures the controller.
type ControllerOption func(*Controller)

// WithPublisher sets the post-commit event publisher.
func WithPublisher(publisher EventPublisher) ControllerOption {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

// WithPolicy overrides the transition policy.
func WithPolicy(policy stream.Policy) ControllerOption {
	return func(c *Controller) {
		if policy.InactivityThreshold > 0 {
			c.policy = policy
		}
	}
}

// WithCASRetries sets how often a lost compare-and-swap is retried.
func WithCASRetries(retries int) ControllerOption {
	return func(c *Controller) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController constructs the controller.
func NewController(ledger Ledger, opts ...ControllerOption) (*Controller, error) {
	if ledger == nil {
		return nil, errors.New("stream controller: nil ledger")
	}
	c := &Controller{
		ledger:  ledger,
		policy:  stream.DefaultPolicy(),
		retries: 3,
		logger:  log.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Policy returns the policy in force.
func (c *Controller) Policy() stream.Policy { return c.policy }

// Execute runs op on behalf of signer.
func (c *Controller) Execute(ctx context.Context, signer stream.Authority, op stream.Operation) (Result, error) {
	if op == nil {
		return Result{}, stream.ErrInvalidOperation
	}
	if create, ok := op.(stream.CreateStream); ok && create.ID == "" {
		create.ID = stream.NewStreamID()
		op = create
	}

	start := time.Now()
	result, err := c.executeWithRetry(ctx, signer, op)
	kind := string(op.Kind())
	if err != nil {
		metrics.ObserveOperation(kind, metrics.ResultError, time.Since(start))
		metrics.IncOperationError(kind, string(stream.KindOf(err)))
		if stream.KindOf(err) == stream.KindInsufficientEscrow || stream.KindOf(err) == stream.KindInternal {
			c.logger.Printf("stream: op=%s stream=%s signer=%s err=%v", kind, op.Target(), signer, err)
		}
		return Result{}, err
	}
	if !result.Changed {
		metrics.ObserveOperation(kind, metrics.ResultNoop, time.Since(start))
		return result, nil
	}
	metrics.ObserveOperation(kind, metrics.ResultSuccess, time.Since(start))
	metrics.AddTransferred(kind, result.Amount)

	c.publish(ctx, signer, result)
	return result, nil
}

func (c *Controller) executeWithRetry(ctx context.Context, signer stream.Authority, op stream.Operation) (Result, error) {
	for attempt := 0; ; attempt++ {
		result, err := c.executeOnce(ctx, signer, op)
		if !errors.Is(err, stream.ErrConcurrentUpdate) || attempt >= c.retries {
			return result, err
		}
		metrics.IncCASConflict()
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
}

func (c *Controller) executeOnce(ctx context.Context, signer stream.Authority, op stream.Operation) (Result, error) {
	var result Result
	err := c.ledger.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		now := tx.Now()
		current, token, err := tx.Load(ctx, op.Target())
		if err != nil && !errors.Is(err, stream.ErrStreamNotFound) {
			return err
		}

		transition, err := stream.Apply(current, signer, op, now, c.policy)
		if err != nil {
			return err
		}
		result = Result{Operation: transition.Kind, Stream: current, Now: now}
		if transition.Next == nil {
			return nil
		}

		if transition.Created {
			err = tx.Insert(ctx, transition.Next)
		} else {
			err = tx.CompareAndSwap(ctx, token, transition.Next)
		}
		if err != nil {
			return err
		}
		for _, transfer := range transition.Transfers {
			if err := tx.Transfer(ctx, transfer); err != nil {
				return transferError(transfer, err)
			}
		}

		result.Stream = transition.Next
		result.Transfers = transition.Transfers
		result.Amount = transition.Amount()
		result.Changed = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// transferError reports an escrow shortfall as a record/escrow mismatch rather
// than a caller funding problem.
func transferError(transfer stream.Transfer, err error) error {
	if errors.Is(err, stream.ErrInsufficientFunds) && transfer.From.IsEscrow() {
		return stream.ErrInsufficientEscrow
	}
	return err
}

func (c *Controller) publish(ctx context.Context, signer stream.Authority, result Result) {
	if c.publisher == nil {
		return
	}
	event := eventFor(signer, result, c.clock().UTC())
	if event == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Printf("stream: publish failed op=%s stream=%s err=%v", result.Operation, result.Stream.ID, err)
	}
}

// CreateStream opens a stream funded by employer.
func (c *Controller) CreateStream(ctx context.Context, employer stream.Authority, op stream.CreateStream) (Result, error) {
	return c.Execute(ctx, employer, op)
}

// TopUpStream adds funds to a stream.
func (c *Controller) TopUpStream(ctx context.Context, employer stream.Authority, id stream.StreamID, amount uint64) (Result, error) {
	return c.Execute(ctx, employer, stream.TopUpStream{ID: id, Amount: amount})
}

// Withdraw pays out everything vested to the employee.
func (c *Controller) Withdraw(ctx context.Context, employee stream.Authority, id stream.StreamID) (Result, error) {
	return c.Execute(ctx, employee, stream.Withdraw{ID: id})
}

// CloseStream settles and closes the stream.
func (c *Controller) CloseStream(ctx context.Context, signer stream.Authority, id stream.StreamID) (Result, error) {
	return c.Execute(ctx, signer, stream.CloseStream{ID: id})
}

// EmergencyWithdraw reclaims unvested funds from an inactive stream.
func (c *Controller) EmergencyWithdraw(ctx context.Context, employer stream.Authority, id stream.StreamID) (Result, error) {
	return c.Execute(ctx, employer, stream.EmployerEmergencyWithdraw{ID: id})
}

// RefreshActivity resets the inactivity clock.
func (c *Controller) RefreshActivity(ctx context.Context, employee stream.Authority, id stream.StreamID) (Result, error) {
	return c.Execute(ctx, employee, stream.RefreshActivity{ID: id})
}
