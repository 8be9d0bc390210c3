package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"go.uber.org/zap"
)

const (
	DefaultPollingInterval = time.Second
	statusBufferSize       = 16
)

// TimeoutPolicy bounds a single Await. It is applied as context cancellation.
type TimeoutPolicy struct {
	Timeout time.Duration
}

// StatusChange is reported once for every status transition observed while polling.
type StatusChange struct {
	RequestId string
	Previous  string
	Status    string
	SubStatus string
	At        time.Time
}

type StatusObserver func(change StatusChange)

type Config struct {
	PollingInterval  time.Duration
	LogStatusChanges bool
	Observer         StatusObserver
}

// IPoller waits for signing requests to reach a terminal status
type IPoller interface {
	Await(ctx context.Context, handle *types.SigningHandle, policy *TimeoutPolicy) *types.TerminalOutcome
}

type Poller struct {
	client           custody.ICustodyClient
	interval         time.Duration
	logStatusChanges bool
	observer         StatusObserver
	logger           *zap.Logger
}

func NewPoller(cfg *Config, client custody.ICustodyClient, logger *zap.Logger) (*Poller, error) {
	if client == nil {
		return nil, fmt.Errorf("custody client cannot be nil")
	}
	interval := DefaultPollingInterval
	var observer StatusObserver
	var logChanges bool
	if cfg != nil {
		if cfg.PollingInterval < 0 {
			return nil, fmt.Errorf("polling interval must be positive, got %s", cfg.PollingInterval)
		}
		if cfg.PollingInterval > 0 {
			interval = cfg.PollingInterval
		}
		observer = cfg.Observer
		logChanges = cfg.LogStatusChanges
	}
	return &Poller{
		client:           client,
		interval:         interval,
		logStatusChanges: logChanges,
		observer:         observer,
		logger:           logger,
	}, nil
}

// Await polls the request until it is terminal or ctx is done.
// The first status query is made immediately and then once per interval. Network errors and
// transient API errors are logged and retried on the next tick. A permanent API error, such
// as 401 or 404, ends the wait with an Unavailable outcome. Cancellation returns a Cancelled
// outcome and stops querying; nothing is sent to the custody service.
func (p *Poller) Await(ctx context.Context, handle *types.SigningHandle, policy *TimeoutPolicy) *types.TerminalOutcome {
	if policy != nil && policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	notify, stop := p.startNotifier(handle.RequestId)
	defer stop()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		if ctx.Err() != nil {
			return p.cancelled(handle, lastStatus)
		}

		tx, err := p.client.GetTransaction(ctx, handle.RequestId)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return p.cancelled(handle, lastStatus)
			}
			var apiErr *custody.APIError
			if errors.As(err, &apiErr) && !apiErr.IsTransient() {
				p.logger.Sugar().Errorw("Status query rejected, giving up on signing request",
					"requestId", handle.RequestId,
					"lastStatus", lastStatus,
					"error", err,
				)
				return types.Unavailable(handle.RequestId, lastStatus, err)
			}
			p.logger.Sugar().Debugw("Status query failed, retrying on next tick",
				"requestId", handle.RequestId,
				"error", err,
			)
		default:
			if status := string(tx.Status); status != lastStatus {
				notify(StatusChange{
					RequestId: handle.RequestId,
					Previous:  lastStatus,
					Status:    status,
					SubStatus: tx.SubStatus,
					At:        time.Now(),
				})
				lastStatus = status
			}
			if tx.Id == "" {
				tx.Id = handle.RequestId
			}
			if outcome := MapStatus(handle.Kind, tx); outcome != nil {
				p.logger.Sugar().Infow("Signing request reached terminal status",
					"requestId", handle.RequestId,
					"status", outcome.Status,
					"outcome", outcome.Type,
					"elapsed", time.Since(handle.SubmittedAt),
				)
				return outcome
			}
		}

		select {
		case <-ctx.Done():
			return p.cancelled(handle, lastStatus)
		case <-ticker.C:
		}
	}
}

func (p *Poller) cancelled(handle *types.SigningHandle, lastStatus string) *types.TerminalOutcome {
	p.logger.Sugar().Infow("Stopped waiting for signing request",
		"requestId", handle.RequestId,
		"lastStatus", lastStatus,
	)
	return types.Cancelled(handle.RequestId, lastStatus)
}

// startNotifier delivers status changes to the observer from a separate goroutine.
// Sends never block; when the buffer is full the change is dropped. stop closes the
// channel and waits for the goroutine to drain it.
func (p *Poller) startNotifier(requestId string) (func(StatusChange), func()) {
	if p.observer == nil && !p.logStatusChanges {
		return func(StatusChange) {}, func() {}
	}

	changes := make(chan StatusChange, statusBufferSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for change := range changes {
			if p.logStatusChanges {
				p.logger.Sugar().Infow("Signing request status changed",
					"requestId", change.RequestId,
					"from", change.Previous,
					"to", change.Status,
					"subStatus", change.SubStatus,
				)
			}
			if p.observer != nil {
				p.observer(change)
			}
		}
	}()

	notify := func(change StatusChange) {
		select {
		case changes <- change:
		default:
			p.logger.Sugar().Warnw("Dropping status change, observer is falling behind",
				"requestId", requestId,
				"status", change.Status,
			)
		}
	}
	stop := func() {
		close(changes)
		wg.Wait()
	}
	return notify, stop
}

var _ IPoller = (*Poller)(nil)
