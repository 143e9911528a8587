package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/atempo-ai/atempo-core/core/events"
	"github.com/atempo-ai/atempo-core/core/session"
	"github.com/atempo-ai/atempo-core/core/tools"
)

const defaultToolTimeout = 10 * time.Second

// toolDispatcher maps tool-call requests onto registered handlers. Requests
// of one batch run concurrently; the batch result always contains exactly one
// entry per request, in request order, regardless of individual outcomes.
type toolDispatcher struct {
	registry *tools.Registry
	timeout  time.Duration
	emit     eventEmitter
}

func newToolDispatcher(registry *tools.Registry, timeout time.Duration, emit eventEmitter) *toolDispatcher {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	if registry == nil {
		registry, _ = tools.NewRegistry()
	}
	return &toolDispatcher{registry: registry, timeout: timeout, emit: emit}
}

// Dispatch executes one batch. A missing handler, a handler error, a panic
// and a timeout all become error results; none of them propagate out, so a
// tool failure never terminates the session.
func (d *toolDispatcher) Dispatch(ctx context.Context, batch []session.ToolCallRequest) []session.ToolCallResult {
	ctx, span := tracer.Start(ctx, "dispatch tool batch")
	defer span.End()
	span.SetAttributes(attribute.Int("tool.batch_size", len(batch)))

	results := make([]session.ToolCallResult, len(batch))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, request := range batch {
		group.Go(func() error {
			results[i] = d.dispatchOne(groupCtx, request)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func (d *toolDispatcher) dispatchOne(ctx context.Context, request session.ToolCallRequest) session.ToolCallResult {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", request.Name),
		attribute.String("tool.call_id", request.ID),
	)

	arguments, _ := json.Marshal(request.Arguments)
	d.emit(events.NewToolCallStarted(request.ID, request.Name, arguments))

	tool, ok := d.registry.Lookup(request.Name)
	if !ok {
		err := fmt.Errorf("tool not found: %s", request.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.emit(events.NewToolCallFailed(request.ID, request.Name, "tool not found"))
		return session.Err(request, "tool not found")
	}

	value, err := d.invoke(ctx, tool, request.Arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.emit(events.NewToolCallFailed(request.ID, request.Name, err.Error()))
		return session.Err(request, err.Error())
	}

	d.emit(events.NewToolCallCompleted(request.ID, request.Name, value))
	return session.Ok(request, value)
}

// invoke runs the handler under the dispatcher's own deadline. The deadline
// is enforced from the outside so a handler stuck in network I/O cannot stall
// the receive loop; its goroutine is abandoned to finish on its own.
func (d *toolDispatcher) invoke(ctx context.Context, tool tools.Tool, arguments map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		value string
		err   error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := tool.Execute(ctx, arguments)
		resultCh <- outcome{value: value, err: err}
	}()

	select {
	case result := <-resultCh:
		return result.value, result.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timeout")
		}
		// The pipeline is shutting down, not the tool overrunning.
		return "", fmt.Errorf("cancelled")
	}
}
