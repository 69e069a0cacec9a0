package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemgate/chemgate/adapter"
	"github.com/chemgate/chemgate/metrics"
	"github.com/chemgate/chemgate/registry"
	"github.com/chemgate/chemgate/types"
)

// newTool builds a single-operation tool whose handler is supplied by the
// test.
func newTool(name string, schema adapter.Schema, handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)) adapter.Tool {
	t := adapter.NewFuncTool(name)
	t.AddOperation("run", adapter.Operation{Schema: schema, Handler: handler})
	return t
}

func newGateway(t *testing.T, cfg Config, tools ...adapter.Tool) (*Gateway, *registry.Registry, *metrics.Collector) {
	t.Helper()
	reg := registry.New()
	for _, tool := range tools {
		require.NoError(t, reg.Register(context.Background(),
			types.ToolDescriptor{Name: tool.Name(), Capabilities: []string{"test"}}, tool))
	}
	collector := metrics.NewCollector(nil)
	return New(reg, collector, cfg, nil), reg, collector
}

func request(tool string, args map[string]interface{}) types.ToolRequest {
	return types.ToolRequest{ToolName: tool, Operation: "run", Arguments: args}
}

func TestInvokeSuccess(t *testing.T) {
	tool := newTool("gen", adapter.Schema{"mw": {Type: adapter.TypeNumber, Required: true}},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"smiles": "CCO"}, nil
		})
	gw, _, collector := newGateway(t, Config{}, tool)

	result := gw.Invoke(context.Background(), request("gen", map[string]interface{}{"mw": 400.0}), 0, -1)
	require.Equal(t, types.ResultOK, result.Status)
	assert.Equal(t, "CCO", result.Payload["smiles"])
	assert.NotEmpty(t, result.RequestID, "request ID is generated when absent")

	stats, ok := collector.Snapshot("gen")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Invocations)
	assert.Equal(t, uint64(1), stats.Successes)
}

func TestInvokeEchoesRequestID(t *testing.T) {
	tool := newTool("gen", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		})
	gw, _, _ := newGateway(t, Config{}, tool)

	req := request("gen", nil)
	req.RequestID = "req-123"
	result := gw.Invoke(context.Background(), req, 0, -1)
	assert.Equal(t, "req-123", result.RequestID)
}

func TestInvokeToolNotFound(t *testing.T) {
	gw, reg, _ := newGateway(t, Config{})

	result := gw.Invoke(context.Background(), request("nonexistent-tool", nil), 0, -1)
	require.Equal(t, types.ResultError, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.CodeToolNotFound, result.Error.Code)

	// No registry mutation.
	tools, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestInvokeValidationBeforeDispatch(t *testing.T) {
	var calls int32
	tool := newTool("gen", adapter.Schema{"mw": {Type: adapter.TypeNumber, Required: true}},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return map[string]interface{}{}, nil
		})
	gw, _, _ := newGateway(t, Config{}, tool)

	result := gw.Invoke(context.Background(), request("gen", map[string]interface{}{"logp": 2.0}), 0, -1)
	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodeInvalidArgument, result.Error.Code)
	assert.Equal(t, []string{"mw"}, result.Error.Details["keys"])
	assert.Zero(t, atomic.LoadInt32(&calls), "adapter must not run on validation failure")
}

func TestInvokeUnknownOperation(t *testing.T) {
	tool := newTool("gen", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		})
	gw, _, _ := newGateway(t, Config{}, tool)

	result := gw.Invoke(context.Background(), types.ToolRequest{
		ToolName: "gen", Operation: "does-not-exist",
	}, 0, -1)
	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodePermanent, result.Error.Code)
}

func TestTransientRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	tool := newTool("flaky", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return nil, types.NewError(types.CodeTransientUnavailable, "temporarily busy")
			}
			return map[string]interface{}{"done": true}, nil
		})
	gw, _, _ := newGateway(t, Config{BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond}, tool)

	// Fails twice, succeeds on the third attempt: within maxRetries=2.
	result := gw.Invoke(context.Background(), request("flaky", nil), 0, 2)
	require.Equal(t, types.ResultOK, result.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestTransientRetryExhaustion(t *testing.T) {
	var attempts int32
	tool := newTool("flaky", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, types.NewError(types.CodeTransientUnavailable, "temporarily busy")
		})
	gw, _, collector := newGateway(t, Config{BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond}, tool)

	result := gw.Invoke(context.Background(), request("flaky", nil), 0, 1)
	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodeTransientUnavailable, result.Error.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts), "one initial attempt plus one retry")

	stats, ok := collector.Snapshot("flaky")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Invocations, "retries are not individually visible")
	assert.Equal(t, uint64(1), stats.FailuresByKind[types.CodeTransientUnavailable])
}

func TestPermanentFailureNotRetried(t *testing.T) {
	var attempts int32
	tool := newTool("strict", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, types.NewError(types.CodePermanent, "malformed SMILES")
		})
	gw, _, _ := newGateway(t, Config{}, tool)

	result := gw.Invoke(context.Background(), request("strict", nil), 0, 5)
	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodePermanent, result.Error.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestTimeoutCancelsAdapter(t *testing.T) {
	cancelled := make(chan struct{})
	tool := newTool("slow", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			select {
			case <-ctx.Done():
				close(cancelled)
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]interface{}{}, nil
			}
		})
	gw, _, _ := newGateway(t, Config{}, tool)

	result := gw.Invoke(context.Background(), request("slow", nil), 30*time.Millisecond, 0)
	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodeTimeout, result.Error.Code)

	select {
	case <-cancelled:
		// Cancellation reached the adapter.
	case <-time.After(time.Second):
		t.Fatal("adapter never observed cancellation")
	}
}

func TestConcurrencyCeilingBackpressure(t *testing.T) {
	var inFlight, peak int32
	tool := newTool("busy", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return map[string]interface{}{}, nil
		})
	gw, _, _ := newGateway(t, Config{ToolConcurrency: 2}, tool)

	done := make(chan types.ToolResult, 6)
	for i := 0; i < 6; i++ {
		go func() {
			done <- gw.Invoke(context.Background(), request("busy", nil), 0, 0)
		}()
	}
	for i := 0; i < 6; i++ {
		result := <-done
		assert.Equal(t, types.ResultOK, result.Status, "excess callers wait, they are not rejected")
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSlotWaitBoundedByCallerContext(t *testing.T) {
	release := make(chan struct{})
	tool := newTool("busy", adapter.Schema{},
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			<-release
			return map[string]interface{}{}, nil
		})
	gw, _, _ := newGateway(t, Config{ToolConcurrency: 1}, tool)

	started := make(chan struct{})
	go func() {
		close(started)
		gw.Invoke(context.Background(), request("busy", nil), time.Minute, 0)
	}()
	<-started
	time.Sleep(10 * time.Millisecond) // let the first call take the slot

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := gw.Invoke(ctx, request("busy", nil), time.Minute, 0)
	close(release)

	require.Equal(t, types.ResultError, result.Status)
	assert.Equal(t, types.CodeTimeout, result.Error.Code)
}
