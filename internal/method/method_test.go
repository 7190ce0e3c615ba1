package method

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

type fakeClient struct {
	outputs []stack.Argument
	status  stack.StatusCode
	err     error

	gotObjectID, gotMethodID stack.NodeID
	gotInputs                []stack.Argument
}

func (c *fakeClient) Endpoint() string                 { return "opc.tcp://plant:4840" }
func (c *fakeClient) Connect(ctx context.Context) error { return nil }
func (c *fakeClient) Close(ctx context.Context) error   { return nil }
func (c *fakeClient) Read(ctx context.Context, nodes []stack.ReadValueID) ([]stack.DataValue, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) Write(ctx context.Context, values []stack.WriteValue) ([]stack.StatusCode, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) Browse(ctx context.Context, descs []stack.BrowseDescription) ([]stack.BrowseResult, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) BrowseNext(ctx context.Context, cps [][]byte) ([]stack.BrowseResult, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) CallMethod(ctx context.Context, objectID, methodID stack.NodeID, inputs []stack.Argument) ([]stack.Argument, stack.StatusCode, error) {
	c.gotObjectID, c.gotMethodID, c.gotInputs = objectID, methodID, inputs
	return c.outputs, c.status, c.err
}
func (c *fakeClient) SubscriptionsCreate(ctx context.Context, params stack.SubscriptionParameters) (uint32, stack.StatusCode, error) {
	return 0, stack.StatusOK, nil
}
func (c *fakeClient) MonitoredItemsCreateDataChange(ctx context.Context, subID uint32, item stack.MonitoredItemCreateRequest, cb stack.DataChangeCallback) (stack.MonitoredItemResult, error) {
	return stack.MonitoredItemResult{}, nil
}
func (c *fakeClient) SubscriptionsModify(ctx context.Context, subID uint32, params stack.SubscriptionParameters) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) MonitoredItemsModify(ctx context.Context, subID, itemID uint32, params stack.MonitoringParameters) (stack.MonitoredItemResult, error) {
	return stack.MonitoredItemResult{}, nil
}
func (c *fakeClient) SetMonitoringMode(ctx context.Context, subID, itemID uint32, reporting bool) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) SetPublishingMode(ctx context.Context, subID uint32, enabled bool) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) SubscriptionsDeleteSingle(ctx context.Context, subID uint32) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) MonitoredItemsDeleteSingle(ctx context.Context, subID, itemID uint32) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) Republish(ctx context.Context, subID uint32, seq uint32) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) RunAsync(ctx context.Context, interval time.Duration) error { return nil }

func drainQueue(t *testing.T) (*queue.Queue, *[]queue.Message) {
	t.Helper()
	var got []queue.Message
	q := queue.New(zap.NewNop(), 8, queue.Callbacks{
		OnResponse: func(m queue.Message) { got = append(got, m) },
		OnError:    func(m queue.Message) { got = append(got, m) },
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q, &got
}

func TestCall_SuccessDecodesOutputs(t *testing.T) {
	client := &fakeClient{
		status: stack.StatusOK,
		outputs: []stack.Argument{
			{Value: &stack.Variant{Type: stack.TypeInt32, Int: 99}},
		},
	}
	q, got := drainQueue(t)

	object := valuemodel.NodeID{Namespace: 2, Numeric: 5000}
	m := valuemodel.NodeID{Namespace: 2, Numeric: 5001}
	require.NoError(t, Call(context.Background(), client, q, "opc.tcp://plant:4840", object, m, []valuemodel.Value{
		{Kind: valuemodel.KindInt, Int: 42},
	}))

	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.GeneralResponse, (*got)[0].Type)
	results, ok := (*got)[0].Payload.([]valuemodel.Value)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, int64(99), results[0].Int)

	require.Len(t, client.gotInputs, 1)
	assert.Equal(t, int64(42), client.gotInputs[0].Value.Int)
	assert.Equal(t, uint32(5000), client.gotObjectID.Numeric)
	assert.Equal(t, uint32(5001), client.gotMethodID.Numeric)
}

func TestCall_BadStatusEmitsSingleError(t *testing.T) {
	client := &fakeClient{status: stack.StatusBadNodeIDUnknown}
	q, got := drainQueue(t)

	require.NoError(t, Call(context.Background(), client, q, "opc.tcp://plant:4840", valuemodel.NodeID{}, valuemodel.NodeID{}, nil))
	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.Error, (*got)[0].Type)
}

func TestCall_TransportErrorEmitsSingleError(t *testing.T) {
	client := &fakeClient{status: stack.StatusOK, err: assert.AnError}
	q, got := drainQueue(t)

	require.NoError(t, Call(context.Background(), client, q, "opc.tcp://plant:4840", valuemodel.NodeID{}, valuemodel.NodeID{}, nil))
	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.Error, (*got)[0].Type)
}
