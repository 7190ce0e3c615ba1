package readwrite

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

// fakeClient implements stack.Client, returning canned Read/Write results.
type fakeClient struct {
	readValues  []stack.DataValue
	readStatus  stack.StatusCode
	readErr     error
	writeStatus stack.StatusCode
	writeErr    error
	writeResult []stack.StatusCode
}

func (c *fakeClient) Endpoint() string                 { return "opc.tcp://plant:4840" }
func (c *fakeClient) Connect(ctx context.Context) error { return nil }
func (c *fakeClient) Close(ctx context.Context) error   { return nil }
func (c *fakeClient) Read(ctx context.Context, nodes []stack.ReadValueID) ([]stack.DataValue, stack.StatusCode, error) {
	return c.readValues, c.readStatus, c.readErr
}
func (c *fakeClient) Write(ctx context.Context, values []stack.WriteValue) ([]stack.StatusCode, stack.StatusCode, error) {
	return c.writeResult, c.writeStatus, c.writeErr
}
func (c *fakeClient) Browse(ctx context.Context, descs []stack.BrowseDescription) ([]stack.BrowseResult, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) BrowseNext(ctx context.Context, cps [][]byte) ([]stack.BrowseResult, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}
func (c *fakeClient) CallMethod(ctx context.Context, objectID, methodID stack.NodeID, inputs []stack.Argument) ([]stack.Argument, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
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

func drainQueue(t *testing.T, bufferSize int) (*queue.Queue, *[]queue.Message) {
	t.Helper()
	var got []queue.Message
	q := queue.New(zap.NewNop(), bufferSize, queue.Callbacks{
		OnResponse: func(m queue.Message) { got = append(got, m) },
		OnError:    func(m queue.Message) { got = append(got, m) },
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q, &got
}

func threeNodeRequests() []NodeRequest {
	return []NodeRequest{
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1001}, AttributeID: stack.AttributeIDValue},
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1002}, AttributeID: stack.AttributeIDValue},
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1003}, AttributeID: stack.AttributeIDValue},
	}
}

func TestRead_MultiNodeOneBadIsolatesAndAggregates(t *testing.T) {
	client := &fakeClient{
		readStatus: stack.StatusOK,
		readValues: []stack.DataValue{
			{Status: stack.StatusOK, Value: &stack.Variant{Type: stack.TypeInt32, Int: 41}},
			{Status: stack.StatusBadNodeIDUnknown},
			{Status: stack.StatusOK, Value: &stack.Variant{Type: stack.TypeInt32, Int: 43}},
		},
	}
	q, got := drainQueue(t, 8)

	require.NoError(t, Read(context.Background(), client, q, "opc.tcp://plant:4840", threeNodeRequests()))
	require.Eventually(t, func() bool { return len(*got) == 2 }, time.Second, time.Millisecond)

	var sawError, sawResponse bool
	for _, m := range *got {
		switch m.Type {
		case queue.Error:
			sawError = true
		case queue.GeneralResponse:
			sawResponse = true
			results, ok := m.Payload.([]NodeResult)
			require.True(t, ok)
			assert.Len(t, results, 2)
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawResponse)
}

func TestRead_SingleNodeBadStopsImmediately(t *testing.T) {
	client := &fakeClient{
		readStatus: stack.StatusOK,
		readValues: []stack.DataValue{{Status: stack.StatusBadNodeIDUnknown}},
	}
	q, got := drainQueue(t, 8)

	require.NoError(t, Read(context.Background(), client, q, "opc.tcp://plant:4840", []NodeRequest{
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1001}, AttributeID: stack.AttributeIDValue},
	}))
	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.Error, (*got)[0].Type)
}

func TestRead_ServiceLevelFailureEmitsSingleError(t *testing.T) {
	client := &fakeClient{readStatus: stack.StatusBadTimeout}
	q, got := drainQueue(t, 8)

	require.NoError(t, Read(context.Background(), client, q, "opc.tcp://plant:4840", threeNodeRequests()))
	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.Error, (*got)[0].Type)
}

func TestRead_EmptyRequestErrors(t *testing.T) {
	client := &fakeClient{}
	q, _ := drainQueue(t, 8)
	assert.Error(t, Read(context.Background(), client, q, "opc.tcp://plant:4840", nil))
}

func TestWrite_MultiNodeOneBadIsolatesAndAggregates(t *testing.T) {
	client := &fakeClient{
		writeStatus: stack.StatusOK,
		writeResult: []stack.StatusCode{stack.StatusOK, stack.StatusBadNodeIDUnknown},
	}
	q, got := drainQueue(t, 8)

	requests := []WriteRequest{
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1001}, AttributeID: stack.AttributeIDValue, Value: valuemodel.Value{Kind: valuemodel.KindInt, Int: 7}},
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 1002}, AttributeID: stack.AttributeIDValue, Value: valuemodel.Value{Kind: valuemodel.KindInt, Int: 8}},
	}
	require.NoError(t, Write(context.Background(), client, q, "opc.tcp://plant:4840", requests))
	require.Eventually(t, func() bool { return len(*got) == 2 }, time.Second, time.Millisecond)

	var sawError, sawResponse bool
	for _, m := range *got {
		if m.Type == queue.Error {
			sawError = true
		}
		if m.Type == queue.GeneralResponse {
			sawResponse = true
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawResponse)
}

func TestWrite_EmptyRequestErrors(t *testing.T) {
	client := &fakeClient{}
	q, _ := drainQueue(t, 8)
	assert.Error(t, Write(context.Background(), client, q, "opc.tcp://plant:4840", nil))
}
