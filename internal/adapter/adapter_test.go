package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/config"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/readwrite"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

type fakeClient struct {
	endpoint string
	readErr  error
}

func (c *fakeClient) Endpoint() string                 { return c.endpoint }
func (c *fakeClient) Connect(ctx context.Context) error { return nil }
func (c *fakeClient) Close(ctx context.Context) error   { return nil }
func (c *fakeClient) Read(ctx context.Context, nodes []stack.ReadValueID) ([]stack.DataValue, stack.StatusCode, error) {
	if c.readErr != nil {
		return nil, stack.StatusCode{Raw: 1, Name: "Bad"}, c.readErr
	}
	out := make([]stack.DataValue, len(nodes))
	for i := range nodes {
		out[i] = stack.DataValue{Status: stack.StatusOK, Value: &stack.Variant{Type: stack.TypeInt32, Int: int64(i)}}
	}
	return out, stack.StatusOK, nil
}
func (c *fakeClient) Write(ctx context.Context, values []stack.WriteValue) ([]stack.StatusCode, stack.StatusCode, error) {
	out := make([]stack.StatusCode, len(values))
	for i := range values {
		out[i] = stack.StatusOK
	}
	return out, stack.StatusOK, nil
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
	return 1, stack.StatusOK, nil
}
func (c *fakeClient) MonitoredItemsCreateDataChange(ctx context.Context, subID uint32, item stack.MonitoredItemCreateRequest, cb stack.DataChangeCallback) (stack.MonitoredItemResult, error) {
	return stack.MonitoredItemResult{Status: stack.StatusOK, MonitoredItemID: 1}, nil
}
func (c *fakeClient) SubscriptionsModify(ctx context.Context, subID uint32, params stack.SubscriptionParameters) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) MonitoredItemsModify(ctx context.Context, subID, itemID uint32, params stack.MonitoringParameters) (stack.MonitoredItemResult, error) {
	return stack.MonitoredItemResult{Status: stack.StatusOK}, nil
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
func (c *fakeClient) Republish(ctx context.Context, subID, seq uint32) (stack.StatusCode, error) {
	return stack.StatusOK, nil
}
func (c *fakeClient) RunAsync(ctx context.Context, interval time.Duration) error {
	time.Sleep(time.Millisecond)
	return nil
}

type fakeStack struct {
	client *fakeClient
}

func (s *fakeStack) ParseEndpointURL(url string) (string, string, string, error) {
	return "plant", "4840", "", nil
}
func (s *fakeStack) ClientNew(url string) (stack.Client, error) {
	s.client.endpoint = url
	return s.client, nil
}
func (s *fakeStack) FindServers(ctx context.Context, url string, serverURIs, localeIDs []string) ([]stack.ApplicationDescription, stack.StatusCode, error) {
	return []stack.ApplicationDescription{{ApplicationURI: "urn:test:server", ApplicationType: 0}}, stack.StatusOK, nil
}
func (s *fakeStack) GetEndpoints(ctx context.Context, url string) ([]stack.EndpointDescription, stack.StatusCode, error) {
	return []stack.EndpointDescription{{EndpointURL: url}}, stack.StatusOK, nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeStack, *[]queue.Message) {
	t.Helper()
	cfg := config.Default()
	cfg.Eventbus.Enabled = false
	cfg.WSMonitor.Enabled = false

	a := New(cfg, zap.NewNop())
	fs := &fakeStack{client: &fakeClient{}}
	a.stack = fs

	var got []queue.Message
	err := a.Configure(context.Background(), Callbacks{
		OnResponse: func(m queue.Message) { got = append(got, m) },
		OnError:    func(m queue.Message) { got = append(got, m) },
	}, stack.ApplicationTypeServer)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, fs, &got
}

func TestAdapter_ConnectReadDisconnect(t *testing.T) {
	a, _, got := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.ConnectClient(ctx, "opc.tcp://plant:4840"))

	err := a.ReadNode(ctx, "opc.tcp://plant:4840", []readwrite.NodeRequest{
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 100}, AttributeID: stack.AttributeIDValue},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(*got) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.GeneralResponse, (*got)[0].Type)

	require.NoError(t, a.DisconnectClient(ctx, "opc.tcp://plant:4840"))
}

func TestAdapter_ReadNodeWithoutSessionErrors(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	err := a.ReadNode(context.Background(), "opc.tcp://plant:4840", []readwrite.NodeRequest{
		{NodeID: valuemodel.NodeID{Namespace: 2, Numeric: 100}, AttributeID: stack.AttributeIDValue},
	})
	assert.Error(t, err)
}

func TestAdapter_FindServersAndGetEndpointInfo(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	servers, err := a.FindServers(ctx, "opc.tcp://plant:4840", nil, nil)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "urn:test:server", servers[0].ApplicationURI)

	eps, err := a.GetEndpointInfo(ctx, "opc.tcp://plant:4840")
	require.NoError(t, err)
	require.Len(t, eps, 1)
}

func TestAdapter_ConnectTwiceFails(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.ConnectClient(ctx, "opc.tcp://plant:4840"))
	assert.Error(t, a.ConnectClient(ctx, "opc.tcp://plant:4840"))
}
