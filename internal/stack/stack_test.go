package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode_Good(t *testing.T) {
	assert.True(t, StatusOK.Good())
	assert.False(t, StatusBadNodeIDUnknown.Good())
	assert.False(t, StatusBadTimeout.Good())
}

func TestParseEndpointURL(t *testing.T) {
	s := NewGopcuaStack()

	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "host and port",
			url:      "opc.tcp://10.0.0.5:4840/freeopcua/server/",
			wantHost: "10.0.0.5",
			wantPort: "4840",
			wantPath: "/freeopcua/server/",
		},
		{
			name:     "no explicit port",
			url:      "opc.tcp://historian.plant.local",
			wantHost: "historian.plant.local",
			wantPort: "",
			wantPath: "",
		},
		{
			name:    "malformed url",
			url:     "opc.tcp://[::1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, path, err := s.ParseEndpointURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNodeIDKey(t *testing.T) {
	tests := []struct {
		name string
		node NodeID
		want string
	}{
		{
			name: "numeric",
			node: NodeID{Namespace: 2, IdentifierType: IdentifierNumeric, Numeric: 1001},
			want: "ns=2;i=1001",
		},
		{
			name: "string",
			node: NodeID{Namespace: 3, IdentifierType: IdentifierString, Text: "Temperature"},
			want: "ns=3;s=Temperature",
		},
		{
			name: "guid",
			node: NodeID{Namespace: 1, IdentifierType: IdentifierGUID, Text: "550e8400-e29b-41d4-a716-446655440000"},
			want: "ns=1;g=550e8400-e29b-41d4-a716-446655440000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nodeIDKey(tt.node))
		})
	}
}

func TestGopcuaServer_AddRemoveNode(t *testing.T) {
	srv, err := NewServer(ServerConfig{EndpointURL: "opc.tcp://0.0.0.0:4840"})
	require.NoError(t, err)

	item := ServerNodeItem{
		NodeID:      NodeID{Namespace: 2, IdentifierType: IdentifierNumeric, Numeric: 1},
		DisplayName: LocalizedText{Locale: "en", Text: "Temperature"},
		NodeClass:   NodeClassVariable,
	}

	require.NoError(t, srv.AddNode(item))
	assert.Error(t, srv.AddNode(item), "duplicate node should be rejected")

	require.NoError(t, srv.RemoveNode(item.NodeID))
	assert.Error(t, srv.RemoveNode(item.NodeID), "removing an unknown node should error")
}
