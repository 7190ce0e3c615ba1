package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
)

type fakeStack struct {
	servers []stack.ApplicationDescription
}

func (f *fakeStack) ParseEndpointURL(url string) (string, string, string, error) {
	return "", "", "", nil
}
func (f *fakeStack) ClientNew(url string) (stack.Client, error) { return nil, nil }
func (f *fakeStack) FindServers(ctx context.Context, url string, serverURIs, localeIDs []string) ([]stack.ApplicationDescription, stack.StatusCode, error) {
	return f.servers, stack.StatusOK, nil
}
func (f *fakeStack) GetEndpoints(ctx context.Context, url string) ([]stack.EndpointDescription, stack.StatusCode, error) {
	return nil, stack.StatusOK, nil
}

func TestFindServers_FiltersByApplicationType(t *testing.T) {
	st := &fakeStack{servers: []stack.ApplicationDescription{
		{ApplicationURI: "urn:plant:historian", ApplicationType: 0}, // Server
		{ApplicationURI: "urn:plant:tool", ApplicationType: 1},      // Client
	}}

	out, status, err := FindServers(context.Background(), st, "opc.tcp://disco:4840", nil, nil, stack.ApplicationTypeServer)
	require.NoError(t, err)
	assert.True(t, status.Good())
	require.Len(t, out, 1)
	assert.Equal(t, "urn:plant:historian", out[0].ApplicationURI)
}

func TestFindServers_FiltersInvalidURI(t *testing.T) {
	st := &fakeStack{servers: []stack.ApplicationDescription{
		{ApplicationURI: "abc", ApplicationType: 0},
		{ApplicationURI: "urn:ok", ApplicationType: 0},
		{ApplicationURI: "opc.tcp://9.9.9.9:4840", ApplicationType: 0},
		{ApplicationURI: "opc.tcp://9.9.9.999:4840", ApplicationType: 0},
	}}

	out, _, err := FindServers(context.Background(), st, "opc.tcp://disco:4840", nil, nil, stack.ApplicationTypeServer)
	require.NoError(t, err)

	var uris []string
	for _, s := range out {
		uris = append(uris, s.ApplicationURI)
	}
	assert.ElementsMatch(t, []string{"urn:ok", "opc.tcp://9.9.9.9:4840"}, uris)
}

func TestFindServers_FiltersByServerURIsExactMatch(t *testing.T) {
	st := &fakeStack{servers: []stack.ApplicationDescription{
		{ApplicationURI: "urn:a", ApplicationType: 0},
		{ApplicationURI: "urn:b", ApplicationType: 0},
	}}

	out, _, err := FindServers(context.Background(), st, "opc.tcp://disco:4840", []string{"urn:b"}, nil, stack.ApplicationTypeServer)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "urn:b", out[0].ApplicationURI)
}

func TestFindServers_FiltersByLocale(t *testing.T) {
	st := &fakeStack{servers: []stack.ApplicationDescription{
		{ApplicationURI: "urn:a", ApplicationType: 0, ApplicationName: stack.LocalizedText{Locale: "en"}},
		{ApplicationURI: "urn:b", ApplicationType: 0, ApplicationName: stack.LocalizedText{Locale: "de"}},
	}}

	out, _, err := FindServers(context.Background(), st, "opc.tcp://disco:4840", nil, []string{"de"}, stack.ApplicationTypeServer)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "urn:b", out[0].ApplicationURI)
}

func TestIsDottedQuadIPv4(t *testing.T) {
	assert.True(t, isDottedQuadIPv4("10.0.0.5"))
	assert.True(t, isDottedQuadIPv4("255.255.255.255"))
	assert.False(t, isDottedQuadIPv4("256.0.0.1"))
	assert.False(t, isDottedQuadIPv4("10.0.0"))
	assert.False(t, isDottedQuadIPv4("10.0.0.0.1"))
}
