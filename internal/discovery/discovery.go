// Package discovery implements FindServers/GetEndpoints and the
// ApplicationDescription validation rules of spec §4.4 (component D).
package discovery

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
)

// GetEndpoints is a thin pass-through to the stack.
func GetEndpoints(ctx context.Context, st stack.Stack, endpointURL string) ([]stack.EndpointDescription, stack.StatusCode, error) {
	return st.GetEndpoints(ctx, endpointURL)
}

// FindServers calls the stack and filters the returned application
// descriptions per spec §4.4. Rejected descriptions are dropped silently
// (error category 5, discovery filter).
func FindServers(ctx context.Context, st stack.Stack, discoveryURL string, serverURIs, localeIDs []string, supportedTypes stack.ApplicationTypeMask) ([]stack.ApplicationDescription, stack.StatusCode, error) {
	servers, status, err := st.FindServers(ctx, discoveryURL, serverURIs, localeIDs)
	if err != nil || !status.Good() {
		return nil, status, err
	}

	out := make([]stack.ApplicationDescription, 0, len(servers))
	for _, s := range servers {
		if valid(s, serverURIs, localeIDs, supportedTypes) {
			out = append(out, s)
		}
	}
	return out, stack.StatusOK, nil
}

func valid(app stack.ApplicationDescription, serverURIs, localeIDs []string, supportedTypes stack.ApplicationTypeMask) bool {
	if stack.ApplicationTypeMask(1<<app.ApplicationType)&supportedTypes == 0 {
		return false
	}
	if !validApplicationURI(app.ApplicationURI) {
		return false
	}
	if len(serverURIs) > 0 && !exactMatch(app.ApplicationURI, serverURIs) {
		return false
	}
	if len(localeIDs) > 0 && !exactMatch(app.ApplicationName.Locale, localeIDs) {
		return false
	}
	return true
}

func exactMatch(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// validApplicationURI implements spec §4.4's URI shape check: length ≥ 5;
// a "urn:" scheme is always accepted; otherwise the URI must parse as an
// endpoint URL with a non-empty host, and a host beginning with a digit
// must be a syntactically valid dotted-quad IPv4 address.
func validApplicationURI(uri string) bool {
	if len(uri) < 5 {
		return false
	}
	if strings.HasPrefix(uri, "urn:") {
		return true
	}

	u, err := url.Parse(uri)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	if host[0] >= '0' && host[0] <= '9' {
		return isDottedQuadIPv4(host)
	}
	return true
}

func isDottedQuadIPv4(host string) bool {
	segments := strings.Split(host, ".")
	if len(segments) != 4 {
		return false
	}
	for _, seg := range segments {
		if len(seg) < 1 || len(seg) > 3 {
			return false
		}
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
