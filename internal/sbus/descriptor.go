package sbus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// serviceBusDomains lists the hostname suffixes a namespace endpoint may
// carry, covering the public cloud and the sovereign clouds.
var serviceBusDomains = []string{
	".servicebus.windows.net",
	".servicebus.usgovcloudapi.net",
	".servicebus.chinacloudapi.cn",
	".servicebus.cloudapi.de",
}

const defaultServiceBusDomain = ".servicebus.windows.net"

// ParseConnection decodes a raw serialized descriptor and validates that the
// required fields for the declared auth variant are present. Pure and
// side-effect-free: credential validity is the broker's call at dial time.
func ParseConnection(raw []byte) (Connection, error) {
	var conn Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return Connection{}, WrapError(KindValidation, "connection descriptor is not valid JSON", err)
	}
	if err := conn.Validate(); err != nil {
		return Connection{}, err
	}
	return conn, nil
}

// Validate checks the descriptor's declared auth variant. It performs no
// I/O.
func (c Connection) Validate() error {
	if c.UseAzureAD {
		if strings.TrimSpace(c.Namespace) == "" {
			return Errorf(KindValidation, "namespace is required for Azure AD authentication")
		}
		return nil
	}
	if strings.TrimSpace(c.ConnectionString) == "" {
		return Errorf(KindValidation, "connection string is required")
	}
	_, err := parseConnectionString(c.ConnectionString)
	return err
}

// FullyQualifiedNamespace resolves the host the broker SDK dials, e.g.
// "contoso.servicebus.windows.net".
func (c Connection) FullyQualifiedNamespace() (string, error) {
	if c.UseAzureAD {
		ns := strings.TrimSpace(c.Namespace)
		if ns == "" {
			return "", Errorf(KindValidation, "namespace is required for Azure AD authentication")
		}
		// Bare namespace names get the public-cloud domain appended.
		if !strings.Contains(ns, ".") {
			return ns + defaultServiceBusDomain, nil
		}
		return ns, nil
	}
	parsed, err := parseConnectionString(c.ConnectionString)
	if err != nil {
		return "", err
	}
	host, err := endpointHost(parsed.Endpoint)
	if err != nil {
		return "", err
	}
	return host, nil
}

// parsedConnectionString holds the segments of a
// "Endpoint=...;SharedAccessKeyName=...;SharedAccessKey=..." string.
type parsedConnectionString struct {
	Endpoint            string
	SharedAccessKeyName string
	SharedAccessKey     string
	EntityPath          string
}

func parseConnectionString(s string) (parsedConnectionString, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return parsedConnectionString{}, Errorf(KindValidation, "connection string cannot be empty")
	}

	var parsed parsedConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "endpoint":
			parsed.Endpoint = value
		case "sharedaccesskeyname":
			parsed.SharedAccessKeyName = value
		case "sharedaccesskey":
			parsed.SharedAccessKey = value
		case "entitypath":
			parsed.EntityPath = value
		}
	}

	if parsed.Endpoint == "" {
		return parsedConnectionString{}, Errorf(KindValidation,
			"missing Endpoint in connection string (expected Endpoint=sb://...;SharedAccessKeyName=...;SharedAccessKey=...)")
	}
	if parsed.SharedAccessKeyName == "" {
		return parsedConnectionString{}, Errorf(KindValidation, "missing SharedAccessKeyName in connection string")
	}
	if parsed.SharedAccessKey == "" {
		return parsedConnectionString{}, Errorf(KindValidation, "missing SharedAccessKey in connection string")
	}
	return parsed, nil
}

// endpointHost normalizes an endpoint ("sb://ns.servicebus.windows.net/",
// with or without scheme or trailing slash) down to its hostname and checks
// it against the known Service Bus domains.
func endpointHost(endpoint string) (string, error) {
	e := strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(e, "sb://"):
		e = "https://" + strings.TrimSuffix(e[len("sb://"):], "/")
	case strings.HasPrefix(e, "http://"), strings.HasPrefix(e, "https://"):
		e = strings.TrimSuffix(e, "/")
	default:
		e = "https://" + strings.TrimSuffix(e, "/")
	}

	u, err := url.Parse(e)
	if err != nil {
		return "", WrapError(KindValidation, fmt.Sprintf("invalid endpoint URL %q", endpoint), err)
	}
	host := u.Hostname()
	if host == "" {
		return "", Errorf(KindValidation, "invalid endpoint %q: missing host", endpoint)
	}
	for _, domain := range serviceBusDomains {
		if strings.HasSuffix(host, domain) && len(host) > len(domain) {
			return host, nil
		}
	}
	return "", Errorf(KindValidation,
		"invalid Service Bus endpoint %q (supported domains: *.servicebus.windows.net, *.servicebus.usgovcloudapi.net, *.servicebus.chinacloudapi.cn, *.servicebus.cloudapi.de)", host)
}

// NamespaceName extracts the bare namespace name from an endpoint host.
func NamespaceName(host string) string {
	for _, domain := range serviceBusDomains {
		if strings.HasSuffix(host, domain) {
			return strings.TrimSuffix(host, domain)
		}
	}
	return host
}
