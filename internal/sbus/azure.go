package sbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
)

// azureDialer opens sessions against real Azure Service Bus namespaces.
type azureDialer struct{}

// NewAzureDialer returns the production Dialer.
func NewAzureDialer() Dialer {
	return azureDialer{}
}

func (azureDialer) Dial(ctx context.Context, conn Connection) (Session, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	var (
		client      *azservicebus.Client
		adminClient *admin.Client
		err         error
	)
	if conn.UseAzureAD {
		fqns, nsErr := conn.FullyQualifiedNamespace()
		if nsErr != nil {
			return nil, nsErr
		}
		cred, credErr := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: strings.TrimSpace(conn.TenantID),
		})
		if credErr != nil {
			return nil, WrapError(KindConnectivity, "failed to build Azure AD credential", credErr)
		}
		client, err = azservicebus.NewClient(fqns, cred, nil)
		if err == nil {
			adminClient, err = admin.NewClient(fqns, cred, nil)
		}
	} else {
		client, err = azservicebus.NewClientFromConnectionString(conn.ConnectionString, nil)
		if err == nil {
			adminClient, err = admin.NewClientFromConnectionString(conn.ConnectionString, nil)
		}
	}
	if err != nil {
		return nil, WrapError(KindConnectivity, "failed to connect to namespace", err)
	}

	sess := &azureSession{client: client, admin: adminClient}

	// The SDK connects lazily; probe the namespace so bad credentials and
	// unreachable hosts fail here, at open time, not mid-operation.
	if _, err := adminClient.GetNamespaceProperties(ctx, nil); err != nil {
		_ = sess.Close(ctx)
		return nil, WrapError(KindConnectivity, "namespace is not reachable", err)
	}
	return sess, nil
}

// azureSession holds one data-plane and one admin-plane client for one
// request. Close is idempotent.
type azureSession struct {
	client *azservicebus.Client
	admin  *admin.Client

	closeOnce sync.Once
	closeErr  error
}

func (s *azureSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close(ctx)
	})
	return s.closeErr
}

// classify maps a broker failure onto the error taxonomy, keeping the
// broker's own message text intact.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeUnauthorizedAccess, azservicebus.CodeConnectionLost:
			return WrapError(KindConnectivity, op, err)
		case azservicebus.CodeNotFound:
			return WrapError(KindNotFound, op, err)
		}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 400:
			return WrapError(KindValidation, op, err)
		case 401, 403:
			return WrapError(KindConnectivity, op, err)
		case 404:
			return WrapError(KindNotFound, op, err)
		case 409:
			return WrapError(KindConflict, op, err)
		}
	}

	return WrapError(KindBroker, op, err)
}

// isoDurationSeconds parses the ISO 8601 durations the admin plane reports
// (e.g. "PT1M", "P14DT3H"). Fractional seconds truncate.
func isoDurationSeconds(s *string) *int64 {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if !strings.HasPrefix(v, "P") {
		return nil
	}
	v = v[1:]

	datePart, timePart, hasTime := strings.Cut(v, "T")
	total := int64(0)
	parsePart := func(part string, units map[byte]int64) bool {
		start := 0
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c >= '0' && c <= '9' || c == '.' {
				continue
			}
			mult, ok := units[c]
			if !ok || start == i {
				return false
			}
			n, err := strconv.ParseFloat(part[start:i], 64)
			if err != nil {
				return false
			}
			total += int64(n * float64(mult))
			start = i + 1
		}
		return start == len(part)
	}

	if !parsePart(datePart, map[byte]int64{'Y': 365 * 24 * 3600, 'M': 30 * 24 * 3600, 'W': 7 * 24 * 3600, 'D': 24 * 3600}) {
		return nil
	}
	if hasTime && !parsePart(timePart, map[byte]int64{'H': 3600, 'M': 60, 'S': 1}) {
		return nil
	}
	return &total
}

// secondsToISODuration renders seconds as the PT#H#M#S form the admin plane
// accepts.
func secondsToISODuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if secs > 0 || b.Len() == len("PT") {
		fmt.Fprintf(&b, "%dS", secs)
	}
	return b.String()
}

func isoDurationFromSeconds(seconds *int64) *string {
	if seconds == nil {
		return nil
	}
	v := secondsToISODuration(*seconds)
	return &v
}

func int64Ptr(v int64) *int64 { return &v }

func int32To64(v *int32) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func int64To32(v *int64) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
