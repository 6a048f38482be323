package tlscheck

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/config"
)

const (
	dialTimeout = 10 * time.Second
	// ExpiringDays is the threshold under which a certificate is reported
	// as expiring.
	ExpiringDays = 30
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// CertStatus describes the leaf certificate of a store endpoint.
type CertStatus struct {
	URL      string `json:"url"`
	Status   string `json:"status"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"`
	DaysLeft int    `json:"days_left"`
	Error    string `json:"error,omitempty"`
}

// Check dials the store's HTTPS endpoint and reports its certificate. It
// returns nil for plain-HTTP URLs. The store's insecure_skip_verify setting
// applies, so a certificate the client would reject reports unreachable.
func Check(ctx context.Context, store config.Store) *CertStatus {
	return check(ctx, store, time.Now())
}

func check(ctx context.Context, store config.Store, now time.Time) *CertStatus {
	u, err := url.Parse(store.URL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{URL: store.URL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: store.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		cs.Error = err.Error()
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peers[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= ExpiringDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}
