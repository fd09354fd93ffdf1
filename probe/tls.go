package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TLSSpec drives the tls prober. The probe measures the leaf certificate's
// remaining validity: below WarningDays the result is a warning, below
// CriticalDays (default 0, meaning expired) it is critical.
type TLSSpec struct {
	Host         string   `json:"host"`
	Port         int      `json:"port,omitempty"`
	Timeout      Duration `json:"timeout,omitempty"`
	WarningDays  int      `json:"warning_days,omitempty"`
	CriticalDays int      `json:"critical_days,omitempty"`
}

// TLS probes certificate expiry.
type TLS struct{}

func (p *TLS) Probe(ctx context.Context, target Target) (Result, error) {
	var spec TLSSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("tls spec: %v", err)
	}
	if spec.Host == "" {
		return Result{}, configErrorf("tls spec: host is required")
	}
	port := spec.Port
	if port == 0 {
		port = 443
	}
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(port))

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: spec.Timeout.orDefault()},
		Config:    &tls.Config{ServerName: spec.Host},
	}
	ctx, cancel := context.WithTimeout(ctx, spec.Timeout.orDefault())
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("handshake %s: %v", addr, err)}, nil
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return Result{Status: Critical, Message: fmt.Sprintf("%s presented no certificate", addr)}, nil
	}
	leaf := certs[0]
	days := int(time.Until(leaf.NotAfter).Hours() / 24)

	switch {
	case days < spec.CriticalDays:
		return Result{Status: Critical, Message: fmt.Sprintf("certificate for %s expires in %d days (floor %d)", spec.Host, days, spec.CriticalDays)}, nil
	case spec.WarningDays > 0 && days < spec.WarningDays:
		return Result{Status: Warning, Message: fmt.Sprintf("certificate for %s expires in %d days", spec.Host, days)}, nil
	}
	return Result{Status: OK, Message: fmt.Sprintf("certificate for %s valid for %d days", spec.Host, days)}, nil
}
