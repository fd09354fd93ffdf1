package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// DNSSpec drives the dns prober. RecordType is one of A, AAAA, CNAME, MX,
// NS or TXT; Expected must match at least one returned record.
type DNSSpec struct {
	Host       string   `json:"host"`
	RecordType string   `json:"record_type"`
	Expected   string   `json:"expected"`
	Timeout    Duration `json:"timeout,omitempty"`
}

// DNS resolves records against a pinned resolver rather than the system
// default, so every site measures the same authority.
type DNS struct {
	resolver *net.Resolver
}

func NewDNS(resolverAddr string) *DNS {
	if !strings.Contains(resolverAddr, ":") {
		resolverAddr = net.JoinHostPort(resolverAddr, "53")
	}
	return &DNS{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: DefaultTimeout}
				return d.DialContext(ctx, network, resolverAddr)
			},
		},
	}
}

func (p *DNS) Probe(ctx context.Context, target Target) (Result, error) {
	var spec DNSSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("dns spec: %v", err)
	}
	if spec.Host == "" {
		return Result{}, configErrorf("dns spec: host is required")
	}

	ctx, cancel := context.WithTimeout(ctx, spec.Timeout.orDefault())
	defer cancel()

	start := time.Now()
	var records []string
	var err error
	switch strings.ToUpper(spec.RecordType) {
	case "A", "AAAA", "":
		var ips []net.IP
		ips, err = p.resolver.LookupIP(ctx, ipNetwork(spec.RecordType), spec.Host)
		for _, ip := range ips {
			records = append(records, ip.String())
		}
	case "CNAME":
		var cname string
		cname, err = p.resolver.LookupCNAME(ctx, spec.Host)
		if err == nil {
			records = append(records, strings.TrimSuffix(cname, "."))
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = p.resolver.LookupMX(ctx, spec.Host)
		for _, mx := range mxs {
			records = append(records, strings.TrimSuffix(mx.Host, "."))
		}
	case "NS":
		var nss []*net.NS
		nss, err = p.resolver.LookupNS(ctx, spec.Host)
		for _, ns := range nss {
			records = append(records, strings.TrimSuffix(ns.Host, "."))
		}
	case "TXT":
		records, err = p.resolver.LookupTXT(ctx, spec.Host)
	default:
		return Result{}, configErrorf("dns spec: unsupported record type %q", spec.RecordType)
	}
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("lookup %s %s: %v", spec.RecordType, spec.Host, err)}, nil
	}

	if spec.Expected != "" {
		for _, r := range records {
			if r == spec.Expected {
				return Result{Status: OK, Message: fmt.Sprintf("%s resolves to %s", spec.Host, r)}, nil
			}
		}
		return Result{Status: Critical, Message: fmt.Sprintf("%s resolved to %s, expected %s", spec.Host, strings.Join(records, ", "), spec.Expected)}, nil
	}
	if len(records) == 0 {
		return Result{Status: Critical, Message: fmt.Sprintf("%s returned no records", spec.Host)}, nil
	}
	return Result{Status: OK, Message: fmt.Sprintf("%s resolved in %s", spec.Host, time.Since(start).Round(time.Millisecond))}, nil
}

func ipNetwork(recordType string) string {
	switch strings.ToUpper(recordType) {
	case "A":
		return "ip4"
	case "AAAA":
		return "ip6"
	}
	return "ip"
}
