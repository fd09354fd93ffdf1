package probe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// WhoisSpec drives the whois prober. The probe queries the registry over
// port 43, extracts Attribute's value and treats it as the domain's expiry
// date. Below WarningDays remaining the result degrades.
type WhoisSpec struct {
	Domain      string   `json:"domain"`
	Server      string   `json:"server,omitempty"`
	Attribute   string   `json:"attribute,omitempty"`
	WarningDays int      `json:"warning_days,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
}

// Whois probes domain registration expiry.
type Whois struct{}

// whoisDateLayouts covers the date shapes registries commonly emit.
var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
}

func (p *Whois) Probe(ctx context.Context, target Target) (Result, error) {
	var spec WhoisSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("whois spec: %v", err)
	}
	if spec.Domain == "" {
		return Result{}, configErrorf("whois spec: domain is required")
	}
	server := spec.Server
	if server == "" {
		server = "whois.iana.org"
	}
	if !strings.Contains(server, ":") {
		server = net.JoinHostPort(server, "43")
	}
	attribute := spec.Attribute
	if attribute == "" {
		attribute = "Registry Expiry Date"
	}

	timeout := spec.Timeout.orDefault()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("whois %s: %v", server, err)}, nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintf(conn, "%s\r\n", spec.Domain); err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("whois %s: %v", server, err)}, nil
	}

	value, found := scanWhoisAttribute(conn, attribute)
	if !found {
		return Result{Status: Critical, Message: fmt.Sprintf("whois response for %s has no %q", spec.Domain, attribute)}, nil
	}

	expiry, err := ParseWhoisDate(value)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("unparseable %s %q for %s", attribute, value, spec.Domain)}, nil
	}

	days := int(time.Until(expiry).Hours() / 24)
	switch {
	case days < 0:
		return Result{Status: Critical, Message: fmt.Sprintf("%s expired on %s", spec.Domain, expiry.Format("2006-01-02"))}, nil
	case spec.WarningDays > 0 && days < spec.WarningDays:
		return Result{Status: Warning, Message: fmt.Sprintf("%s expires in %d days", spec.Domain, days)}, nil
	}
	return Result{Status: OK, Message: fmt.Sprintf("%s registered until %s", spec.Domain, expiry.Format("2006-01-02"))}, nil
}

func scanWhoisAttribute(conn net.Conn, attribute string) (string, bool) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), attribute) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// ParseWhoisDate tries the date layouts registries are known to use.
func ParseWhoisDate(value string) (time.Time, error) {
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}
