package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// SocketSpec drives the tcp and udp probers.
type SocketSpec struct {
	Host    string   `json:"host"`
	Port    int      `json:"port"`
	Timeout Duration `json:"timeout,omitempty"`
	// Send is written after connecting; Expect, when set, must be a
	// substring of the first read.
	Send   string `json:"send,omitempty"`
	Expect string `json:"expect,omitempty"`
}

func (s *SocketSpec) addr() (string, error) {
	if s.Host == "" || s.Port <= 0 || s.Port > 65535 {
		return "", configErrorf("socket spec: host and port are required")
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)), nil
}

// TCP probes by connecting and optionally exchanging a banner.
type TCP struct{}

func (p *TCP) Probe(ctx context.Context, target Target) (Result, error) {
	var spec SocketSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("tcp spec: %v", err)
	}
	addr, err := spec.addr()
	if err != nil {
		return Result{}, err
	}

	timeout := spec.Timeout.orDefault()
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("connect %s: %v", addr, err)}, nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if spec.Send != "" {
		if _, err := conn.Write([]byte(spec.Send)); err != nil {
			return Result{Status: Critical, Message: fmt.Sprintf("write %s: %v", addr, err)}, nil
		}
	}
	if spec.Expect != "" {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return Result{Status: Critical, Message: fmt.Sprintf("read %s: %v", addr, err)}, nil
		}
		if !strings.Contains(string(buf[:n]), spec.Expect) {
			return Result{Status: Critical, Message: fmt.Sprintf("%s did not answer with %q", addr, spec.Expect)}, nil
		}
	}
	return Result{Status: OK, Message: fmt.Sprintf("connected to %s in %s", addr, time.Since(start).Round(time.Millisecond))}, nil
}

// UDP probes by sending a datagram. Because UDP gives no connect
// acknowledgement, a spec without Expect only detects local send errors.
type UDP struct{}

func (p *UDP) Probe(ctx context.Context, target Target) (Result, error) {
	var spec SocketSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("udp spec: %v", err)
	}
	addr, err := spec.addr()
	if err != nil {
		return Result{}, err
	}

	timeout := spec.Timeout.orDefault()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("dial %s: %v", addr, err)}, nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(spec.Send)); err != nil {
		return Result{Status: Critical, Message: fmt.Sprintf("send %s: %v", addr, err)}, nil
	}
	if spec.Expect != "" {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return Result{Status: Critical, Message: fmt.Sprintf("no answer from %s: %v", addr, err)}, nil
		}
		if !strings.Contains(string(buf[:n]), spec.Expect) {
			return Result{Status: Critical, Message: fmt.Sprintf("%s did not answer with %q", addr, spec.Expect)}, nil
		}
	}
	return Result{Status: OK, Message: fmt.Sprintf("datagram sent to %s", addr)}, nil
}
