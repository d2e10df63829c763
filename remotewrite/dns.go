package remotewrite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/miekg/dns"
)

// resolveFastest queries all configured resolvers concurrently and returns
// the first non-empty answer. The system resolver always takes part.
func (w *Writer) resolveFastest(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.dnsCfg.timeout)
	defer cancel()

	type result struct {
		ips []string
		err error
	}
	attempts := 1 + len(w.dnsCfg.udpServers) + len(w.dnsCfg.tlsServers) + len(w.dnsCfg.dohEndpoints)
	ch := make(chan result, attempts)
	var wg sync.WaitGroup
	defer wg.Wait()

	launch := func(resolve func() ([]string, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ips, err := resolve()
			ch <- result{ips, err}
		}()
	}

	for _, srv := range w.dnsCfg.udpServers {
		launch(func() ([]string, error) { return resolveUDP(ctx, host, srv) })
	}
	// TLS servers (DoT)
	for _, srv := range w.dnsCfg.tlsServers {
		launch(func() ([]string, error) { return resolveTLS(ctx, host, srv) })
	}
	for _, ep := range w.dnsCfg.dohEndpoints {
		launch(func() ([]string, error) { return resolveDoH(ctx, host, ep) })
	}
	// System resolver as fallback
	launch(func() ([]string, error) {
		netIPs, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		ips := make([]string, 0, len(netIPs))
		for _, ip := range netIPs {
			ips = append(ips, ip.String())
		}
		return ips, err
	})

	var firstErr error
	for range attempts {
		select {
		case r := <-ch:
			if r.err == nil && len(r.ips) > 0 {
				cancel()
				return r.ips, nil
			}
			if firstErr == nil {
				firstErr = r.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no dns result")
	}
	return nil, firstErr
}

func resolveUDP(ctx context.Context, host, server string) ([]string, error) {
	return exchange(ctx, "udp", host, server)
}

func resolveTLS(ctx context.Context, host, server string) ([]string, error) {
	return exchange(ctx, "tcp-tls", host, server)
}

func exchange(ctx context.Context, network, host, server string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	c := &dns.Client{Net: network}
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("%s dns failed: %w", network, err)
	}
	if r == nil || r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s dns failed: bad response", network)
	}
	return answerIPs(r), nil
}

func resolveDoH(ctx context.Context, host, endpoint string) ([]string, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(host), dns.TypeA)
	payload, err := q.Pack()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var r dns.Msg
	if err := r.Unpack(body); err != nil {
		return nil, err
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("doh rcode: %d", r.Rcode)
	}
	return answerIPs(&r), nil
}

func answerIPs(r *dns.Msg) []string {
	ips := make([]string, 0, len(r.Answer))
	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips
}
