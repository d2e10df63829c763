package remotewrite

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHost = "metrics.internal.test"

func answerA(ip string) func(*dns.Msg) *dns.Msg {
	return func(req *dns.Msg) *dns.Msg {
		m := new(dns.Msg)
		m.SetReply(req)
		if len(req.Question) == 1 && req.Question[0].Name == dns.Fqdn(testHost) {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		} else {
			m.Rcode = dns.RcodeNameError
		}
		return m
	}
}

// startUDPServer runs an in-process DNS server and returns its address.
func startUDPServer(t *testing.T, reply func(*dns.Msg) *dns.Msg) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			_ = w.WriteMsg(reply(req))
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func startDoHServer(t *testing.T, reply func(*dns.Msg) *dns.Msg) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/dns-message" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req dns.Msg
		if err := req.Unpack(body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out, err := reply(&req).Pack()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(out)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestResolveUDP(t *testing.T) {
	addr := startUDPServer(t, answerA("10.1.2.3"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ips, err := resolveUDP(ctx, testHost, addr)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3"}, ips)

	_, err = resolveUDP(ctx, "unknown.internal.test", addr)
	assert.Error(t, err)
}

func TestResolveDoH(t *testing.T) {
	endpoint := startDoHServer(t, answerA("10.4.5.6"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ips, err := resolveDoH(ctx, testHost, endpoint)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.4.5.6"}, ips)

	_, err = resolveDoH(ctx, "unknown.internal.test", endpoint)
	assert.Error(t, err)
}

func TestRefreshDNSUsesConfiguredResolvers(t *testing.T) {
	addr := startUDPServer(t, answerA("10.1.2.3"))

	cfg := testConfig("http://" + testHost + ":9090/api/v1/write")
	cfg.DNSEnable = true
	cfg.DNSTimeout = 2 * time.Second
	cfg.DNSUDPServers = []string{addr}
	w, err := New(cfg)
	require.NoError(t, err)

	assert.True(t, w.RefreshDNS(true))
	assert.Equal(t, []string{"10.1.2.3"}, w.ResolvedIPs())

	// Unforced refreshes are throttled.
	assert.False(t, w.RefreshDNS(false))
}

func TestRefreshDNSFailure(t *testing.T) {
	addr := startUDPServer(t, func(req *dns.Msg) *dns.Msg {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeServerFailure)
		return m
	})

	cfg := testConfig("http://" + testHost + ":9090/api/v1/write")
	cfg.DNSEnable = true
	cfg.DNSTimeout = 500 * time.Millisecond
	cfg.DNSUDPServers = []string{addr}
	w, err := New(cfg)
	require.NoError(t, err)

	assert.False(t, w.RefreshDNS(true))
	assert.Empty(t, w.ResolvedIPs())
}

func TestAnswerIPsIgnoresOtherRecords(t *testing.T) {
	m := new(dns.Msg)
	m.Answer = []dns.RR{
		&dns.CNAME{Hdr: dns.RR_Header{Name: "a.", Rrtype: dns.TypeCNAME, Class: dns.ClassINET}, Target: "b."},
		&dns.A{Hdr: dns.RR_Header{Name: "b.", Rrtype: dns.TypeA, Class: dns.ClassINET}, A: net.ParseIP("192.0.2.1")},
	}
	assert.Equal(t, []string{"192.0.2.1"}, answerIPs(m))
}
