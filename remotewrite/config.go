package remotewrite

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// Config defines how Reports are shipped to a remote-write endpoint.
type Config struct {
	// Remote write endpoint, e.g. http://prometheus:9090/api/v1/write
	URL string
	// Timeout bounds a single write, retry included.
	Timeout time.Duration

	// Service identification, used to build series names and labels
	Namespace   string
	Subsystem   string
	ServiceName string

	// Instance information
	InstanceIP   string
	CustomLabels map[string]string

	// Optional logger
	Logger *zap.Logger

	// DNS resolver options (optional, for advanced use cases)
	DNSEnable          bool
	DNSCacheTTL        time.Duration
	DNSRefreshInterval time.Duration
	DNSTimeout         time.Duration
	DNSUDPServers      []string // e.g. ["1.1.1.1:53", "8.8.8.8:53"]
	DNSTLSServers      []string // e.g. ["1.1.1.1:853", "9.9.9.9:853"]
	DNSDoHEndpoints    []string // e.g. ["https://cloudflare-dns.com/dns-query"]
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	ip, _ := GetOutboundIPv4()
	return Config{
		Namespace:    "meter",
		Subsystem:    "test",
		ServiceName:  "multithread_gauge",
		Timeout:      15 * time.Second,
		InstanceIP:   ip,
		CustomLabels: make(map[string]string),
	}
}

func pickDuration(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// GetOutboundIPv4 gets the outbound IPv4 address of the local machine
func GetOutboundIPv4() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
