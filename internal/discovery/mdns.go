// ABOUTME: mDNS discovery of dialog backends
// ABOUTME: Browses and advertises _dialog._tcp with each backend's address and websocket path
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// DefaultService is the mDNS service type dialog backends advertise
const DefaultService = "_dialog._tcp"

// Config holds discovery configuration
type Config struct {
	// Service defaults to DefaultService
	Service string
	Domain  string
	// Timeout bounds one query round
	Timeout time.Duration
	Logger  *slog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// Advertise announces a backend on this host until Stop
func (m *Manager) Advertise(instance string, port int, path string) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}
	if path == "" {
		path = "/dialog"
	}

	service, err := mdns.NewMDNSService(instance, m.config.Service, "", "", port, ips, []string{"version=1", "path=" + path})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising dialog backend", "instance", instance, "port", port, "service", m.config.Service)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// localIPs returns the host's non-loopback IPv4 addresses
func localIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4)
		}
	}
	return ips, nil
}

// ServerInfo describes a discovered backend
type ServerInfo struct {
	Name string
	Host string
	Port int
	// Path is the websocket path from the TXT record (default /dialog)
	Path string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Domain == "" {
		config.Domain = "local"
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		log:     config.Logger.With("component", "discovery"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Browse searches for backends until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for servers
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				server, ok := parseEntry(entry)
				if !ok {
					continue
				}

				m.log.Info("discovered dialog backend", "name", server.Name, "addr", server.Addr(), "path", server.Path)

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(m.config.Service)
		params.Domain = m.config.Domain
		params.Timeout = m.config.Timeout
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.log.Warn("mdns query failed", "error", err)
			select {
			case <-time.After(m.config.Timeout):
			case <-m.ctx.Done():
			}
		}
		close(entries)
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Discover browses until the first backend answers or ctx ends
func (m *Manager) Discover(ctx context.Context) (*ServerInfo, error) {
	if err := m.Browse(); err != nil {
		return nil, err
	}
	defer m.Stop()

	select {
	case server := <-m.servers:
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no dialog backend found: %w", ctx.Err())
	}
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// parseEntry converts an mDNS answer into a ServerInfo
func parseEntry(entry *mdns.ServiceEntry) (*ServerInfo, bool) {
	if entry == nil || entry.Port == 0 {
		return nil, false
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil, false
	}

	server := &ServerInfo{
		Name: instanceName(entry.Name),
		Host: host,
		Port: entry.Port,
		Path: "/dialog",
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			server.Path = path
		}
	}
	return server, true
}

// instanceName strips the service suffix from "Kitchen._dialog._tcp.local."
func instanceName(full string) string {
	if i := strings.Index(full, "._"); i > 0 {
		return full[:i]
	}
	return strings.TrimSuffix(full, ".")
}
