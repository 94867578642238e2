// ABOUTME: mDNS service discovery for tinysynth stream servers
// ABOUTME: Handles both advertisement (server side) and browsing (listener side)
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServerServiceType is advertised by stream servers
	ServerServiceType = "_tinysynth-server._tcp"

	// ListenerServiceType is advertised by listeners that want to be found
	ListenerServiceType = "_tinysynth._tcp"

	defaultPath = "/tinysynth"

	queryTimeout = 3 * time.Second
	queryBackoff = time.Second
)

// ErrNoServers is returned by Discover when nothing answered
var ErrNoServers = errors.New("no tinysynth servers found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	ServerMode  bool // If true, advertise as ServerServiceType, otherwise ListenerServiceType
	Path        string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo

	// query runs one mDNS lookup; mdns.Query outside tests
	query func(*mdns.QueryParam) error
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = defaultPath
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		query:   mdns.Query,
	}
}

func (m *Manager) serviceType() string {
	if m.config.ServerMode {
		return ServerServiceType
	}
	return ListenerServiceType
}

// Advertise advertises this process via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	serviceType := m.serviceType()

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		serviceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for stream servers until Stop, delivering them on Servers()
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
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := serverFromEntry(entry)
				if server == nil {
					continue
				}

				log.Printf("Discovered server: %s at %s", server.Name, server.Addr())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServerServiceType)
		params.Timeout = queryTimeout
		params.Entries = entries
		params.DisableIPv6 = true

		if err := m.query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done

		// Back off before the next query so a failing query doesn't spin
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(queryBackoff):
		}
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses for timeout and returns every distinct server seen
func Discover(timeout time.Duration) ([]*ServerInfo, error) {
	return discover(NewManager(Config{}), timeout)
}

func discover(m *Manager, timeout time.Duration) ([]*ServerInfo, error) {
	defer m.Stop()
	if err := m.Browse(); err != nil {
		return nil, err
	}

	var found []*ServerInfo
	seen := make(map[string]bool)
	deadline := time.After(timeout)
	for {
		select {
		case server := <-m.Servers():
			if seen[server.Addr()] {
				continue
			}
			seen[server.Addr()] = true
			found = append(found, server)
		case <-deadline:
			if len(found) == 0 {
				return nil, ErrNoServers
			}
			return found, nil
		}
	}
}

// serverFromEntry converts an mDNS answer, or returns nil when it has no
// IPv4 address
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry.AddrV4 == nil {
		return nil
	}
	return &ServerInfo{
		Name: instanceName(entry.Name),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: txtValue(entry.InfoFields, "path", defaultPath),
	}
}

// instanceName strips the service type and domain from a full mDNS name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServerServiceType); i > 0 {
		return strings.ReplaceAll(full[:i], `\ `, " ")
	}
	return full
}

// txtValue finds key=value in TXT records
func txtValue(fields []string, key, fallback string) string {
	prefix := key + "="
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix)
		}
	}
	return fallback
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
