package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/mdns"
)

func init() {
	// mdns logs "client closed" noise through the standard logger.
	log.SetOutput(io.Discard)
}

const (
	ServiceType = "_shoplist._tcp"
	Domain      = "local."

	DefaultLookupTimeout = 3 * time.Second
)

var ErrNoServer = errors.New("no document server found on the local network")

// Server is a document server found on the LAN.
type Server struct {
	Name     string
	Host     string
	Port     int
	Document string
}

func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

type Announcer struct {
	server *mdns.Server
}

// Announce advertises a document server on the LAN until Stop is called.
func Announce(name string, port int, documentPath string) (*Announcer, error) {
	host, err := getOutboundIP()
	if err != nil {
		host = "127.0.0.1"
	}

	info := []string{
		"doc=" + documentPath,
		"v=1",
	}

	service, err := mdns.NewMDNSService(
		name,
		ServiceType,
		Domain,
		"",
		port,
		[]net.IP{net.ParseIP(host)},
		info,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS server: %w", err)
	}

	glog.Infof("[discovery] announcing %s on %s:%d", name, host, port)
	return &Announcer{server: server}, nil
}

func (a *Announcer) Stop() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Lookup returns the first document server that answers within timeout.
func Lookup(ctx context.Context, timeout time.Duration) (*Server, error) {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entriesCh := make(chan *mdns.ServiceEntry, 10)
	found := make(chan *Server, 1)

	go func() {
		for entry := range entriesCh {
			if srv := entryToServer(entry); srv != nil {
				select {
				case found <- srv:
				default:
				}
			}
		}
	}()

	// IPv6 multicast is unreliable on Windows and this library, so stick to IPv4.
	params := &mdns.QueryParam{
		Service:             ServiceType,
		Domain:              Domain,
		Timeout:             timeout,
		Entries:             entriesCh,
		WantUnicastResponse: false,
		DisableIPv6:         true,
	}

	queryErr := make(chan error, 1)
	go func() {
		err := mdns.Query(params)
		close(entriesCh)
		queryErr <- err
	}()

	select {
	case srv := <-found:
		return srv, nil
	case err := <-queryErr:
		select {
		case srv := <-found:
			return srv, nil
		default:
		}
		if err != nil && !strings.Contains(err.Error(), "not supported") {
			return nil, fmt.Errorf("mDNS query failed: %w", err)
		}
		return nil, ErrNoServer
	case <-ctx.Done():
		return nil, ErrNoServer
	}
}

func entryToServer(entry *mdns.ServiceEntry) *Server {
	if entry == nil {
		return nil
	}

	var document string
	for _, txt := range entry.InfoFields {
		if strings.HasPrefix(txt, "doc=") {
			document = strings.TrimPrefix(txt, "doc=")
			break
		}
	}

	var host string
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		host = entry.AddrV6.String()
	}

	if host == "" || entry.Port == 0 {
		return nil
	}

	return &Server{
		Name:     entry.Name,
		Host:     host,
		Port:     entry.Port,
		Document: document,
	}
}

func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
