// Package discovery announces the relay on the local network so clients can
// find it without infrastructure: an mDNS service record plus a plain log of
// the reachable LAN addresses for operators reading the startup output.
package discovery

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"

	"github.com/helphub/relay-service/config"
)

const serviceType = "_helphub._tcp"

type Announcer struct {
	cfg    *config.Config
	logger *slog.Logger
	server *zeroconf.Server
}

func NewAnnouncer(cfg *config.Config, logger *slog.Logger) *Announcer {
	return &Announcer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "discovery")),
	}
}

// Start registers the mDNS record and logs the LAN addresses. Discovery is
// best effort: a host without multicast still serves clients that know the
// address, so failure is a warning, not a startup error.
func (a *Announcer) Start() error {
	a.logAddresses()
	server, err := zeroconf.Register(
		a.cfg.ServiceName, serviceType, "local.", a.cfg.WebPort,
		[]string{"tcp_port=" + strconv.Itoa(a.cfg.TCPPort)}, nil)
	if err != nil {
		a.logger.Warn("mdns registration failed, continuing without discovery",
			slog.Any("err", err))
		return nil
	}
	a.server = server
	a.logger.Info("announced on the local network",
		slog.String("service", a.cfg.ServiceName), slog.String("type", serviceType))
	return nil
}

func (a *Announcer) Stop() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

// logAddresses prints every private IPv4 this host carries so an operator
// can read the web client URL off the console.
func (a *Announcer) logAddresses() {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		a.logger.Warn("cannot enumerate interfaces", slog.Any("err", err))
		return
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || !ip.IsPrivate() {
			continue
		}
		a.logger.Info("reachable address",
			slog.String("web", "http://"+ip.String()+":"+strconv.Itoa(a.cfg.WebPort)),
			slog.Int("tcp_port", a.cfg.TCPPort))
	}
}
