// Command netengine-echo-server runs a length-prefixed TCP echo server (or,
// with -udp, a UDP echo server instead) on top of internal/runtime/netengine, as a
// minimal reference consumer of the package's public API.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvidnet/netengine/internal/cli"
	"github.com/corvidnet/netengine/internal/runtime/netengine"
)

func main() {
	var (
		showVersion    bool
		jsonOutput     bool
		verbose        bool
		port           string
		udp            bool
		maxConnections int
		configFile     string
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	flag.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flag.StringVar(&port, "port", "9090", "TCP or UDP port to listen on")
	flag.BoolVar(&udp, "udp", false, "run the UDP echo server instead of TCP")
	flag.IntVar(&maxConnections, "max-connections", 0, "maximum concurrent connections (0 = unbounded)")
	flag.StringVar(&configFile, "watch-config", "", "path to a JSON file to hot-reload server limits from")
	flag.Parse()

	if showVersion {
		cli.PrintVersion("netengine-echo-server", jsonOutput)
		return
	}

	logger := cli.NewLogger(verbose, verbose)

	if udp {
		runUDP(logger, port, maxConnections)
		return
	}
	runTCP(logger, port, maxConnections, configFile)
}

type echoCallback struct {
	netengine.NoopServerCallback
	logger *cli.Logger
}

func (cb *echoCallback) OnAccept(remote net.Addr) bool {
	cb.logger.Info("accepted connection from %s", remote)
	return true
}

func (cb *echoCallback) OnReceived(conn netengine.Conn, pkt *netengine.Packet, status netengine.ReceiveStatus) {
	if status != netengine.ReceiveSuccess {
		cb.logger.Warn("receive from %s: %s", conn.RemoteAddr(), status)
		return
	}
	if _, sendStatus := conn.Send(pkt.Bytes(), 5*time.Second); sendStatus != netengine.SendSuccess {
		cb.logger.Error("echo to %s failed: %s", conn.RemoteAddr(), sendStatus)
	}
}

func (cb *echoCallback) OnDisconnect(conn netengine.Conn) {
	cb.logger.Info("disconnected %s", conn.RemoteAddr())
}

func runTCP(logger *cli.Logger, port string, maxConnections int, configFile string) {
	cb := &echoCallback{logger: logger}
	cfg := netengine.NewServerConfig(cb)
	cfg.Port = port
	cfg.AsyncReceive = true
	cfg.MaxConnectionCount = maxConnections
	cfg.Logf = func(format string, args ...any) { logger.Debug(format, args...) }

	srv, err := netengine.NewTCPServer(cfg)
	if err != nil {
		cli.ExitWithError("invalid server configuration: %v", err)
	}
	if !srv.Start() {
		cli.ExitWithError("failed to start TCP server on port %s: %v", port, srv.LastError())
	}
	logger.Info("TCP echo server listening on :%s", port)

	var stopWatch func()
	if configFile != "" {
		stopWatch, err = netengine.WatchServerConfigFile(srv, configFile)
		if err != nil {
			logger.Warn("config watch disabled: %v", err)
		} else {
			logger.Info("watching %s for live MaxConnectionCount/MaxProcessorCount/WaitTime updates", configFile)
		}
	}

	waitForSignal()
	if stopWatch != nil {
		stopWatch()
	}
	logger.Info("shutting down")
	srv.Stop()
}

func runUDP(logger *cli.Logger, port string, maxConnections int) {
	cb := &echoCallback{logger: logger}
	cfg := netengine.NewServerConfig(cb)
	cfg.Port = port
	cfg.MaxConnectionCount = maxConnections
	cfg.Logf = func(format string, args ...any) { logger.Debug(format, args...) }

	srv, err := netengine.NewUDPServer(cfg, 0)
	if err != nil {
		cli.ExitWithError("invalid server configuration: %v", err)
	}
	if !srv.Start() {
		cli.ExitWithError("failed to start UDP server on port %s: %v", port, srv.LastError())
	}
	logger.Info("UDP echo server listening on :%s (max datagram %d bytes)", port, srv.GetMaxPacketByteSize())

	waitForSignal()
	logger.Info("shutting down")
	srv.Stop()
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println()
}
