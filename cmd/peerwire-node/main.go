// Command peerwire-node is a flag-driven demo node for the peerwire
// transport layer. It starts one backend in listen or dial mode, logs every
// event, and can periodically broadcast a message to its identified peers.
//
// The node keeps its identity across runs through a small file-backed
// account store, exercising the persistence seam the transport layer itself
// never touches.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerwire"
	"github.com/opd-ai/peerwire/interfaces"
	"github.com/opd-ai/peerwire/metrics"
	"github.com/opd-ai/peerwire/transport"
)

// CLI configuration
type CLIConfig struct {
	backend      string
	localID      string
	listenHost   string
	listenPort   int
	path         string
	dial         string
	expectedPeer string
	message      string
	interval     time.Duration
	dataDir      string
	metricsAddr  string
	logLevel     string
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.backend, "backend", "tcp", "Transport backend (tcp or websocket)")
	flag.StringVar(&config.localID, "id", "", "Local PeerID (persisted identity used when empty)")
	flag.StringVar(&config.listenHost, "listen-host", "", "Listen host (enables server mode)")
	flag.IntVar(&config.listenPort, "listen-port", 0, "Listen port (0 = ephemeral)")
	flag.StringVar(&config.path, "path", "/", "WebSocket server path")
	flag.StringVar(&config.dial, "dial", "", "Dial target: tcp://host:port, host:port, or ws://host:port/path")
	flag.StringVar(&config.expectedPeer, "expected-peer", "", "Expected remote PeerID for the dial target")
	flag.StringVar(&config.message, "message", "", "Payload to broadcast periodically")
	flag.DurationVar(&config.interval, "interval", 5*time.Second, "Broadcast interval")
	flag.StringVar(&config.dataDir, "data-dir", "", "Data directory (default: user config dir)")
	flag.StringVar(&config.metricsAddr, "metrics-addr", "", "Prometheus /metrics listen address (disabled when empty)")
	flag.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()
	return config
}

// fileAccountStore is a toy interfaces.AccountStore kept deliberately inside
// the demo binary: account persistence is outside the transport layer's
// scope, and this is just enough of it for a stable node identity.
type fileAccountStore struct {
	dir string
}

func (s *fileAccountStore) Load(account string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, account+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func (s *fileAccountStore) Save(account string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, account+".json"), data, 0o600)
}

// accountBlob is the persisted node state.
type accountBlob struct {
	PeerID string `json:"peerId"`
}

// resolveLocalID returns the configured identity, or loads/creates the
// persisted one.
func resolveLocalID(config *CLIConfig, resolve interfaces.DataDirResolver) (transport.PeerID, error) {
	if config.localID != "" {
		return transport.PeerID(config.localID), nil
	}

	dir, err := resolve()
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	store := &fileAccountStore{dir: dir}

	data, err := store.Load("node")
	if err != nil {
		return "", fmt.Errorf("loading account: %w", err)
	}
	if data != nil {
		var blob accountBlob
		if err := json.Unmarshal(data, &blob); err == nil && blob.PeerID != "" {
			return transport.PeerID(blob.PeerID), nil
		}
	}

	// First run: mint an identity and persist it.
	id := transport.PeerID(uuid.NewString())

	data, err = json.Marshal(accountBlob{PeerID: string(id)})
	if err != nil {
		return "", err
	}
	if err := store.Save("node", data); err != nil {
		return "", fmt.Errorf("saving account: %w", err)
	}
	return id, nil
}

func buildTransport(config *CLIConfig, localID transport.PeerID, collector *metrics.Collector) (transport.Transport, error) {
	switch config.backend {
	case "tcp":
		return peerwire.New(peerwire.Options{
			Backend: peerwire.BackendTCP,
			TCP: transport.TCPOptions{
				LocalID:    localID,
				ListenHost: config.listenHost,
				ListenPort: config.listenPort,
				Metrics:    collector,
			},
		})
	case "websocket":
		opts := transport.WebSocketOptions{
			LocalID: localID,
			Metrics: collector,
		}
		if config.dial != "" {
			opts.URL = config.dial
			opts.ExpectedPeerID = transport.PeerID(config.expectedPeer)
		} else {
			opts.ListenHost = config.listenHost
			opts.ListenPort = config.listenPort
			opts.Path = config.path
		}
		return peerwire.New(peerwire.Options{
			Backend:   peerwire.BackendWebSocket,
			WebSocket: opts,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", config.backend)
	}
}

func registerEventLogging(tr transport.Transport) {
	tr.OnConnection(func(peer transport.PeerID, outbound bool, addr string) {
		logrus.WithFields(logrus.Fields{
			"peer":     string(peer),
			"outbound": outbound,
			"address":  addr,
		}).Info("peer connected")
	})
	tr.OnDisconnection(func(peer transport.PeerID) {
		logrus.WithFields(logrus.Fields{
			"peer": string(peer),
		}).Info("peer disconnected")
	})
	tr.OnFrame(func(from transport.PeerID, payload []byte) {
		logrus.WithFields(logrus.Fields{
			"from":  string(from),
			"bytes": len(payload),
		}).Infof("frame: %q", string(payload))
	})
	tr.OnError(func(err error) {
		logrus.WithError(err).Warn("connection error")
	})
}

func run(config *CLIConfig) error {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(level)

	var resolver interfaces.DataDirResolver = func() (string, error) {
		if config.dataDir != "" {
			return config.dataDir, nil
		}
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, "peerwire"), nil
	}

	localID, err := resolveLocalID(config, resolver)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if config.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(config.metricsAddr, mux); err != nil {
				logrus.WithError(err).Error("metrics server failed")
			}
		}()
		logrus.WithField("address", config.metricsAddr).Info("serving metrics")
	}

	tr, err := buildTransport(config, localID, collector)
	if err != nil {
		return err
	}
	registerEventLogging(tr)

	if err := tr.Start(); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	defer tr.Stop()

	logrus.WithFields(logrus.Fields{
		"backend":   config.backend,
		"local_id":  string(tr.LocalID()),
		"addresses": tr.ListenAddresses(),
	}).Info("node running")

	// A TCP dial target is reached through Send's address form.
	if config.backend == "tcp" && config.dial != "" {
		tcp, ok := tr.(*transport.TCPTransport)
		if !ok {
			return fmt.Errorf("tcp backend expected for dial target %q", config.dial)
		}
		peer, err := tcp.Connect(config.dial, transport.PeerID(config.expectedPeer))
		if err != nil {
			return fmt.Errorf("dialing %s: %w", config.dial, err)
		}
		logrus.WithField("peer", string(peer)).Info("dial complete")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if config.message == "" {
		<-stop
		return nil
	}

	ticker := time.NewTicker(config.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if sent := tr.Broadcast([]byte(config.message)); sent > 0 {
				logrus.WithField("peers", sent).Debug("broadcast delivered")
			}
		}
	}
}

func main() {
	if err := run(parseCLIFlags()); err != nil {
		logrus.WithError(err).Fatal("peerwire-node failed")
	}
}
