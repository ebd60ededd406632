// Binary cand is the router daemon (spec.md §4.E, §6): it owns the CAN
// device, multiplexes it to registered clients over the mailbox IPC
// channel, and runs until terminated.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/samsamfire/cand/internal/metrics"
	"github.com/samsamfire/cand/pkg/candev"
	"github.com/samsamfire/cand/pkg/mailbox"
	"github.com/samsamfire/cand/pkg/router"
)

const (
	defaultDevicePath = candev.DefaultPath
	defaultMailboxDir = "/var/run/cand"
)

func main() {
	cfg := defaultConfig()

	configPath := flag.String("c", "", "optional INI config file path ([daemon] section)")
	devicePath := flag.String("d", "", "CAN device path (default "+defaultDevicePath+")")
	verbose := flag.Bool("v", false, "verbose (debug-level) logging")
	priority := flag.Int("p", 0, "process scheduling priority (nice value)")
	mailboxDir := flag.String("mailbox-dir", "", "directory for IPC mailbox sockets (default "+defaultMailboxDir+")")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9100 (disabled if empty)")
	flag.Parse()

	if *configPath != "" {
		var err error
		cfg, err = loadConfigFile(cfg, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cand: loading config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	// CLI flags always win over the config file.
	if *devicePath != "" {
		cfg.devicePath = *devicePath
	}
	if *verbose {
		cfg.verbose = true
	}
	if *priority != 0 {
		cfg.priority = *priority
	}
	if *mailboxDir != "" {
		cfg.mailboxDir = *mailboxDir
	}
	if *metricsAddr != "" {
		cfg.metricsAddr = *metricsAddr
	}

	if cfg.verbose {
		log.SetLevel(log.DebugLevel)
	}
	mailbox.RuntimeDir = cfg.mailboxDir

	if cfg.priority != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, cfg.priority); err != nil {
			log.Errorf("[CAND] setpriority(%d) failed: %v", cfg.priority, err)
			os.Exit(1)
		}
	}

	dev, err := candev.Open(cfg.devicePath)
	if err != nil {
		log.Errorf("[CAND] cannot open CAN device %s: %v", cfg.devicePath, err)
		os.Exit(1)
	}
	defer dev.Close()

	d, err := router.New(dev)
	if err != nil {
		log.Errorf("[CAND] cannot start router: %v", err)
		os.Exit(1)
	}

	if cfg.metricsAddr != "" {
		srv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Close() }()
		log.Infof("[CAND] metrics listening on %s", cfg.metricsAddr)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	select {
	case s := <-sigCh:
		log.Infof("[CAND] received %s, shutting down", s)
		d.Stop()
		<-done
	case err := <-done:
		if err != nil {
			log.Errorf("[CAND] event loop exited: %v", err)
			os.Exit(1)
		}
	}
}
