// Command cachify-server boots the TCP cache described in the package
// documentation: an in-memory key/value store with per-key TTL,
// reachable over a line-oriented text protocol.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"cachify/internal/chanutil"
	"cachify/internal/config"
	"cachify/internal/engine"
	"cachify/internal/server"
)

const defaultPort = 6379

var logger = logrus.WithFields(logrus.Fields{
	"component": "cachify-server",
})

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("cachify-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML file tuning stripes/idle_timeout/read_buffer_bytes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	port := defaultPort
	if rest := fs.Args(); len(rest) >= 1 {
		p, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", rest[0], err)
			return 2
		}
		port = p
	}

	logger.WithFields(logrus.Fields{"env": config.Env()}).Info("starting cachify")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err}).Error("config load failed")
		return 1
	}

	eng := engine.NewWithIdleWait(cfg.Stripes, cfg.IdleTimeout)
	defer eng.Close()

	addr := fmt.Sprintf(":%d", port)
	ln, err := server.Listen(addr, eng, cfg.ReadBufferBytes)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err}).Error("bind/listen failed")
		return 1
	}
	defer ln.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	signalDone := make(chan struct{})
	go func() {
		<-sigCh
		close(signalDone)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve()
	}()

	// Fan an OS signal and the listener's Done channel into one done
	// channel. Done closes only when ln.Close is called; Serve logs
	// accept errors and keeps accepting rather than closing it.
	shutdown := chanutil.Or(signalDone, ln.Done())

	select {
	case <-shutdown:
		logger.Info("shutdown signal received")
		ln.Close()
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error("serve exited")
			return 1
		}
	}

	return 0
}
