// Command lucent is the static-file HTTP/1.x server's entrypoint: a
// single positional config-file argument, exit codes 0 (clean shutdown),
// 1 (initialization failure), and 2 (usage error), and
// SIGINT/SIGTERM-triggered graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucentsrv/lucent/config"
	"github.com/lucentsrv/lucent/internal/respgen"
	"github.com/lucentsrv/lucent/logging"
	"github.com/lucentsrv/lucent/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
		return 2
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := logging.New(false)
	defer logger.Sync()
	sugar := logging.NewServerLogger(logger)

	tmpl, err := respgen.LoadTemplates(cfg.TemplateRoot)
	if err != nil {
		sugar.Error(err.Error())
		return 1
	}

	serverName, serverPort := splitHostPort(cfg.Address)
	rc, err := respgen.NewContext(cfg, tmpl, serverName, serverPort)
	if err != nil {
		sugar.Error(err.Error())
		return 1
	}

	srv := server.New(cfg, rc, sugar)

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != server.ErrServerClosed {
			sugar.Error(err.Error())
			return 1
		}
	case sig := <-sigCh:
		sugar.Info(fmt.Sprintf("received %s, shutting down", sig))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			sugar.Warn("shutdown did not complete cleanly: " + err.Error())
		}
		<-errCh
	}

	return 0
}

// splitHostPort extracts SERVER_NAME/SERVER_PORT for RFC 3875 CGI
// variables from the listen address, defaulting the host half to
// "localhost" for a bare ":port" address.
func splitHostPort(addr string) (host, port string) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host, port = addr[:i], addr[i+1:]
			break
		}
	}
	if host == "" {
		host = "localhost"
	}
	return host, port
}
