// Command tftpd serves files from a root directory over TFTP.
//
// Usage: tftpd <root_dir> [<port>]
//
// Exits 0 on a clean shutdown (SIGINT/SIGTERM), 1 on startup failure.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wa4h1h/tftpd/internal/config"
	"github.com/wa4h1h/tftpd/internal/logging"
	"github.com/wa4h1h/tftpd/pkg/tftp"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tftpd <root_dir> [<port>]")

		return 1
	}

	rootDir := os.Args[1]

	var cliPort uint16
	if len(os.Args) >= 3 {
		var parsed uint
		if _, err := fmt.Sscanf(os.Args[2], "%d", &parsed); err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", os.Args[2], err)

			return 1
		}

		cliPort = uint16(parsed)
	}

	logLevel := config.GetEnv[string]("LOG_LEVEL", "info", false)

	logger, err := logging.New(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	env, err := config.Load(cliPort)
	if err != nil {
		logger.Errorw("invalid configuration", "error", err)

		return 1
	}

	srv, err := tftp.NewServer(rootDir, env.Port)
	if err != nil {
		logger.Errorw("failed to construct server", "error", err)

		return 1
	}

	srv.SetLogger(logger)
	srv.SetWorkers(env.Workers)

	if err := srv.SetTimeout(env.TimeoutSeconds); err != nil {
		logger.Errorw("invalid timeout", "error", err)

		return 1
	}

	if err := srv.SetMaxTransferSize(env.MaxTransferSize); err != nil {
		logger.Errorw("invalid max transfer size", "error", err)

		return 1
	}

	if !srv.Start() {
		logger.Errorw("failed to start server", "root_dir", rootDir, "port", env.Port)

		return 1
	}

	logger.Infow("tftpd listening", "root_dir", rootDir, "port", env.Port, "workers", env.Workers)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan

	logger.Info("shutting down")
	srv.Stop()
	logger.Info("shutdown complete")

	return 0
}
