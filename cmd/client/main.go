// Command tftp-client is an interactive TFTP client shell: connect, get,
// put, timeout, trace, quit.
package main

import (
	"fmt"
	"os"

	"github.com/wa4h1h/tftpd/internal/config"
	"github.com/wa4h1h/tftpd/internal/logging"
	"github.com/wa4h1h/tftpd/pkg/client"
)

func main() {
	logLevel := config.GetEnv[string]("TFTP_LOG_LEVEL", "info", false)

	logger, err := logging.New(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c := client.NewClient(logger)

	cli := client.NewCli(logger, c)
	cli.Read()

	if err := c.Close(); err != nil {
		logger.Warnw("error while closing client connection", "error", err)
	}
}
