// Package client is a minimal TFTP client, present so the engine can be
// exercised end-to-end without a third-party client (spec §1: "A TFTP
// client (present in source only as a validation stub)"). Cli is its
// interactive front end, not a supported user-facing product in its own
// right.
package client

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Cli is a line-oriented read-eval-print loop over a Connector.
type Cli struct {
	l          *zap.SugaredLogger
	tftpClient Connector
}

func NewCli(l *zap.SugaredLogger, tftpClient Connector) *Cli {
	return &Cli{l: l, tftpClient: tftpClient}
}

// Read drives the REPL against os.Stdin until "quit" or end of input.
func (c *Cli) Read() {
	c.readFrom(os.Stdin)
}

// readFrom drives the REPL against an arbitrary reader, so the loop is
// exercisable from a test without a real terminal attached.
func (c *Cli) readFrom(r io.Reader) {
	scanner := bufio.NewScanner(r)
	evaluator := NewEvaluator(c.l, c.tftpClient)

	fmt.Print("tftp> ")

	for scanner.Scan() {
		evaluator.line = scanner.Text()

		done, err := evaluator.evaluate()
		if err != nil {
			fmt.Printf("%s\n", err.Error())
		}

		if done {
			break
		}

		fmt.Print("tftp> ")
	}

	if err := scanner.Err(); err != nil {
		c.l.Errorw("error while reading from input", "error", err)
	}
}
