package client

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	getRegex     = "^get\\s+([\\S\\s]+)$"
	putRegex     = "^put\\s+([\\S\\s]+)$"
	timeoutRegex = "^timeout\\s+(\\d+)$"
	connectRegex = "^connect\\s+([\\S\\s]+)\\s+([\\S\\s]+)$"
	traceRegex   = "^trace$"
	quitRegex    = "^quit$"
	helpRegex    = "^help$"
)

// Evaluator parses and runs one line of the interactive CLI's command
// language against a Connector.
type Evaluator struct {
	l             *zap.SugaredLogger
	client        Connector
	line          string
	traceOn       bool
	regexPatterns map[string]*regexp.Regexp
}

func NewEvaluator(l *zap.SugaredLogger, client Connector) *Evaluator {
	e := &Evaluator{
		l:      l,
		client: client,
	}

	e.regexPatterns = make(map[string]*regexp.Regexp)

	e.regexPatterns["get"] = regexp.MustCompile(getRegex)
	e.regexPatterns["put"] = regexp.MustCompile(putRegex)
	e.regexPatterns["timeout"] = regexp.MustCompile(timeoutRegex)
	e.regexPatterns["connect"] = regexp.MustCompile(connectRegex)
	e.regexPatterns["trace"] = regexp.MustCompile(traceRegex)
	e.regexPatterns["quit"] = regexp.MustCompile(quitRegex)
	e.regexPatterns["help"] = regexp.MustCompile(helpRegex)

	return e
}

func (e *Evaluator) evaluate() (bool, error) {
	e.line = strings.TrimSuffix(e.line, "\n")

	if matches := e.regexPatterns["get"].FindStringSubmatch(e.line); len(matches) == 2 {
		return false, e.get(matches[1])
	}

	if matches := e.regexPatterns["put"].FindStringSubmatch(e.line); len(matches) == 2 {
		return false, e.put(matches[1])
	}

	if matches := e.regexPatterns["timeout"].FindStringSubmatch(e.line); len(matches) == 2 {
		n, err := strconv.ParseUint(matches[1], 10, 32)
		if err != nil {
			return false, fmt.Errorf("timeout value can not be parsed: %w", err)
		}

		e.client.SetTimeout(time.Duration(n) * time.Second)

		return false, nil
	}

	if matches := e.regexPatterns["connect"].FindStringSubmatch(e.line); len(matches) == 3 {
		return false, e.client.Connect(fmt.Sprintf("%s:%s", matches[1], matches[2]))
	}

	if matches := e.regexPatterns["trace"].FindStringSubmatch(e.line); len(matches) == 1 {
		e.traceOn = !e.traceOn
		e.client.SetTrace(e.traceOn)

		return false, nil
	}

	if matches := e.regexPatterns["help"].FindStringSubmatch(e.line); len(matches) == 1 {
		fmt.Println(`Commands:
	connect <host> <port>
	get <file>
	put <file>
	timeout <integer>
	trace
	quit`)
		return false, nil
	}

	if matches := e.regexPatterns["quit"].FindStringSubmatch(e.line); len(matches) == 1 {
		return true, nil
	}

	return false, fmt.Errorf("unknown command or arguments: %s", e.line)
}

func (e *Evaluator) get(filename string) error {
	data, err := e.client.Get(context.Background(), filename)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("error while writing %s: %w", filename, err)
	}

	fmt.Printf("received %d bytes\n", len(data))

	return nil
}

func (e *Evaluator) put(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error while reading %s: %w", filename, err)
	}

	if err := e.client.Put(context.Background(), filename, data); err != nil {
		return err
	}

	fmt.Printf("sent %d bytes\n", len(data))

	return nil
}
