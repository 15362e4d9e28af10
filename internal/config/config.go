package config

import (
	"fmt"
	"runtime"

	"github.com/wa4h1h/tftpd/internal/validation"
)

// Defaults for the CLI layer, overridable via environment variables. These
// are conveniences on top of the `<root_dir> [<port>]` required positional
// arguments; they are not part of the pkg/tftp.Server contract itself.
const (
	DefaultPort            uint16 = 69
	DefaultTimeoutSeconds         = 5
	DefaultMaxTransferSize int64  = 64 * 1024 * 1024

	envPort            = "TFTP_PORT"
	envTimeoutSeconds  = "TFTP_TIMEOUT"
	envMaxTransferSize = "TFTP_MAX_TRANSFER_SIZE"
	envWorkers         = "TFTP_WORKERS"

	minWorkers = 1
	maxWorkers = 64
)

// FromEnvironment holds the environment-derived overrides consumed by
// cmd/tftpd, each independently defaultable.
type FromEnvironment struct {
	Port            uint16
	TimeoutSeconds  int
	MaxTransferSize int64
	Workers         int
}

// Load reads TFTP_PORT, TFTP_TIMEOUT, TFTP_MAX_TRANSFER_SIZE, and
// TFTP_WORKERS from the environment, applying defaults for anything unset,
// and validates the result. cliPort, when non-zero, wins over TFTP_PORT,
// so a port given on the command line always overrides the environment.
func Load(cliPort uint16) (FromEnvironment, error) {
	// Parsed wider than uint16 so an out-of-range TFTP_PORT reaches
	// validation.Port and is returned as an error instead of panicking.
	port := int(GetEnv[uint](envPort, fmt.Sprintf("%d", DefaultPort), false))
	if cliPort != 0 {
		port = int(cliPort)
	}

	timeout := GetEnv[uint](envTimeoutSeconds, fmt.Sprintf("%d", DefaultTimeoutSeconds), false)
	maxTransferSize := GetEnv[int64](envMaxTransferSize, fmt.Sprintf("%d", DefaultMaxTransferSize), false)
	workers := GetEnv[uint](envWorkers, "0", false)

	if err := validation.Port(port); err != nil {
		return FromEnvironment{}, err
	}

	if err := validation.TimeoutSeconds(int(timeout)); err != nil {
		return FromEnvironment{}, err
	}

	if err := validation.TransferSize(maxTransferSize); err != nil {
		return FromEnvironment{}, err
	}

	workerCount := int(workers)
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	if workerCount < minWorkers {
		workerCount = minWorkers
	}

	if workerCount > maxWorkers {
		workerCount = maxWorkers
	}

	return FromEnvironment{
		Port:            uint16(port),
		TimeoutSeconds:  int(timeout),
		MaxTransferSize: maxTransferSize,
		Workers:         workerCount,
	}, nil
}
