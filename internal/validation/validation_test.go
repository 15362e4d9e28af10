package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wa4h1h/tftpd/internal/validation"
)

func TestRootDir(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.RootDir("/srv/tftp"))
	assert.ErrorIs(t, validation.RootDir(""), validation.ErrEmptyRootDir)
	assert.ErrorIs(t, validation.RootDir("/srv/../etc"), validation.ErrRootDirTraversal)
	assert.ErrorIs(t, validation.RootDir("/srv/\x00tftp"), validation.ErrRootDirNullByte)
}

func TestPort(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.Port(69))
	assert.NoError(t, validation.Port(1))
	assert.NoError(t, validation.Port(65535))
	assert.ErrorIs(t, validation.Port(0), validation.ErrPortOutOfRange)
	assert.ErrorIs(t, validation.Port(65536), validation.ErrPortOutOfRange)
	assert.True(t, validation.IsPrivilegedPort(69))
	assert.False(t, validation.IsPrivilegedPort(6969))
}

func TestTimeoutSeconds(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.TimeoutSeconds(1))
	assert.NoError(t, validation.TimeoutSeconds(3600))
	assert.ErrorIs(t, validation.TimeoutSeconds(0), validation.ErrTimeoutOutOfRange)
	assert.ErrorIs(t, validation.TimeoutSeconds(3601), validation.ErrTimeoutOutOfRange)
}

func TestTransferSize(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.TransferSize(512))
	assert.NoError(t, validation.TransferSize(1024*1024*1024))
	assert.ErrorIs(t, validation.TransferSize(511), validation.ErrTransferSizeOutOfRange)
	assert.ErrorIs(t, validation.TransferSize(1024*1024*1024+1), validation.ErrTransferSizeOutOfRange)
}

func TestHost(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.Host("192.168.1.1"))
	assert.NoError(t, validation.Host("tftp.example.com"))
	assert.ErrorIs(t, validation.Host(""), validation.ErrEmptyHost)
	assert.ErrorIs(t, validation.Host("not a hostname!"), validation.ErrHostMalformed)
}

func TestFilename(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.Filename("boot.img"))
	assert.Error(t, validation.Filename("../boot.img"))
	assert.Error(t, validation.Filename("/etc/passwd"))
}

func TestCallbackNotNil(t *testing.T) {
	t.Parallel()

	var nilFn func(string) error
	assert.ErrorIs(t, validation.CallbackNotNil(nilFn), validation.ErrNilCallback)

	fn := func(string) error { return nil }
	assert.NoError(t, validation.CallbackNotNil(fn))
}
