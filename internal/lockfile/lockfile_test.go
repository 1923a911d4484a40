package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesHolderInfo(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "twilio")
	require.NoError(t, err)
	defer lock.Release()

	info, err := ReadInfo(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "twilio", info.Transport)
	assert.False(t, info.Started.IsZero())
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, "whatsapp")
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(dir, "twilio")
	require.Error(t, err)
	assert.Nil(t, second)

	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, os.Getpid(), lockErr.Holder.PID, "the holder's info must survive the failed attempt")
	assert.Contains(t, err.Error(), "(running)")
	assert.Contains(t, err.Error(), "transport whatsapp")
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "")
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))

	again, err := Acquire(dir, "")
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := Acquire(dir, "")
	require.NoError(t, err)
	defer lock.Release()
	assert.DirExists(t, dir)
}

func TestReadInfoToleratesGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("junk\npid=abc\ntransport=twilio\n"), 0o644))

	info, err := ReadInfo(path)
	require.NoError(t, err)
	assert.Zero(t, info.PID)
	assert.Equal(t, "twilio", info.Transport)
	assert.Equal(t, "transport twilio", info.String())
}

func TestInfoStringReportsStalePID(t *testing.T) {
	// PIDs are capped well below this on Linux.
	info := Info{PID: 1 << 30}
	assert.True(t, strings.Contains(info.String(), "stale lock"))
}
