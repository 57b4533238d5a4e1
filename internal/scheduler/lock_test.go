package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_SingleInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "worker.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	info, err := ReadLockInfo(path)
	require.NoError(t, err)
	assert.Contains(t, info, fmt.Sprintf("pid=%d", os.Getpid()))
	assert.Contains(t, info, "started_at=")

	// 두 번째 open 은 별도 open file description 이므로 flock 충돌
	second, err := AcquireLock(path)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.Contains(t, err.Error(), "pid=")

	// 실패한 시도는 보유자 정보를 덮어쓰지 않음
	after, err := ReadLockInfo(path)
	require.NoError(t, err)
	assert.Equal(t, info, after)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	third, err := AcquireLock(path)
	require.NoError(t, err)
	assert.NoError(t, third.Release())

	_, err = os.Stat(path)
	assert.NoError(t, err, "lock file is kept after release")
}

func TestLock_NilRelease(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
