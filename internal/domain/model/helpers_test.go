//go:build !integration

package model

import (
	"testing"
	"time"
)

func mustTime(t *testing.T) time.Time {
	t.Helper()
	return time.UnixMilli(1700000000000)
}
