package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	module := "hold"
	id := GenerateUUIDWithSuffix(module)
	assert.Contains(t, id, module+"_")
}

func TestChecksumStable(t *testing.T) {
	a := Checksum("hello", "french", "1.0")
	b := Checksum("hello", "french", "1.0")
	c := Checksum("hello", "french", "0.8")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestLanguageSlug(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"English", "english"},
		{"Mandarin Chinese", "mandarin-chinese"},
		{"  Brazilian  Portuguese ", "brazilian-portuguese"},
		{"français", "français"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LanguageSlug(tt.language))
	}
}

func TestAudioFileName(t *testing.T) {
	name := AudioFileName("Mandarin Chinese", "lsn_123", 4)
	assert.Equal(t, "mandarin-chinese_lsn_123_4.mp3", name)
}

func TestBalance_ReserveCommitRelease(t *testing.T) {
	balance := &Balance{DeviceID: "dev_1", Balance: 10}
	hold := &Hold{HoldID: "hold_1", DeviceID: "dev_1", Amount: 3}

	assert.True(t, balance.CanReserve(3))
	balance.Reserve(3)
	assert.Equal(t, int64(3), balance.Reserved)
	assert.Equal(t, int64(7), balance.Available())

	balance.CommitHold(hold)
	assert.Equal(t, int64(7), balance.Balance)
	assert.Equal(t, int64(0), balance.Reserved)

	balance.Reserve(2)
	balance.ReleaseHold(&Hold{Amount: 2})
	assert.Equal(t, int64(7), balance.Balance)
	assert.Equal(t, int64(0), balance.Reserved)
}

func TestBalance_CanReserveBoundary(t *testing.T) {
	balance := &Balance{Balance: 5, Reserved: 5}
	assert.False(t, balance.CanReserve(1))
	balance.Reserved = 4
	assert.True(t, balance.CanReserve(1))
	assert.False(t, balance.CanReserve(2))
}

func TestBalance_ReleaseNeverUnderflows(t *testing.T) {
	balance := &Balance{Balance: 5, Reserved: 1}
	balance.ReleaseHold(&Hold{Amount: 4})
	assert.Equal(t, int64(0), balance.Reserved)
}

func TestHold_Expired(t *testing.T) {
	hold := &Hold{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, hold.Expired(time.Now()))
	hold.ExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, hold.Expired(time.Now()))

	forever := &Hold{}
	assert.False(t, forever.Expired(time.Now()))
}

func TestHold_Resolved(t *testing.T) {
	hold := &Hold{State: HoldPending}
	assert.False(t, hold.Resolved())
	hold.State = HoldCommitted
	assert.True(t, hold.Resolved())
	hold.State = HoldCancelled
	assert.True(t, hold.Resolved())
}
