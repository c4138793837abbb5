package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogStatus(t *testing.T) {
	for _, status := range []LogStatus{
		LogStatusUnfixed,
		LogStatusUnfixedStart,
		LogStatusFixBlockStart,
		LogStatusFixArchive,
		LogStatusFixBlockEnd,
		LogStatusFixRestStart,
		LogStatusFixRestBlock,
		LogStatusFixRestEnd,
		LogStatusExpire,
		LogStatusExpireForce,
	} {
		assert.Equal(t, status, ParseLogStatus(status.String()))
	}

	assert.Equal(t, LogStatusUnknown, ParseLogStatus("bogus"))
	assert.Equal(t, LogStatusUnknown, ParseLogStatus(""))
}

func TestLogStatusClasses(t *testing.T) {
	fixed := []LogStatus{
		LogStatusFixBlockStart,
		LogStatusFixArchive,
		LogStatusFixBlockEnd,
		LogStatusFixRestStart,
		LogStatusFixRestBlock,
		LogStatusFixRestEnd,
	}
	for _, s := range fixed {
		assert.Truef(t, s.IsFixed(), "%s should be fixed", s)
		assert.Falsef(t, s.IsUnfixed(), "%s should not be unfixed", s)
		assert.Falsef(t, s.IsExpire(), "%s should not be expire", s)
	}

	for _, s := range []LogStatus{LogStatusUnfixed, LogStatusUnfixedStart} {
		assert.Truef(t, s.IsUnfixed(), "%s should be unfixed", s)
		assert.Falsef(t, s.IsFixed(), "%s should not be fixed", s)
	}

	for _, s := range []LogStatus{LogStatusExpire, LogStatusExpireForce} {
		assert.Truef(t, s.IsExpire(), "%s should be expire", s)
		assert.Falsef(t, s.IsFixed(), "%s should not be fixed", s)
	}

	assert.False(t, LogStatusUnknown.IsFixed())
	assert.False(t, LogStatusUnknown.IsUnfixed())
	assert.False(t, LogStatusUnknown.IsExpire())
}

func TestParseOrderSide(t *testing.T) {
	assert.Equal(t, OrderSideBuy, ParseOrderSide("BUY"))
	assert.Equal(t, OrderSideBuy, ParseOrderSide("buy"))
	assert.Equal(t, OrderSideBuy, ParseOrderSide("Bid"))
	assert.Equal(t, OrderSideSell, ParseOrderSide("SELL"))
	assert.Equal(t, OrderSideSell, ParseOrderSide("s"))
	assert.Equal(t, OrderSideSell, ParseOrderSide("ask"))
	assert.Equal(t, OrderSideUnknown, ParseOrderSide("hold"))

	assert.True(t, OrderSideBuy.IsAvailable())
	assert.True(t, OrderSideSell.IsAvailable())
	assert.False(t, OrderSideUnknown.IsAvailable())
}
