package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	Configure("../../locales", "VI")
	t.Cleanup(func() { Configure("../../locales", "en") })

	assert.Equal(t, "vi", GetLanguage())
	assert.Equal(t, "Cảnh báo của bạn:", Translate("Your alerts:"))
	assert.Equal(t, "Đã xoá cảnh báo #3.", Translate("Alert #%d removed.", 3))
	assert.Equal(t, "not in the catalog", Translate("not in the catalog"))
}

func TestFallbackToMsgID(t *testing.T) {
	Configure("../../locales", "en")

	assert.Equal(t, "Removed 2 alerts.", Translate("Removed %d alerts.", 2))
}
