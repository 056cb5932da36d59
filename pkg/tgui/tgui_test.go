package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDataRoundTrip(t *testing.T) {
	d := Data("users", "page", "3")
	assert.Equal(t, "users:page:3", d)

	scope, action, payload, ok := ParseData(d)
	require.True(t, ok)
	assert.Equal(t, "users", scope)
	assert.Equal(t, "page", action)
	assert.Equal(t, "3", payload)

	scope, action, payload, ok = ParseData("users:refresh")
	require.True(t, ok)
	assert.Equal(t, "users", scope)
	assert.Equal(t, "refresh", action)
	assert.Empty(t, payload)

	_, _, _, ok = ParseData("garbage")
	assert.False(t, ok)
}

func TestDataChecked_TooLong(t *testing.T) {
	_, err := DataChecked("users", "page", strings.Repeat("x", MaxCallbackDataLen))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestBuilderEscapesAndAttachesMarkup(t *testing.T) {
	kb := NewInline().Row(Btn("1/2", Data("users", "noop", "")))
	msg := New().Title("👥", "Users <all>").Line("a & b").Inline(kb).Build()

	assert.Equal(t, "👥 <b>Users &lt;all&gt;</b>\na &amp; b", msg.Text)
	require.NotNil(t, msg.Opt)
	assert.Equal(t, tele.ModeHTML, msg.Opt.ParseMode)
	assert.Same(t, kb.Markup(), msg.Opt.ReplyMarkupAdapter)
}

func TestBuilderEmptyInlineClearsMarkup(t *testing.T) {
	msg := New().Line("x").Inline(NewInline()).Build()
	assert.Nil(t, msg.Opt.ReplyMarkupAdapter)
}

func TestWebAppKeyboard(t *testing.T) {
	rm := WebAppKeyboard("🚀 Open Mini App", "https://example.org/app")
	require.Len(t, rm.ReplyKeyboard, 1)
	require.Len(t, rm.ReplyKeyboard[0], 1)
	btn := rm.ReplyKeyboard[0][0]
	assert.Equal(t, "🚀 Open Mini App", btn.Text)
	require.NotNil(t, btn.WebApp)
	assert.Equal(t, "https://example.org/app", btn.WebApp.URL)
	assert.True(t, rm.ResizeKeyboard)
}
