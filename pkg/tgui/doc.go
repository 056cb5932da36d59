// Package tgui holds the Telegram presentation helpers used by the bot:
// HTML-safe text building, inline and Mini App keyboards, and the
// "scope:action:payload" callback data format.
package tgui
