package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row; empty rows are skipped.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

func (i *Inline) Rows() int { return len(i.rows) }

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback data (see Data).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// WebAppKeyboard returns a resized reply keyboard holding one button that
// opens the Mini App at url. Data the Mini App sends back with sendData
// arrives as a web_app_data message.
func WebAppKeyboard(text, url string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		ResizeKeyboard: true,
		ReplyKeyboard: [][]tele.ReplyButton{
			{{Text: text, WebApp: &tele.WebApp{URL: url}}},
		},
	}
}
