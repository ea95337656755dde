package router

import "github.com/m3rciful/evabot/core/telegram/ui"

// FallbackOptions derives text and callback route options from p.
func FallbackOptions(p ui.FallbackProvider) (TextOptions, CallbackOptions) {
	if p == nil {
		return TextOptions{}, CallbackOptions{}
	}
	return TextOptions{
			UnknownText:     p.UnknownText(),
			UnknownDocument: p.UnknownDocument(),
		}, CallbackOptions{
			NotFound: p.UnknownCallback(),
		}
}
