package handlers

import "errors"

// Ошибки встроенных обработчиков.
var (
	// ErrHTTPRequest — HTTP-запрос не выполнен.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrHTTPStatus — сервер ответил кодом >= 400.
	ErrHTTPStatus = errors.New("http error status")
)

// Ошибки шаблонов transform.
var (
	// ErrTemplateParse — mapping не является корректным шаблоном.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — шаблон не удалось выполнить.
	ErrTemplateRender = errors.New("template render error")
)
