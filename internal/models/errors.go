package models

// ErrorResponse тело ответа с ошибкой для всех эндпоинтов
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
