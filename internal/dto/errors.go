package dto

type ErrorResponse struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"listen session lst_abc: not found"`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}
