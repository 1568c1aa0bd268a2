package dto

type StartConversationRequest struct {
	UserLanguage    string `json:"user_language" example:"en"`
	PartnerLanguage string `json:"partner_language" example:"de"`
}

type LanguageResponse struct {
	Code  string `json:"code" example:"de"`
	Name  string `json:"name" example:"German"`
	Voice string `json:"voice" example:"onyx"`
}

type ConversationEntryResponse struct {
	Side   string         `json:"side" example:"user"`
	Result ResultResponse `json:"result"`
}

type ConversationResponse struct {
	ID              string                      `json:"id" example:"conv_1b2c"`
	UserLanguage    LanguageResponse            `json:"user_language"`
	PartnerLanguage LanguageResponse            `json:"partner_language"`
	Entries         []ConversationEntryResponse `json:"entries"`
}

type LanguageListResponse struct {
	Languages []LanguageResponse `json:"languages"`
}
