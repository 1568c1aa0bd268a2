package dto

type RealtimeTextRequest struct {
	Text string `json:"text" example:"Wie spät ist es?"`
}

type RealtimeLogEntry struct {
	Kind string `json:"kind" example:"ai"`
	Text string `json:"text" example:"What time is it?"`
	Time string `json:"time" example:"14:07:09"`
}

type RealtimeStateResponse struct {
	ID     string             `json:"id" example:"rt_5d6e"`
	State  string             `json:"state" example:"connected"`
	Active bool               `json:"active" example:"true"`
	Log    []RealtimeLogEntry `json:"log"`
}
