package discord

import "encoding/json"

type checkRequest struct {
	Username string `json:"username"`
}

// Result is a successful availability answer. Raw is the body as returned.
type Result struct {
	Taken bool
	Raw   json.RawMessage
}

func (r *Result) Available() bool {
	return !r.Taken
}
