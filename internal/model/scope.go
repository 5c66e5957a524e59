package model

import "strings"

// Scope is the visibility tuple resolved by the auth layer. Every query
// against the vector store and the topic cache filters by it.
type Scope struct {
	Org      string `json:"org"`
	Division string `json:"division"`
	App      string `json:"app"`
}

func (s Scope) IsValid() bool {
	return strings.TrimSpace(s.Org) != ""
}

func (s Scope) Key() string {
	return s.Org + "/" + s.Division + "/" + s.App
}
