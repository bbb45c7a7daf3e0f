package server

import "github.com/hubenschmidt/legalqa/retriever"

type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type AskResponse struct {
	Question string                   `json:"question"`
	Answer   string                   `json:"answer"`
	Sources  []retriever.ScoredResult `json:"sources"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
	K     int    `json:"k" validate:"omitempty,min=1,max=100"`
}

type SearchResponse struct {
	Query   string                   `json:"query"`
	Results []retriever.ScoredResult `json:"results"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

type IndexInfo struct {
	Documents int    `json:"documents"`
	ModelID   string `json:"model_id"`
	Dim       int    `json:"dim"`
}
