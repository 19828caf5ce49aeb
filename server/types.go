package server

import "github.com/iranianx/rate/storage/types"

type SourcesResponse struct {
	Results []types.Source `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
