package main

import (
	"net/http"
	"time"
)

const storeHTTPTimeout = 30 * time.Second
const llmHTTPTimeout = 60 * time.Second

// The record store gets the short timeout and no retries; LLM calls are
// slower and retried by the client in llm.go.
var storeHTTPClient = &http.Client{
	Timeout: storeHTTPTimeout,
}

var llmHTTPClient = &http.Client{
	Timeout: llmHTTPTimeout,
}
