package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"
)

const (
	externalTimeout  = 3 * time.Second
	externalMaxBytes = 4 * 1024 * 1024
)

// externalRequest mirrors the JSON protocol's stdin payload.
type externalRequest struct {
	Action  string `json:"action"`
	Content string `json:"content"`
	Parser  string `json:"parser"`
}

// externalResponse mirrors the JSON protocol's stdout payload. Only
// each symbol's kind, name and start are used: the script's end and
// body fields are ignored, and spans are extended and re-sliced on this
// side per the top-level-symbol contract.
type externalResponse struct {
	OK     bool   `json:"ok"`
	Parser string `json:"parser,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
	Symbols []struct {
		Kind  string `json:"kind"`
		Name  string `json:"name"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"symbols,omitempty"`
}

// ExternalParser drives the external AST-backed parser subprocess: a
// small script speaking one JSON object in on stdin, one JSON object
// out on stdout, per invocation.
type ExternalParser struct {
	Bin  string
	Args []string

	mu          sync.Mutex
	unavailable bool
}

// NewExternalParser builds a parser that shells out to bin (with args,
// typically the pyparser script path) for every call.
func NewExternalParser(bin string, args ...string) *ExternalParser {
	return &ExternalParser{Bin: bin, Args: args}
}

// Unavailable reports whether the last invocation's subprocess failed
// to start, timed out, exceeded the output bound, or exited non-zero
// (as opposed to the subprocess reporting an error in its reply).
func (p *ExternalParser) Unavailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unavailable
}

// ParseTopLevel invokes the subprocess with a hard wall-clock timeout
// and a bounded output size; timeout, oversize output, a non-zero exit,
// or failure to start are all treated as parser unavailable
// (Unavailable with no symbols), letting the caller fall back per
// parser mode.
func (p *ExternalParser) ParseTopLevel(content string, mode ParserMode) ParseResult {
	ctx, cancel := context.WithTimeout(context.Background(), externalTimeout)
	defer cancel()

	req := externalRequest{Action: "parse_top_level", Content: content, Parser: string(mode)}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return ParseResult{Unavailable: true}
	}

	args := append([]string{}, p.Args...)
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	cmd.Stdin = bytes.NewReader(reqJSON)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.markUnavailable()
		return ParseResult{Unavailable: true}
	}
	if err := cmd.Start(); err != nil {
		p.markUnavailable()
		return ParseResult{Unavailable: true}
	}

	limited := io.LimitReader(stdout, externalMaxBytes+1)
	out, readErr := io.ReadAll(limited)
	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		p.markUnavailable()
		return ParseResult{Unavailable: true}
	}
	if readErr != nil || len(out) > externalMaxBytes {
		p.markUnavailable()
		return ParseResult{Unavailable: true}
	}
	if waitErr != nil {
		p.markUnavailable()
		return ParseResult{Unavailable: true}
	}

	p.markAvailable()

	var resp externalResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return ParseResult{Unavailable: true}
	}
	if !resp.OK {
		if resp.Error == "parser_unavailable" {
			return ParseResult{Unavailable: true}
		}
		return ParseResult{ParseError: true}
	}

	syms := make([]Symbol, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		syms = append(syms, Symbol{Kind: s.Kind, Name: s.Name, Start: s.Start})
	}
	return toParseResult(content, syms)
}

func (p *ExternalParser) markUnavailable() {
	p.mu.Lock()
	p.unavailable = true
	p.mu.Unlock()
}

func (p *ExternalParser) markAvailable() {
	p.mu.Lock()
	p.unavailable = false
	p.mu.Unlock()
}
