// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package yolo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Session is a long-lived bridge process with one model loaded. Requests are
// serialized; a Session is safe for concurrent use.
type Session struct {
	model    string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	rd       *bufio.Reader
	progress io.Writer
	names    map[int]string

	mu     sync.Mutex
	closed bool
}

// StartSession starts a bridge in serve mode and loads model. args are the
// default predict arguments for every request.
func (b *PythonBridge) StartSession(ctx context.Context, model string, args map[string]interface{}) (*Session, error) {
	// The process outlives ctx; ctx only bounds startup.
	cmd, err := b.command(context.Background(), "--serve")
	if err != nil {
		return nil, err
	}
	progress := &syncWriter{w: b.progress()}
	cmd.Stderr = progress
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", b.Python, err)
	}

	s := &Session{
		model:    model,
		cmd:      cmd,
		stdin:    stdin,
		rd:       bufio.NewReaderSize(stdout, 64*1024),
		progress: progress,
	}

	resp, err := s.roundTrip(ctx, "load", request{Model: model, Args: args})
	if err != nil {
		s.kill()
		return nil, err
	}
	if !resp.Ready {
		s.kill()
		return nil, fmt.Errorf("%w: bridge did not report ready", ErrNoResult)
	}
	s.names = resp.Names
	return s, nil
}

// Model returns the loaded weights.
func (s *Session) Model() string { return s.model }

// Names returns the class names of the loaded model.
func (s *Session) Names() map[int]string { return s.names }

// Predict runs the loaded model on source. args override the session
// defaults. Cancelling ctx kills the session.
func (s *Session) Predict(ctx context.Context, source string, args map[string]interface{}) (*Prediction, error) {
	resp, err := s.roundTrip(ctx, ActionPredict, request{Source: source, Args: args})
	if err != nil {
		return nil, err
	}
	names := resp.Names
	if names == nil {
		names = s.names
	}
	return &Prediction{Boxes: resp.Boxes, Names: names}, nil
}

// Close stops the bridge process.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	err := s.cmd.Wait()
	if _, ok := err.(*exec.ExitError); ok {
		// Exit status after stdin EOF is not interesting.
		return nil
	}
	return err
}

func (s *Session) kill() {
	s.closed = true
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdin.Close()
	s.cmd.Wait()
}

type lineResult struct {
	line string
	err  error
}

func (s *Session) roundTrip(ctx context.Context, action string, req request) (*response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		s.kill()
		return nil, fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}

	done := make(chan lineResult, 1)
	go func() {
		for {
			line, err := s.rd.ReadString('\n')
			if err != nil {
				done <- lineResult{err: err}
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.HasPrefix(line, resultPrefix) {
				done <- lineResult{line: strings.TrimPrefix(line, resultPrefix)}
				return
			}
			fmt.Fprintln(s.progress, line)
		}
	}()

	select {
	case <-ctx.Done():
		s.kill()
		<-done
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			s.kill()
			return nil, fmt.Errorf("%w: %v", ErrSessionClosed, res.err)
		}
		return decodeResponse(action, res.line)
	}
}
