// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package yolo

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/jeranaias/yolokit/internal/util"
)

//go:embed bridge.py
var bridgeScript []byte

// PythonBridge runs one bridge process per call.
type PythonBridge struct {
	// Python is the interpreter, e.g. "python3".
	Python string
	// Script overrides the bridge script location. Empty uses the embedded
	// script, written once to the user cache directory.
	Script string
	// Progress receives framework output. Nil discards it.
	Progress io.Writer
	// Env is appended to the process environment.
	Env []string

	scriptOnce sync.Once
	scriptPath string
	scriptErr  error
}

// NewPythonBridge returns a bridge using python and streaming framework output
// to progress.
func NewPythonBridge(python string, progress io.Writer) *PythonBridge {
	return &PythonBridge{Python: python, Progress: progress}
}

// Train trains model with args forwarded unchanged as keyword arguments.
func (b *PythonBridge) Train(ctx context.Context, model string, args map[string]interface{}) (*TrainResult, error) {
	resp, err := b.call(ctx, request{Action: ActionTrain, Model: model, Args: args})
	if err != nil {
		return nil, err
	}
	return &TrainResult{SaveDir: resp.SaveDir, Metrics: resp.Metrics}, nil
}

// Validate evaluates model on the dataset named in args["data"].
func (b *PythonBridge) Validate(ctx context.Context, model string, args map[string]interface{}) (Metrics, error) {
	resp, err := b.call(ctx, request{Action: ActionVal, Model: model, Args: args})
	if err != nil {
		return nil, err
	}
	if resp.Metrics == nil {
		resp.Metrics = Metrics{}
	}
	return resp.Metrics, nil
}

// Predict runs model on source.
func (b *PythonBridge) Predict(ctx context.Context, model, source string, args map[string]interface{}) (*Prediction, error) {
	resp, err := b.call(ctx, request{Action: ActionPredict, Model: model, Source: source, Args: args})
	if err != nil {
		return nil, err
	}
	return &Prediction{Boxes: resp.Boxes, Names: resp.Names}, nil
}

// Names returns the class names stored in a weights file.
func (b *PythonBridge) Names(ctx context.Context, model string) (map[int]string, error) {
	resp, err := b.call(ctx, request{Action: ActionNames, Model: model})
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

func (b *PythonBridge) progress() io.Writer {
	if b.Progress == nil {
		return io.Discard
	}
	return b.Progress
}

// script returns the bridge script path, materializing the embedded copy on
// first use. The file name carries a content hash so upgrades never run a
// stale script.
func (b *PythonBridge) script() (string, error) {
	if b.Script != "" {
		return b.Script, nil
	}
	b.scriptOnce.Do(func() {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		sum := blake2b.Sum256(bridgeScript)
		path := filepath.Join(dir, "yolokit", "bridge-"+hex.EncodeToString(sum[:6])+".py")
		if !util.FileExists(path) {
			if err := util.AtomicWriteFile(path, bridgeScript, 0644); err != nil {
				b.scriptErr = fmt.Errorf("failed to write bridge script: %w", err)
				return
			}
		}
		b.scriptPath = path
	})
	return b.scriptPath, b.scriptErr
}

func (b *PythonBridge) command(ctx context.Context, extra ...string) (*exec.Cmd, error) {
	script, err := b.script()
	if err != nil {
		return nil, err
	}
	args := append([]string{"-u", script}, extra...)
	cmd := exec.CommandContext(ctx, b.Python, args...)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")
	cmd.Env = append(cmd.Env, b.Env...)
	// Framework workers may inherit the output pipes.
	cmd.WaitDelay = 2 * time.Second
	return cmd, nil
}

// call runs one request and returns the bridge's final result line.
func (b *PythonBridge) call(ctx context.Context, req request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd, err := b.command(ctx)
	if err != nil {
		return nil, err
	}
	progress := &syncWriter{w: b.progress()}
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stderr = progress
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", b.Python, err)
	}

	var result string
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, resultPrefix) {
			result = strings.TrimPrefix(line, resultPrefix)
			continue
		}
		fmt.Fprintln(progress, line)
	}
	scanErr := sc.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if result == "" {
		if waitErr != nil {
			return nil, fmt.Errorf("%w: %s exited: %v", ErrNoResult, b.Python, waitErr)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoResult, scanErr)
		}
		return nil, ErrNoResult
	}

	resp, err := decodeResponse(req.Action, result)
	if err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, fmt.Errorf("%s exited after result: %w", b.Python, waitErr)
	}
	return resp, nil
}

func decodeResponse(action, line string) (*response, error) {
	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode framework result: %w", err)
	}
	if resp.Error != "" {
		return nil, &FrameworkError{Action: action, Message: resp.Error}
	}
	return &resp, nil
}

// syncWriter serializes writes from the stdout scanner and the stderr copier.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
