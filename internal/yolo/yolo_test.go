// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package yolo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePython writes a shell script standing in for the interpreter. It gets
// "-u <script> [--serve]" as arguments and ignores them.
func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script interpreter stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

const oneShot = `read req
case "$req" in
  *'"action":"predict"'*)
    echo "loading model"
    echo 'json {"boxes":[{"cls":0,"conf":0.9,"xyxy":[1,2,3,4]},{"cls":7,"conf":0.5,"xyxy":[5,6,7,8]}],"names":{"0":"mauer"}}'
    ;;
  *'"action":"val"'*)
    echo 'json {"metrics":{"precision":0.8,"mAP50":0.7}}'
    ;;
  *'"action":"train"'*)
    echo "epoch 1/1" >&2
    echo 'json {"save_dir":"runs/detect/x","metrics":{}}'
    ;;
  *)
    echo 'json {"error":"FileNotFoundError: weights"}'
    exit 1
    ;;
esac
`

func newTestBridge(t *testing.T, body string) (*PythonBridge, *lockedBuffer) {
	out := &lockedBuffer{}
	b := NewPythonBridge(fakePython(t, body), out)
	b.Script = "bridge.py"
	return b, out
}

func TestBridge_Predict(t *testing.T) {
	b, out := newTestBridge(t, oneShot)

	pred, err := b.Predict(context.Background(), "best.pt", "shot.png", map[string]interface{}{"conf": 0.25})
	require.NoError(t, err)
	require.Len(t, pred.Boxes, 2)

	dets, err := pred.Detections()
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, "mauer", dets[0].ClassName)
	require.Equal(t, "class_7", dets[1].ClassName)
	require.Contains(t, out.String(), "loading model")
}

func TestBridge_TrainAndValidate(t *testing.T) {
	b, out := newTestBridge(t, oneShot)

	res, err := b.Train(context.Background(), "yolov8n.pt", map[string]interface{}{"epochs": 1})
	require.NoError(t, err)
	require.Equal(t, "runs/detect/x", res.SaveDir)
	require.Contains(t, out.String(), "epoch 1/1")

	m, err := b.Validate(context.Background(), "best.pt", nil)
	require.NoError(t, err)
	require.InDelta(t, 0.8, m["precision"], 1e-9)
}

func TestBridge_FrameworkError(t *testing.T) {
	b, _ := newTestBridge(t, oneShot)

	_, err := b.Names(context.Background(), "missing.pt")
	var fe *FrameworkError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.Equal(t, ActionNames, fe.Action)
	require.Contains(t, fe.Message, "FileNotFoundError")
}

func TestBridge_NoResult(t *testing.T) {
	b, _ := newTestBridge(t, "read req\necho boom >&2\nexit 3\n")

	_, err := b.Predict(context.Background(), "best.pt", "shot.png", nil)
	require.ErrorIs(t, err, ErrNoResult)
}

func TestBridge_MissingInterpreter(t *testing.T) {
	b := NewPythonBridge(filepath.Join(t.TempDir(), "nope"), nil)
	b.Script = "bridge.py"
	_, err := b.Predict(context.Background(), "best.pt", "shot.png", nil)
	require.Error(t, err)
}

func TestBridge_Cancel(t *testing.T) {
	b, _ := newTestBridge(t, "read req\nexec sleep 5\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Predict(ctx, "best.pt", "shot.png", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestBridge_EmbeddedScript(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	b := NewPythonBridge("python3", nil)
	path, err := b.script()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(path), "bridge-"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, bridgeScript, data)
}

const serveScript = `read first
echo 'json {"ready":true,"names":{"0":"eins"}}'
while read req; do
  case "$req" in
    *hang*) exec sleep 5 ;;
    *bad*) echo 'json {"error":"OSError: cannot open"}' ;;
    *) echo "progress"; echo 'json {"boxes":[{"cls":0,"conf":0.5,"xyxy":[0,0,1,1]}]}' ;;
  esac
done
`

func TestSession_Predict(t *testing.T) {
	b, out := newTestBridge(t, serveScript)

	s, err := b.StartSession(context.Background(), "zahlen.pt", nil)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, map[int]string{0: "eins"}, s.Names())

	for i := 0; i < 3; i++ {
		pred, err := s.Predict(context.Background(), "shot.png", nil)
		require.NoError(t, err)
		dets, err := pred.Detections()
		require.NoError(t, err)
		require.Len(t, dets, 1)
		require.Equal(t, "eins", dets[0].ClassName)
	}
	require.Equal(t, 3, strings.Count(out.String(), "progress"))

	_, err = s.Predict(context.Background(), "bad.png", nil)
	var fe *FrameworkError
	require.True(t, errors.As(err, &fe))

	// A framework error leaves the session usable.
	_, err = s.Predict(context.Background(), "shot.png", nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = s.Predict(context.Background(), "shot.png", nil)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CancelKills(t *testing.T) {
	b, _ := newTestBridge(t, serveScript)

	s, err := b.StartSession(context.Background(), "zahlen.pt", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = s.Predict(ctx, "hang.png", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.Predict(context.Background(), "shot.png", nil)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.NoError(t, s.Close())
}

func TestSession_NotReady(t *testing.T) {
	b, _ := newTestBridge(t, "read first\necho 'json {\"error\":\"ImportError: ultralytics\"}'\n")

	_, err := b.StartSession(context.Background(), "best.pt", nil)
	var fe *FrameworkError
	require.True(t, errors.As(err, &fe))
}
