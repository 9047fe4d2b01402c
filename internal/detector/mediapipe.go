package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

const scriptName = "facemesh_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Protocol: on start the service prints one JSON handshake line. Each request
// is a 4-byte big-endian length followed by the encoded image; each reply is
// one JSON line.
type MediaPipeDetector struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	info      *ModelInfo
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started by Start, or lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.Script
	if script == "" {
		script = findMediaPipeScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("mediapipe script: %w", err)
	}

	return &MediaPipeDetector{
		config: config,
		script: script,
	}, nil
}

// Start launches the Python service and waits for its handshake.
func (d *MediaPipeDetector) Start(ctx context.Context) (*ModelInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(ctx); err != nil {
		return nil, err
	}
	d.resetIdleTimer()
	return d.info, nil
}

// Detect sends the image to the service and returns the detected face meshes.
func (d *MediaPipeDetector) Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(ctx); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(img.Data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.kill()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(img.Data); err != nil {
		d.kill()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.readLine(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.kill()
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	faces, err := parseReply([]byte(line))
	if err != nil {
		return nil, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return faces, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted(ctx context.Context) error {
	if d.started {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Use virtual environment Python if available
	pythonPath := d.config.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	args := []string{
		d.script,
		"--max-faces", strconv.Itoa(max(d.config.MaxFaces, 1)),
		"--min-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
	}
	d.cmd = exec.Command(pythonPath, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	line, err := d.readLine(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.kill()
		}
		return fmt.Errorf("read handshake: %w", err)
	}

	info, err := parseHandshake([]byte(line))
	if err != nil {
		d.kill()
		return err
	}

	d.info = info
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

// readLine reads one line from the service. If ctx ends first the process
// is killed, which also unblocks the pending read.
func (d *MediaPipeDetector) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}

	r := d.stdout
	done := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case res := <-done:
		return res.line, res.err
	case <-ctx.Done():
		d.kill()
		return "", ctx.Err()
	}
}

// kill tears down a process whose pipe is in an unknown state.
func (d *MediaPipeDetector) kill() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.started = true // let shutdown reap it
	d.shutdown()
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	var err error
	if d.cmd != nil {
		err = d.cmd.Wait()
	}
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func parseHandshake(line []byte) (*ModelInfo, error) {
	var hs jsonInfo
	if err := json.Unmarshal(line, &hs); err != nil {
		return nil, fmt.Errorf("parse handshake: %w", err)
	}
	if !hs.Ready {
		if hs.Error == "" {
			hs.Error = "service reported not ready"
		}
		return nil, errors.New(hs.Error)
	}
	return hs.toModelInfo("mediapipe"), nil
}

func parseReply(line []byte) ([]mesh.FaceMesh, error) {
	var reply jsonReply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.toMeshes(), nil
}

func findMediaPipeScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".meshstudio", "scripts", scriptName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".meshstudio/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
