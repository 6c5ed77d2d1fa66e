package transcoder

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// fakeRunner records invocations and writes a small file at the output
// path (always the last ffmpeg argument).
type fakeRunner struct {
	mu          sync.Mutex
	calls       [][]string
	probeOutput []byte
	failWhen    func(args []string) bool
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	if strings.Contains(name, "ffprobe") {
		return r.probeOutput, nil, nil
	}

	if r.failWhen != nil && r.failWhen(args) {
		return nil, []byte("encoder exploded"), errors.New("exec: boom")
	}

	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("artifact-bytes"), 0644); err != nil {
		return nil, nil, err
	}
	return nil, nil, nil
}

func (r *fakeRunner) ffmpegCalls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var calls [][]string
	for _, c := range r.calls {
		if c[0] == "ffmpeg" {
			calls = append(calls, c[1:])
		}
	}
	return calls
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
