package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// process is a started child with its input sink and merged output stream.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output io.ReadCloser

	inOnce  sync.Once
	outOnce sync.Once
}

// shellCommand builds `<shell> -c <command>` in workDir.
func shellCommand(shell, command, workDir string) *exec.Cmd {
	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	return cmd
}

// startPiped starts the command with stdout and stderr sharing one pipe so
// the child's two streams are merged by the kernel in write order.
func startPiped(cmd *exec.Cmd, withInput bool) (*process, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	var inR, inW *os.File
	if withInput {
		inR, inW, err = os.Pipe()
		if err != nil {
			outR.Close()
			outW.Close()
			return nil, fmt.Errorf("create input pipe: %w", err)
		}
		cmd.Stdin = inR
	}

	cmd.Stdout = outW
	cmd.Stderr = outW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		if withInput {
			inR.Close()
			inW.Close()
		}
		return nil, err
	}

	// The child holds its own copies now.
	outW.Close()
	p := &process{cmd: cmd, output: outR}
	if withInput {
		inR.Close()
		p.stdin = inW
	}
	return p, nil
}

// startTTY starts the command on a pseudo-terminal. The pty master is both
// the input sink and the output stream; only the output side closes it.
func startTTY(cmd *exec.Cmd) (*process, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 200})
	if err != nil {
		return nil, err
	}
	return &process{
		cmd:    cmd,
		stdin:  nopCloser{ptmx},
		output: eioReader{ptmx},
	}, nil
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// kill sends SIGKILL to the child's process group so grandchildren holding
// the output pipe die with it.
func (p *process) kill() {
	pid := p.pid()
	if pid == 0 {
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		p.cmd.Process.Kill()
	}
}

func (p *process) closeInput() {
	if p.stdin == nil {
		return
	}
	p.inOnce.Do(func() { p.stdin.Close() })
}

func (p *process) closeOutput() {
	p.outOnce.Do(func() { p.output.Close() })
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// eioReader maps EIO, which a pty master returns once the child side is
// gone, to a clean end of stream.
type eioReader struct{ *os.File }

func (r eioReader) Read(p []byte) (int, error) {
	n, err := r.File.Read(p)
	if errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}
