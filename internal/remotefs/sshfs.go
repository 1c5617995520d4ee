package remotefs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SSHFS implements FS over a pooled SSH connection using the scp wire
// protocol for file content and plain remote commands for everything
// else. The connection is shared; each operation opens its own session.
type SSHFS struct {
	client *ssh.Client
	root   string
}

// NewSSH creates an SSHFS rooted at the remote path root.
func NewSSH(client *ssh.Client, root string) *SSHFS {
	return &SSHFS{client: client, root: strings.TrimSuffix(root, "/")}
}

func (s *SSHFS) abs(p string) string {
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "/") || s.root == "" {
		return p
	}
	return path.Join(s.root, p)
}

// quote shell-quotes a remote path for command interpolation.
func quote(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

func (s *SSHFS) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	// -p marks directories with a trailing slash, -A skips . and ..
	out, err := session.Output("ls -1pA " + quote(s.abs(dir)))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var infos []FileInfo
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		isDir := strings.HasSuffix(name, "/")
		infos = append(infos, FileInfo{
			Name:  strings.TrimSuffix(name, "/"),
			IsDir: isDir,
		})
	}
	return infos, nil
}

func (s *SSHFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Start("scp -f " + quote(s.abs(p))); err != nil {
		return nil, fmt.Errorf("failed to start scp on remote: %w", err)
	}

	// request the file
	if _, err := stdin.Write([]byte{0}); err != nil {
		return nil, fmt.Errorf("failed to write scp null byte: %w", err)
	}

	reader := bufio.NewReader(stdout)
	b, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read scp header byte: %w", err)
	}
	if b == 1 || b == 2 {
		msg, _ := reader.ReadString('\n')
		return nil, fmt.Errorf("scp remote error: %s", strings.TrimSpace(msg))
	}
	if b != 'C' {
		return nil, fmt.Errorf("unexpected scp header: %v", b)
	}
	headerLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read scp header line: %w", err)
	}
	parts := strings.Fields(strings.TrimSpace(headerLine))
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid scp header: %s", headerLine)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size in scp header: %w", err)
	}

	// ack the header, then stream exactly size bytes
	if _, err := stdin.Write([]byte{0}); err != nil {
		return nil, fmt.Errorf("failed to ack scp header: %w", err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	stdin.Write([]byte{0})
	stdin.Close()
	session.Wait()

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *SSHFS) Write(ctx context.Context, p string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.abs(p)

	if err := s.runCommand("mkdir -p " + quote(path.Dir(target))); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Start("scp -t " + quote(path.Dir(target))); err != nil {
		return fmt.Errorf("failed to start scp on remote: %w", err)
	}

	readAck := func() error {
		buf := make([]byte, 1)
		if _, err := stdout.Read(buf); err != nil {
			return fmt.Errorf("failed to read scp ack: %w", err)
		}
		switch buf[0] {
		case 0:
			return nil
		default:
			return fmt.Errorf("scp remote error (ack %d)", buf[0])
		}
	}

	if err := readAck(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	fmt.Fprintf(stdin, "C0644 %d %s\n", size, path.Base(target))
	if err := readAck(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	if _, err := io.Copy(stdin, r); err != nil {
		stdin.Close()
		session.Wait()
		return fmt.Errorf("failed to send file data: %w", err)
	}
	if _, err := stdin.Write([]byte{0}); err != nil {
		stdin.Close()
		session.Wait()
		return fmt.Errorf("failed to send scp terminator: %w", err)
	}
	if err := readAck(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	stdin.Close()
	if err := session.Wait(); err != nil {
		return fmt.Errorf("remote scp command failed: %w", err)
	}
	return nil
}

func (s *SSHFS) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.runCommand("rm -rf " + quote(s.abs(p))); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// Close releases the handle. The pooled connection stays open for other
// services referencing the same host.
func (s *SSHFS) Close() error {
	return nil
}

func (s *SSHFS) runCommand(cmd string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()
	return session.Run(cmd)
}
