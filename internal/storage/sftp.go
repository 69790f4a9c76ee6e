package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"

	"bulkops/internal/config"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// SFTP keeps objects on a remote host. Uploads land in root/.staging and are
// renamed into place with the posix-rename extension.
type SFTP struct {
	conn    *ssh.Client
	client  *sftp.Client
	root    string
	staging string
}

func DialSFTP(cfg *config.StorageConfig) (*SFTP, error) {
	auth, err := sftpAuthMethods(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.SFTPHostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.SFTPHostKey))
		if err != nil {
			return nil, fmt.Errorf("invalid sftp host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	} else {
		logrus.Warn("STORAGE_SFTP_HOST_KEY not set, sftp host key is not verified")
	}

	addr := net.JoinHostPort(cfg.SFTPHost, strconv.Itoa(cfg.SFTPPort))
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.SFTPUser,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.SFTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sftp host %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	root := cfg.Root
	if root == "" {
		root = "."
	}
	if err := client.MkdirAll(path.Join(root, ".staging")); err != nil {
		client.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to prepare remote staging directory: %w", err)
	}

	staging := cfg.StagingDir
	if staging == "" {
		staging = os.TempDir()
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		client.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to create local staging directory: %w", err)
	}

	logrus.Infof("SFTP storage connected to %s (root %s)", addr, root)
	return &SFTP{conn: conn, client: client, root: root, staging: staging}, nil
}

func sftpAuthMethods(cfg *config.StorageConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.SFTPPrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(cfg.SFTPPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("invalid sftp private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.SFTPPassword != "" {
		methods = append(methods, ssh.Password(cfg.SFTPPassword))
	}
	if len(methods) == 0 {
		return nil, errors.New("sftp storage requires a password or private key")
	}
	return methods, nil
}

func (s *SFTP) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(s.root, cleaned), nil
}

func (s *SFTP) Save(ctx context.Context, key string, r io.Reader) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}

	tmpPath := path.Join(s.root, ".staging", uuid.NewString())
	f, err := s.client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	if _, err := f.ReadFrom(readerWithContext(ctx, r)); err != nil {
		f.Close()
		_ = s.client.Remove(tmpPath)
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.client.Remove(tmpPath)
		return fmt.Errorf("failed to close remote file: %w", err)
	}

	if err := s.client.MkdirAll(path.Dir(dest)); err != nil {
		_ = s.client.Remove(tmpPath)
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	if err := s.client.PosixRename(tmpPath, dest); err != nil {
		_ = s.client.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	return nil
}

func (s *SFTP) Publish(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	if err := s.Save(ctx, key, f); err != nil {
		return err
	}
	return os.Remove(localPath)
}

func (s *SFTP) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := s.client.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrNotExist
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *SFTP) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := s.client.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *SFTP) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.client.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *SFTP) StagingDir() string {
	return s.staging
}

func (s *SFTP) Close() error {
	if err := s.client.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
