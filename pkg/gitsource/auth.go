package gitsource

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/fre/pkg/config"
)

// AuthProvider supplies the credentials used to clone and pull a rule
// repository. Implementations are consulted on every network operation, so
// a rotated token or key file is picked up without restarting.
type AuthProvider interface {
	// GetAuth returns the transport auth method. A nil method with a nil
	// error means the remote is read anonymously.
	GetAuth() (transport.AuthMethod, error)

	// Type returns the auth type ("token", "ssh" or "none") for logging.
	// It never includes the secret itself.
	Type() string
}

// TokenAuth authenticates HTTPS remotes with a personal access token.
// GitHub, GitLab and Gitea all accept a token as the basic-auth password.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates a token auth provider. The token needs read access to
// the repository holding the rule files; an empty token is only rejected
// when GetAuth is called.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// GetAuth returns HTTP basic auth with the token as password. Hosts ignore
// the username for token auth, so a fixed one is sent.
func (a *TokenAuth) GetAuth() (transport.AuthMethod, error) {
	if a.token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}
	return &http.BasicAuth{
		Username: "git", // any non-empty name works for tokens
		Password: a.token,
	}, nil
}

// Type returns "token".
func (a *TokenAuth) Type() string { return "token" }

// SSHAuth authenticates SSH remotes (git@host:org/rules.git) with a private
// key file, optionally encrypted with a passphrase.
type SSHAuth struct {
	keyPath    string
	passphrase string
}

// NewSSHAuth creates an SSH key auth provider. keyPath is the private key
// file, not the .pub half. passphrase decrypts the key and must be empty for
// an unencrypted key.
func NewSSHAuth(keyPath, passphrase string) *SSHAuth {
	return &SSHAuth{keyPath: keyPath, passphrase: passphrase}
}

// GetAuth loads the key from disk. The file must exist and must not be
// readable by group or others, matching what OpenSSH itself enforces; a
// wrong passphrase surfaces here as a load error.
func (a *SSHAuth) GetAuth() (transport.AuthMethod, error) {
	if a.keyPath == "" {
		return nil, fmt.Errorf("ssh key path cannot be empty")
	}
	info, err := os.Stat(a.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access SSH key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
	}
	auth, err := ssh.NewPublicKeysFromFile("git", a.keyPath, a.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return auth, nil
}

// Type returns "ssh".
func (a *SSHAuth) Type() string { return "ssh" }

// NoAuth is used for public and local repositories.
type NoAuth struct{}

func (NoAuth) GetAuth() (transport.AuthMethod, error) { return nil, nil }
func (NoAuth) Type() string                           { return "none" }

// NewAuthProvider builds the provider named by cfg.Type: "token" needs
// cfg.Token, "ssh" needs cfg.SSHKeyPath, and "none" or an empty type reads
// the repository anonymously. Any other type is an error.
func NewAuthProvider(cfg config.GitAuthConfig) (AuthProvider, error) {
	switch cfg.Type {
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires non-empty token")
		}
		return NewTokenAuth(cfg.Token), nil
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires ssh_key_path")
		}
		return NewSSHAuth(cfg.SSHKeyPath, cfg.SSHKeyPassphrase), nil
	case "none", "":
		return NoAuth{}, nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
	}
}
