package sshconn

import (
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	PolicyInsecure   = "insecure"
	PolicyKnownHosts = "known_hosts"
)

var insecureWarning sync.Once

// insecureHostKey accepts any server key. It is the default so existing
// profiles keep working, and it logs a warning the first time it is used.
func insecureHostKey(hostname string, _ net.Addr, key ssh.PublicKey) error {
	insecureWarning.Do(func() {
		log.Printf("[sshconn] WARNING: host keys are not verified (policy %q); set OPENSSH_HOST_KEY_POLICY=%s to enforce known_hosts",
			PolicyInsecure, PolicyKnownHosts)
	})
	return nil
}

// HostKeyCallback returns the verifier for a policy name.
func HostKeyCallback(policy, knownHostsPath string) (ssh.HostKeyCallback, error) {
	switch policy {
	case "", PolicyInsecure:
		return insecureHostKey, nil
	case PolicyKnownHosts:
		if knownHostsPath == "" {
			return nil, fmt.Errorf("known_hosts policy requires a known hosts path")
		}
		cb, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", knownHostsPath, err)
		}
		return cb, nil
	default:
		return nil, fmt.Errorf("unknown host key policy %q", policy)
	}
}
