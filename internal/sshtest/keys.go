package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// GenerateKeyPair returns an ed25519 key as PEM plus its public half. A
// non-empty passphrase produces an encrypted OpenSSH private key.
func GenerateKeyPair(passphrase string) (privateKeyPEM []byte, pub ssh.PublicKey, err error) {
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	pub, err = ssh.NewPublicKey(edPub)
	if err != nil {
		return nil, nil, fmt.Errorf("create ssh public key: %w", err)
	}

	if passphrase != "" {
		block, err := ssh.MarshalPrivateKeyWithPassphrase(edPriv, "sshtest", []byte(passphrase))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal encrypted key: %w", err)
		}
		return pem.EncodeToMemory(block), pub, nil
	}

	der, err := x509.MarshalPKCS8PrivateKey(edPriv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), pub, nil
}
