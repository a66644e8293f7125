package sshtest

import "github.com/litianfu1997/openssh/internal/hosts"

// PasswordProfile returns a profile that authenticates with Password.
func (s *Server) PasswordProfile() *hosts.Profile {
	return &hosts.Profile{
		ID:       "sshtest-password",
		Name:     "sshtest",
		Host:     s.Host,
		Port:     s.Port,
		Username: User,
		AuthType: hosts.AuthPassword,
		Password: Password,
		Tags:     []string{},
	}
}

// KeyProfile returns a profile that authenticates with ClientKeyPEM.
func (s *Server) KeyProfile() *hosts.Profile {
	return &hosts.Profile{
		ID:         "sshtest-key",
		Name:       "sshtest",
		Host:       s.Host,
		Port:       s.Port,
		Username:   User,
		AuthType:   hosts.AuthKey,
		PrivateKey: string(s.ClientKeyPEM),
		Tags:       []string{},
	}
}
