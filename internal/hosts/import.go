package hosts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type importFile struct {
	Hosts []importHost `yaml:"hosts"`
}

type importHost struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Username     string   `yaml:"username"`
	AuthType     string   `yaml:"auth_type"`
	Password     string   `yaml:"password"`
	PrivateKey   string   `yaml:"private_key"`
	Passphrase   string   `yaml:"passphrase"`
	IdentityFile string   `yaml:"identity_file"`
	Group        string   `yaml:"group"`
	Tags         []string `yaml:"tags"`
	Description  string   `yaml:"description"`
}

// ImportYAML reads a document of the form
//
//	hosts:
//	  - name: web
//	    host: 10.0.0.5
//	    username: deploy
//	    identity_file: ~/.ssh/id_ed25519
//
// and saves every entry. An identity_file is read into the private key and
// implies auth_type "key". It returns the number of hosts saved.
func ImportYAML(ctx context.Context, s *Store, r io.Reader) (int, error) {
	var doc importFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("parse hosts file: %w", err)
	}

	saved := 0
	for i, h := range doc.Hosts {
		p := Profile{
			ID:           h.ID,
			Name:         h.Name,
			Host:         h.Host,
			Port:         h.Port,
			Username:     h.Username,
			AuthType:     h.AuthType,
			Password:     h.Password,
			PrivateKey:   h.PrivateKey,
			Passphrase:   h.Passphrase,
			IdentityFile: h.IdentityFile,
			GroupName:    h.Group,
			Tags:         h.Tags,
			Description:  h.Description,
		}
		if p.PrivateKey == "" && p.IdentityFile != "" {
			key, err := os.ReadFile(expandHome(p.IdentityFile))
			if err != nil {
				return saved, fmt.Errorf("host %d: read identity file: %w", i, err)
			}
			p.PrivateKey = string(key)
		}
		if p.AuthType == "" && p.PrivateKey != "" {
			p.AuthType = AuthKey
		}
		if err := s.Save(ctx, &p); err != nil {
			return saved, fmt.Errorf("host %d (%s): %w", i, h.Host, err)
		}
		saved++
	}
	return saved, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
