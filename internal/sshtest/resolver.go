package sshtest

import (
	"context"

	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/hosts"
)

// Resolver serves fixed profiles by id, standing in for the host store.
type Resolver map[string]*hosts.Profile

// Get returns a copy of the profile registered under id.
func (r Resolver) Get(_ context.Context, id string) (*hosts.Profile, error) {
	p, ok := r[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "get host", "host %q not found", id)
	}
	cp := *p
	return &cp, nil
}
