package shell

import (
	"context"
	"io"

	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/sshconn"
)

// SSHOpener dials with sshconn and starts an xterm PTY shell.
type SSHOpener struct {
	Options sshconn.Options
	Cols    int
	Rows    int
}

func (o SSHOpener) Open(ctx context.Context, p *hosts.Profile) (Channel, io.Closer, error) {
	client, err := sshconn.Dial(ctx, p, o.Options)
	if err != nil {
		return nil, nil, err
	}
	cols, rows := o.Cols, o.Rows
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	ch, err := openShell(client.SSH(), cols, rows)
	if err != nil {
		client.Close()
		return nil, nil, apperr.Wrap(apperr.ConnectError, "open shell on "+client.Addr(), err)
	}
	return ch, client, nil
}
