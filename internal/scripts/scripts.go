package scripts

import (
	"context"
	"fmt"
	"log"
	"path"

	"github.com/TraxTaz/FontysInfraLab/internal/tunnel"
)

// DefaultScripts are the pfSense sync scripts staged on the bastion.
// They pull the current ca/cert/ovpn state and reimport users.
var DefaultScripts = []string{
	"py_curl_ca",
	"py_curl_certs",
	"py_curl_server_certs",
	"py_curl_ovpn",
	"py_import_users",
}

// Runner executes provisioning scripts on the bastion host over the
// same SSH connection the database tunnel rides on.
type Runner struct {
	channels *tunnel.Manager
	dir      string
	scripts  []string
}

func NewRunner(channels *tunnel.Manager, dir string) *Runner {
	return &Runner{channels: channels, dir: dir, scripts: DefaultScripts}
}

func (r *Runner) RunAll(ctx context.Context) error {
	channel, err := r.channels.Get(ctx)
	if err != nil {
		return err
	}
	if channel.SSH == nil {
		return fmt.Errorf("no ssh client on channel")
	}

	for _, name := range r.scripts {
		session, err := channel.SSH.NewSession()
		if err != nil {
			return fmt.Errorf("ssh session: %w", err)
		}
		output, err := session.CombinedOutput("python3 " + path.Join(r.dir, name+".py"))
		_ = session.Close()
		if err != nil {
			return fmt.Errorf("script %s: %w", name, err)
		}
		log.Printf("script %s: %s", name, output)
	}
	return nil
}
