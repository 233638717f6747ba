package ovpn

import (
	"fmt"
	"strings"

	"github.com/TraxTaz/FontysInfraLab/internal/model"
)

const FileName = "openvpn_config.ovpn"

// Render builds the OpenVPN client profile for one user. The layout is
// what the pfSense-side export expects: fixed directives first, then
// the inline ca/cert/key/tls-auth blocks.
func Render(cfg model.UserConfig, remoteHost string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "dev %s\n", cfg.DevMode)
	b.WriteString("persist-tun\npersist-key\n")
	fmt.Fprintf(&b, "data-ciphers %s\n", cfg.DataCiphers)
	fmt.Fprintf(&b, "data-ciphers-fallback %s\n", cfg.DataCiphersFallback)
	fmt.Fprintf(&b, "auth %s\n", cfg.Digest)
	b.WriteString("tls-client\nclient\nresolv-retry infinite\n")
	fmt.Fprintf(&b, "remote %s %s %s\n", remoteHost, cfg.LocalPort, strings.ToLower(cfg.Protocol))
	b.WriteString("nobind\n")
	fmt.Fprintf(&b, "verify-x509-name %q name\n", cfg.Description)
	b.WriteString("auth-user-pass\nremote-cert-tls server\nexplicit-exit-notify\n\n")
	fmt.Fprintf(&b, "<ca>\n%s</ca>\n", cfg.CertificateAuthority)
	fmt.Fprintf(&b, "<cert>\n%s</cert>\n", cfg.Certificate)
	fmt.Fprintf(&b, "<key>\n%s</key>\n", cfg.PrivateKey)
	b.WriteString("key-direction 1\n")
	fmt.Fprintf(&b, "<tls-auth>\n%s</tls-auth>", cfg.TLSStaticKey)
	return b.String()
}
