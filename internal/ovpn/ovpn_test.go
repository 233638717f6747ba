package ovpn

import (
	"strings"
	"testing"

	"github.com/TraxTaz/FontysInfraLab/internal/model"
)

func TestRender(t *testing.T) {
	cfg := model.UserConfig{
		Email:                "s.jansen@student.fontys.nl",
		CertificateAuthority: "CA-PEM\n",
		PrivateKey:           "KEY-PEM\n",
		Certificate:          "CERT-PEM\n",
		Description:          "vpn-server-cert",
		DataCiphers:          "AES-256-GCM:CHACHA20-POLY1305",
		DataCiphersFallback:  "AES-256-CBC",
		TLSStaticKey:         "TLS-KEY\n",
		DevMode:              "tun",
		Digest:               "SHA256",
		LocalPort:            "1194",
		Protocol:             "UDP",
	}

	profile := Render(cfg, "145.220.75.91")

	for _, want := range []string{
		"dev tun\n",
		"persist-tun\npersist-key\n",
		"data-ciphers AES-256-GCM:CHACHA20-POLY1305\n",
		"data-ciphers-fallback AES-256-CBC\n",
		"auth SHA256\n",
		"remote 145.220.75.91 1194 udp\n",
		"verify-x509-name \"vpn-server-cert\" name\n",
		"<ca>\nCA-PEM\n</ca>\n",
		"<cert>\nCERT-PEM\n</cert>\n",
		"<key>\nKEY-PEM\n</key>\n",
		"key-direction 1\n",
		"<tls-auth>\nTLS-KEY\n</tls-auth>",
	} {
		if !strings.Contains(profile, want) {
			t.Fatalf("profile missing %q:\n%s", want, profile)
		}
	}

	if !strings.HasPrefix(profile, "dev tun\n") {
		t.Fatalf("profile must start with the dev directive")
	}
	if !strings.HasSuffix(profile, "</tls-auth>") {
		t.Fatalf("profile must end with the tls-auth block")
	}
}

func TestRenderLowercasesProtocol(t *testing.T) {
	profile := Render(model.UserConfig{Protocol: "TCP", LocalPort: "443"}, "vpn.example.nl")
	if !strings.Contains(profile, "remote vpn.example.nl 443 tcp\n") {
		t.Fatalf("protocol not lowercased:\n%s", profile)
	}
}
