package model

type User struct {
	Email string
	VPNID string
}

type Teacher struct {
	Email string
}

// UserConfig is the joined row behind a user's OpenVPN profile:
// users + openvpn_config + ca + certificates.
type UserConfig struct {
	Email                string
	CertificateAuthority string
	PrivateKey           string
	Certificate          string
	Description          string
	DataCiphers          string
	DataCiphersFallback  string
	TLSStaticKey         string
	DevMode              string
	Digest               string
	LocalPort            string
	Protocol             string
}

type UserRecord struct {
	VPNID string
	UserConfig
}
