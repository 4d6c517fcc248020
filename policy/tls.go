package policy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/viant/mcprelay/target"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Policy is the connection policy derived for a backend port.
type Policy struct {
	Scheme string
	// Required rejects any non https request made with the client.
	Required bool
	// Verify reports whether the server hostname is verified; meaningless without TLS.
	Verify bool
	TLS    *tls.Config
}

// TLS derives the scheme and verification mode for port and an optional TLS config.
//
//	443   nil  https, required, verify
//	443   set  https, required, verify unless InsecureSkipVerify
//	other nil  http
//	other set  https, not required, verify unless InsecureSkipVerify
func TLS(port int, config *target.TLS) Policy {
	switch {
	case port == 443 && config == nil:
		return Policy{Scheme: SchemeHTTPS, Required: true, Verify: true, TLS: &tls.Config{}}
	case port == 443:
		return Policy{Scheme: SchemeHTTPS, Required: true, Verify: !config.InsecureSkipVerify, TLS: tlsConfig(config)}
	case config == nil:
		return Policy{Scheme: SchemeHTTP}
	default:
		return Policy{Scheme: SchemeHTTPS, Verify: !config.InsecureSkipVerify, TLS: tlsConfig(config)}
	}
}

func tlsConfig(config *target.TLS) *tls.Config {
	if !config.InsecureSkipVerify {
		return &tls.Config{}
	}
	// certificate chains are still verified, only the hostname check is skipped
	return &tls.Config{
		InsecureSkipVerify: true,
		VerifyConnection:   verifyChain,
	}
}

func verifyChain(state tls.ConnectionState) error {
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("server presented no certificates")
	}
	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err := state.PeerCertificates[0].Verify(x509.VerifyOptions{Intermediates: intermediates})
	return err
}
