package ws

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

// TLSOptions names the key material of the secure variant.
type TLSOptions struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	VerifyPeer bool
}

// NewTLSConfig builds a client TLS configuration. The certificate/key pair
// is presented for client authentication when both paths are set; the peer
// certificate is verified only when VerifyPeer is true.
func NewTLSConfig(opts TLSOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !opts.VerifyPeer,
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, wserr.New(wserr.CodeTLSClientCertificateError, "load certificate",
				fmt.Errorf("certfile and keyfile must both be specified"))
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, wserr.New(wserr.CodeTLSClientCertificateError, "load certificate",
				fmt.Errorf("failed to load certificates: %w", err))
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CAFile != "" {
		caCert, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, wserr.New(wserr.CodeTLSServerCertificateError, "load ca",
				fmt.Errorf("failed to read CA file: %w", err))
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, wserr.New(wserr.CodeTLSServerCertificateError, "load ca",
				fmt.Errorf("failed to parse CA certificate"))
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
