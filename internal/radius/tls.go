// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/nqminds/EDGESec/internal/errors"
)

// TLSConfig holds the PEM paths for EAP-TLS's CA/server cert/server key
// (spec §4.6). DH params are not represented here: Go's TLS stack
// negotiates its own cipher suites and has no DH-params knob to mirror.
type TLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// Build constructs a *tls.Config capped at TLS 1.2, matching the compat
// note in spec.md §4.6 (TLSv1.3 disabled).
func (c TLSConfig) Build() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "radius: load eap-tls server cert")
	}

	pool := x509.NewCertPool()
	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "radius: read eap-tls ca")
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.Errorf(errors.KindValidation, "radius: no certificates found in %s", c.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MaxVersion:   tls.VersionTLS12,
	}, nil
}
