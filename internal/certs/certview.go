package certs

import (
	"crypto/x509"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

// View builds the enriched certificate view attached to an http measurement
// result from the peer certificate presented during the TLS handshake and
// the verification error (if any) x509 produced for it.
func View(cert *x509.Certificate, verifyErr error) types.TLSCertificateView {
	view := types.TLSCertificateView{
		Authorized: verifyErr == nil,
		CreatedAt:  cert.NotBefore,
		ExpiresAt:  cert.NotAfter,
		Issuer: types.CertName{
			CN: cert.Issuer.CommonName,
			O:  firstOrEmpty(cert.Issuer.Organization),
			C:  firstOrEmpty(cert.Issuer.Country),
		},
		Subject: types.TLSSubject{
			CertName: types.CertName{
				CN: cert.Subject.CommonName,
				O:  firstOrEmpty(cert.Subject.Organization),
				C:  firstOrEmpty(cert.Subject.Country),
			},
			Alt: subjectAltNames(cert),
		},
	}
	if verifyErr != nil {
		view.AuthorizationError = verifyErr.Error()
	}
	return view
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func subjectAltNames(cert *x509.Certificate) string {
	names := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses))
	for _, dns := range cert.DNSNames {
		names = append(names, "DNS:"+dns)
	}
	for _, ip := range cert.IPAddresses {
		names = append(names, "IP Address:"+ip.String())
	}
	if len(names) == 0 {
		return ""
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
