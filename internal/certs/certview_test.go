package certs

import (
	"errors"
	"testing"
)

func TestViewAuthorized(t *testing.T) {
	caCertPEM, caKey := mustCreateCA(t)
	serverCertPEM, _ := mustCreateServerCert(t, caCertPEM, caKey)

	cert, err := parseCert(serverCertPEM)
	if err != nil {
		t.Fatalf("parseCert: %v", err)
	}

	view := View(cert, nil)
	if !view.Authorized {
		t.Fatalf("expected authorized view")
	}
	if view.AuthorizationError != "" {
		t.Fatalf("expected no authorization error, got %q", view.AuthorizationError)
	}
	if view.Subject.CN != "127.0.0.1" {
		t.Fatalf("unexpected subject CN: %q", view.Subject.CN)
	}
	if view.Subject.Alt != "DNS:127.0.0.1, IP Address:127.0.0.1" {
		t.Fatalf("unexpected subject alt: %q", view.Subject.Alt)
	}
	if view.CreatedAt.After(view.ExpiresAt) {
		t.Fatalf("expected createdAt before expiresAt")
	}
}

func TestViewUnauthorized(t *testing.T) {
	caCertPEM, caKey := mustCreateCA(t)
	serverCertPEM, _ := mustCreateServerCert(t, caCertPEM, caKey)

	cert, err := parseCert(serverCertPEM)
	if err != nil {
		t.Fatalf("parseCert: %v", err)
	}

	view := View(cert, errors.New("x509: certificate signed by unknown authority"))
	if view.Authorized {
		t.Fatalf("expected unauthorized view")
	}
	if view.AuthorizationError == "" {
		t.Fatalf("expected authorization error to be populated")
	}
}

func TestViewNoAltNames(t *testing.T) {
	caCertPEM, caKey := mustCreateCA(t)
	clientCertPEM, _ := mustCreateClientCert(t, caCertPEM, caKey)

	cert, err := parseCert(clientCertPEM)
	if err != nil {
		t.Fatalf("parseCert: %v", err)
	}

	view := View(cert, nil)
	if view.Subject.Alt != "" {
		t.Fatalf("expected empty alt names, got %q", view.Subject.Alt)
	}
}
