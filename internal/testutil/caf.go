// Package testutil genera CAF, llaves y certificados de prueba para los tests del motor DTE.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"
)

// Datos de prueba comunes.
const (
	IssuerRUT   = "76000000-1"
	ReceiverRUT = "66666666-6"
	SenderRUT   = "11111111-1"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// Key devuelve una llave RSA de 1024 bits compartida por todo el paquete de tests.
func Key(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, keyErr = rsa.GenerateKey(rand.Reader, 1024)
	})
	if keyErr != nil {
		t.Fatalf("generar llave RSA: %v", keyErr)
	}
	return key
}

// PrivateKeyPEM serializa la llave como "RSA PRIVATE KEY" (PKCS#1), igual que RSASK en un CAF.
func PrivateKeyPEM(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

// CAFOptions parámetros del CAF generado.
type CAFOptions struct {
	IssuerRUT    string
	DocumentType int
	From, To     int64
}

// CAF genera un XML de autorización con la forma de los que entrega el SII.
// La firma FRMA es ficticia.
func CAF(t testing.TB, opts CAFOptions) []byte {
	t.Helper()
	if opts.IssuerRUT == "" {
		opts.IssuerRUT = IssuerRUT
	}
	if opts.DocumentType == 0 {
		opts.DocumentType = 33
	}
	k := Key(t)
	modulus := base64.StdEncoding.EncodeToString(k.N.Bytes())
	exponent := base64.StdEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes())
	frma := base64.StdEncoding.EncodeToString([]byte("firma-de-prueba"))

	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="ISO-8859-1"?>
<AUTORIZACION>
  <CAF version="1.0">
    <DA>
      <RE>%s</RE>
      <RS>EMPRESA DE PRUEBA SPA</RS>
      <TD>%d</TD>
      <RNG><D>%d</D><H>%d</H></RNG>
      <FA>2024-01-15</FA>
      <RSAPK><M>%s</M><E>%s</E></RSAPK>
      <IDK>100</IDK>
    </DA>
    <FRMA algoritmo="SHA1withRSA">%s</FRMA>
  </CAF>
  <RSASK>%s</RSASK>
</AUTORIZACION>
`, opts.IssuerRUT, opts.DocumentType, opts.From, opts.To, modulus, exponent, frma, PrivateKeyPEM(k)))
}

// Certificate genera un certificado autofirmado con la llave compartida, para firmar sobres.
func Certificate(t testing.TB) tls.Certificate {
	t.Helper()
	k := Key(t)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Firmante de Prueba", SerialNumber: SenderRUT},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &k.PublicKey, k)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsear certificado: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: k, Leaf: leaf}
}
