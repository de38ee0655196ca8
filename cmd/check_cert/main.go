// check_cert diagnostica el certificado de firma configurado y, opcionalmente, un CAF.
//
// Uso: go run ./cmd/check_cert [ruta/CAF.xml]
// Lee SII_CERT_PATH, SII_CERT_KEY_PATH y SII_CERT_PASSWORD igual que la API.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/ted"
	"github.com/jhoicas/dte-api/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ok := checkCertificate(cfg.SII)
	if len(os.Args) > 1 {
		ok = checkCAF(os.Args[1]) && ok
	}
	if !ok {
		os.Exit(1)
	}
}

func checkCertificate(c config.SIIConfig) bool {
	fmt.Println("🔍 DIAGNÓSTICO DE CERTIFICADO SII")
	fmt.Println("----------------------------------")
	if c.CertPath == "" {
		fmt.Println("⚠️  SII_CERT_PATH vacío: los DTE y EnvioDTE se enviarán sin XMLDSig.")
		return true
	}
	fmt.Printf("📂 Leyendo: %s\n", c.CertPath)

	cert, err := signer.LoadCertificate(c.CertPath, c.CertKeyPath, c.CertPassword)
	if err != nil {
		fmt.Println("\n❌ ERROR AL CARGAR:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		fmt.Printf("\n❌ Certificado X.509 ilegible: %v\n", err)
		return false
	}
	if _, isRSA := cert.PrivateKey.(*rsa.PrivateKey); !isRSA {
		fmt.Println("\n❌ La llave privada no es RSA: el SII exige RSA-SHA1.")
		return false
	}

	fmt.Printf("✅ Sujeto: %s\n", leaf.Subject.String())
	fmt.Printf("   Emisor: %s\n", leaf.Issuer.String())
	fmt.Printf("   Vigencia: %s a %s\n", leaf.NotBefore.Format("2006-01-02"), leaf.NotAfter.Format("2006-01-02"))
	if time.Now().After(leaf.NotAfter) {
		fmt.Println("\n❌ El certificado está vencido.")
		return false
	}
	return true
}

func checkCAF(path string) bool {
	fmt.Println("\n🔍 DIAGNÓSTICO DE CAF")
	fmt.Println("----------------------------------")
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("❌ No se pudo leer %s: %v\n", path, err)
		return false
	}
	r, err := domsii.ParseCAF(data)
	if err != nil {
		fmt.Printf("❌ CAF inválido: %v\n", err)
		return false
	}
	fmt.Printf("✅ Emisor %s, tipo %d, folios %d a %d (%d)\n", r.IssuerRUT, r.DocumentType, r.FolioStart, r.FolioEnd, r.Size())

	priv, err := ted.ParsePrivateKey(r.PrivateKey)
	if err != nil {
		fmt.Printf("❌ RSASK: %v\n", err)
		return false
	}
	if r.PublicKey.Modulus == "" {
		fmt.Println("⚠️  El CAF no trae RSAPK: no se puede comparar con RSASK.")
		return true
	}
	pub, err := ted.PublicKeyFromCAF(r.PublicKey)
	if err != nil {
		fmt.Printf("❌ RSAPK: %v\n", err)
		return false
	}
	if !pub.Equal(&priv.PublicKey) {
		fmt.Println("❌ RSASK no corresponde a RSAPK: los timbres no se podrán verificar.")
		return false
	}
	fmt.Println("✅ RSASK corresponde a RSAPK.")
	return true
}
