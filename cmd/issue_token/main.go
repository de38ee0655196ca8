// issue_token genera un Bearer token para operar la API a nombre de un emisor.
// La API no administra usuarios: el token lo emite quien comparte JWT_SECRET.
//
// Uso: go run ./cmd/issue_token <rut-emisor> [usuario]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jhoicas/dte-api/pkg/config"
	"github.com/jhoicas/dte-api/pkg/jwt"
	"github.com/jhoicas/dte-api/pkg/sii"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "uso: issue_token <rut-emisor> [usuario]")
		os.Exit(2)
	}
	issuerRUT := strings.ToUpper(strings.TrimSpace(os.Args[1]))
	if _, _, err := sii.SplitRUT(issuerRUT); err != nil {
		fmt.Fprintf(os.Stderr, "RUT inválido: %v\n", err)
		os.Exit(2)
	}
	user := "cli"
	if len(os.Args) > 2 {
		user = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	tok, err := jwt.Generate(cfg.JWT.Secret, user, issuerRUT, cfg.JWT.Issuer, cfg.JWT.Expiration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generar token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
