package entity

import "time"

// RSAPublicKey llave pública del CAF, tal como viene en <RSAPK> (Base64).
type RSAPublicKey struct {
	Modulus  string // <M>
	Exponent string // <E>
}

// AuthorizationRange representa un Código de Autorización de Folios (CAF) emitido por el SII.
// Autoriza al emisor a usar los folios [FolioStart, FolioEnd] para un tipo de DTE.
type AuthorizationRange struct {
	IssuerRUT    string
	DocumentType int
	FolioStart   int64
	FolioEnd     int64
	AuthorizedAt time.Time // <FA>
	KeyID        int64     // <IDK>
	PublicKey    RSAPublicKey
	PrivateKey   string // <RSASK> en PEM; no se expone fuera del libro de folios
	Fragment     string // elemento <CAF> sin espacios, se embebe tal cual en cada TED
}

// Size cantidad de folios autorizados por el rango.
func (r AuthorizationRange) Size() int64 {
	return r.FolioEnd - r.FolioStart + 1
}

// Contains indica si el folio pertenece al rango.
func (r AuthorizationRange) Contains(folio int64) bool {
	return folio >= r.FolioStart && folio <= r.FolioEnd
}

// Overlaps indica si dos rangos del mismo emisor y tipo comparten algún folio.
func (r AuthorizationRange) Overlaps(o AuthorizationRange) bool {
	if r.IssuerRUT != o.IssuerRUT || r.DocumentType != o.DocumentType {
		return false
	}
	return r.FolioStart <= o.FolioEnd && o.FolioStart <= r.FolioEnd
}
