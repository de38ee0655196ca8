// Package sii: interfaz para la firma XMLDSig de documentos y sobres (DTE / EnvioDTE).

package sii

import "crypto/tls"

// Sealer firma un fragmento XML con el certificado del contribuyente.
type Sealer interface {
	// Seal calcula la firma enveloped sobre el elemento con atributo ID=referenceID
	// y devuelve el XML con <Signature> insertado antes del cierre del elemento raíz.
	// Los bytes previos a la firma no se re-serializan.
	Seal(xmlDoc, referenceID string, cert tls.Certificate) (string, error)
}
