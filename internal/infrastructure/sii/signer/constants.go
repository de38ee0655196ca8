// Constantes XMLDSig para la firma de DTE y EnvioDTE (formato SII).

package signer

// Namespace y algoritmos XMLDSig aceptados por el SII.
const (
	NamespaceDS = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N     = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1  = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1     = "http://www.w3.org/2000/09/xmldsig#sha1"
)
