// Package present implements the batch issuer-verification entry point
// (spec §4.8): run issuer verification across a sequence of documents
// without letting one failure abort the rest.
package present

import (
	"fmt"
	"time"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/mdl"
	"github.com/go-mdoc/mdocverify/pkg/mdlerrors"
)

// DocumentError pairs a docType with the code its verification failed
// with, the shape spec §4.8 asks the error list to carry.
type DocumentError struct {
	DocType string
	Code    mdlerrors.Code
	Err     error
}

// BatchResult is the outcome of VerifyIssuerSignedDocuments: validated
// documents and a parallel list of per-document failures, each kept in
// original input order (spec §5: ordering must match input regardless of
// execution order). Positions within either list are not input indices.
type BatchResult struct {
	Documents      []*mdl.IssuerVerifyResult
	DocumentErrors []DocumentError
}

// VerifyIssuerSignedDocuments decodes each of documents as a full Document
// and runs issuer verification (spec §4.6) over its IssuerSigned, collecting
// successes and failures independently. It never aborts the batch on a
// single failure — partial success is the normal outcome (spec §4.8).
func VerifyIssuerSignedDocuments(verifier *mdl.IssuerVerifier, documents []cbor.RawMessage, now time.Time, clockSkew time.Duration) BatchResult {
	var result BatchResult
	for _, raw := range documents {
		doc, issues := mdl.DecodeDocument(raw)
		if !issues.OK() {
			result.DocumentErrors = append(result.DocumentErrors, DocumentError{
				Code: mdlerrors.CborValidationError,
				Err:  mdlerrors.New(mdlerrors.CborValidationError, issues),
			})
			continue
		}

		verified, err := verifier.VerifyIssuerSignedDecoded(doc.IssuerSigned, now, clockSkew)
		if err != nil {
			code, _ := mdlerrors.CodeOf(err)
			result.DocumentErrors = append(result.DocumentErrors, DocumentError{DocType: doc.DocType, Code: code, Err: err})
			continue
		}

		// Document invariant (spec §3): docType must match the one
		// encoded inside the MSO.
		if verified.MSO.DocType != doc.DocType {
			err := mdlerrors.New(mdlerrors.DocTypeMismatch,
				fmt.Errorf("document docType %q does not match MSO docType %q", doc.DocType, verified.MSO.DocType))
			result.DocumentErrors = append(result.DocumentErrors, DocumentError{DocType: doc.DocType, Code: mdlerrors.DocTypeMismatch, Err: err})
			continue
		}

		result.Documents = append(result.Documents, verified)
	}
	return result
}
