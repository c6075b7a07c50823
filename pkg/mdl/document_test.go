package mdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
)

// DecodeDocument must thread its own path down into DecodeIssuerSigned, so
// a malformed nested field is reported rooted at "Document.issuerSigned...."
// rather than a bare "IssuerSigned....".
func TestDecodeDocumentIssuerSignedPathIsRooted(t *testing.T) {
	issuerSignedRaw, err := cbor.Marshal(map[string]interface{}{
		"nameSpaces": "not-a-map",
		"issuerAuth": "not-a-tag",
	})
	require.NoError(t, err)

	docRaw, err := cbor.Marshal(map[string]interface{}{
		"docType":      "org.iso.18013.5.1.mDL",
		"issuerSigned": issuerSignedRaw,
	})
	require.NoError(t, err)

	_, issues := DecodeDocument(docRaw)
	require.False(t, issues.OK())
	msg := issues.Error()
	assert.Contains(t, msg, "Document.issuerSigned.nameSpaces")
	assert.Contains(t, msg, "Document.issuerSigned.issuerAuth")
	assert.NotContains(t, msg, "IssuerSigned.nameSpaces")
}
