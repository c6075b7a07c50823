package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/config"
	xcrypto "github.com/go-mdoc/mdocverify/pkg/crypto"
	"github.com/go-mdoc/mdocverify/pkg/mdl"
	"github.com/go-mdoc/mdocverify/pkg/present"
)

func newVerifyBatchCommand() *cobra.Command {
	var trustRootsFile string
	var clockSkew time.Duration

	cmd := &cobra.Command{
		Use:   "verify-batch <documents.cbor>",
		Short: "Verify issuer signatures across a CBOR array of Documents, reporting per-document results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyBatch(args[0], trustRootsFile, clockSkew)
		},
	}

	cmd.Flags().StringVar(&trustRootsFile, "trust-roots", "", "PEM bundle of trusted root certificates (default: accept self-signed leaves)")
	cmd.Flags().DurationVar(&clockSkew, "clock-skew", 0, "clock skew tolerance (default: from MDOCVERIFY_CLOCK_SKEW or 60s)")

	return cmd
}

func runVerifyBatch(path, trustRootsFile string, clockSkewFlag time.Duration) error {
	log := newLogger("verify-batch")

	raw, err := os.ReadFile(path)
	if err != nil {
		return fail("reading %s: %w", path, err)
	}

	var items cbor.Array
	if err := cbor.Unmarshal(raw, &items); err != nil {
		return fail("decoding document array: %w", err)
	}

	cfg, _ := config.New()

	if trustRootsFile == "" && cfg != nil {
		trustRootsFile = cfg.TrustRootsFile
	}

	chain := xcrypto.NewChainValidator()
	if trustRootsFile != "" {
		pemBytes, err := os.ReadFile(trustRootsFile)
		if err != nil {
			return fail("reading %s: %w", trustRootsFile, err)
		}
		if err := chain.LoadTrustedRootsPEM(pemBytes); err != nil {
			return fail("loading trust roots: %w", err)
		}
		chain.AllowSelfSigned = false
	}

	clockSkew := clockSkewFlag
	if clockSkew == 0 {
		if cfg != nil && cfg.ClockSkew != 0 {
			clockSkew = cfg.ClockSkew
		} else {
			clockSkew = mdl.DefaultClockSkew
		}
	}
	chain.ClockSkew = clockSkew

	verifier := mdl.NewIssuerVerifier(chain)
	result := present.VerifyIssuerSignedDocuments(verifier, items.Items, time.Now(), clockSkew)

	log.Info("batch verification complete", "succeeded", len(result.Documents), "failed", len(result.DocumentErrors))

	type batchEntry struct {
		DocType string `json:"docType"`
		Status  string `json:"status"`
		Code    int    `json:"code,omitempty"`
		Error   string `json:"error,omitempty"`
	}
	report := make([]batchEntry, 0, len(result.Documents)+len(result.DocumentErrors))
	for _, d := range result.Documents {
		report = append(report, batchEntry{DocType: d.MSO.DocType, Status: "verified"})
	}
	for _, e := range result.DocumentErrors {
		report = append(report, batchEntry{DocType: e.DocType, Status: "failed", Code: int(e.Code), Error: e.Err.Error()})
	}

	return printJSON(report)
}
