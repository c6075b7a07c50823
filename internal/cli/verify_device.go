package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
	"github.com/go-mdoc/mdocverify/pkg/config"
	xcrypto "github.com/go-mdoc/mdocverify/pkg/crypto"
	"github.com/go-mdoc/mdocverify/pkg/mdl"
)

func newVerifyDeviceCommand() *cobra.Command {
	var sessionTranscriptFile string
	var trustRootsFile string
	var clockSkew time.Duration

	cmd := &cobra.Command{
		Use:   "verify-device <document.cbor>",
		Short: "Verify a Document's issuer chain and device signature against a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyDevice(args[0], sessionTranscriptFile, trustRootsFile, clockSkew)
		},
	}

	cmd.Flags().StringVar(&sessionTranscriptFile, "session-transcript", "", "file containing the CBOR-encoded SessionTranscript (required)")
	cmd.Flags().StringVar(&trustRootsFile, "trust-roots", "", "PEM bundle of trusted root certificates (default: accept self-signed leaves)")
	cmd.Flags().DurationVar(&clockSkew, "clock-skew", 0, "clock skew tolerance (default: from MDOCVERIFY_CLOCK_SKEW or 60s)")
	_ = cmd.MarkFlagRequired("session-transcript")

	return cmd
}

func runVerifyDevice(docPath, transcriptPath, trustRootsFile string, clockSkewFlag time.Duration) error {
	log := newLogger("verify-device")

	docBytes, err := os.ReadFile(docPath)
	if err != nil {
		return fail("reading %s: %w", docPath, err)
	}
	transcriptBytes, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fail("reading %s: %w", transcriptPath, err)
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

	verifier := mdl.NewDeviceVerifier(mdl.NewIssuerVerifier(chain))
	transcript := mdl.SessionTranscript{Raw: cbor.RawMessage(transcriptBytes)}
	docRaw := cbor.RawMessage(docBytes)
	if err := verifier.VerifyDeviceSignedDocument(docRaw, transcript, time.Now(), clockSkew); err != nil {
		log.Error(err, "device verification failed")
		return fail("%s", err)
	}

	doc, _ := mdl.DecodeDocument(docRaw)
	log.Info("device verification succeeded", "docType", doc.DocType)
	return printJSON(map[string]string{"docType": doc.DocType, "status": "verified"})
}
