// Package cli wires the mdocverify command tree together.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-mdoc/mdocverify/pkg/config"
	"github.com/go-mdoc/mdocverify/pkg/logging"
)

// NewRootCommand builds the mdocverify root command.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "mdocverify",
		Short:         "Verify ISO/IEC 18013-5 mobile documents",
		Long:          "mdocverify checks the issuer and device signatures, digest integrity, and validity window of mobile documents (mdocs).",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVerifyIssuerCommand())
	root.AddCommand(newVerifyDeviceCommand())
	root.AddCommand(newVerifyBatchCommand())
	root.AddCommand(newInspectCommand())

	return root
}

func newLogger(name string) *logging.Log {
	cfg, err := config.New()
	production := false
	if err == nil {
		production = cfg.Production
	}
	log, err := logging.New(name, production)
	if err != nil {
		return logging.NewSimple(name)
	}
	return log
}

func fail(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
