package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/go-mdoc/mdocverify/pkg/cbor"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.cbor>",
		Short: "Print the structure of a CBOR file without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
	return cmd
}

func runInspect(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fail("reading %s: %w", path, err)
	}

	var v interface{}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return fail("decoding %s: %w", path, err)
	}

	fmt.Printf("%s: %d bytes\n", path, len(raw))
	printNode(v, 0)
	return nil
}

func printNode(v interface{}, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	switch t := v.(type) {
	case map[interface{}]interface{}:
		keys := make([]string, 0, len(t))
		byKey := map[string]interface{}{}
		for k, val := range t {
			s := fmt.Sprintf("%v", k)
			keys = append(keys, s)
			byKey[s] = val
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s%s:\n", indent, k)
			printNode(byKey[k], depth+1)
		}
	case []interface{}:
		for i, item := range t {
			fmt.Printf("%s[%d]:\n", indent, i)
			printNode(item, depth+1)
		}
	case []byte:
		n := len(t)
		if n > 16 {
			fmt.Printf("%s%x... (%d bytes)\n", indent, t[:16], n)
		} else {
			fmt.Printf("%s%x (%d bytes)\n", indent, t, n)
		}
	case cbor.Tag:
		fmt.Printf("%stag(%d):\n", indent, t.Number)
		printNode(t.Content, depth+1)
	default:
		fmt.Printf("%s%v\n", indent, t)
	}
}
