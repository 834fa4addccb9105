package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestSyncCommandFlags(t *testing.T) {
	t.Run("repo-url and local-path are required", func(t *testing.T) {
		for _, name := range []string{"repo-url", "local-path"} {
			f := syncCmd.Flags().Lookup(name)
			if f == nil {
				t.Fatalf("expected --%s flag to be registered", name)
			}
			if got := f.Annotations[cobra.BashCompOneRequiredFlag]; len(got) != 1 || got[0] != "true" {
				t.Errorf("expected --%s flag to be marked required, annotations = %v", name, f.Annotations)
			}
		}
	})

	t.Run("dry-run defaults to false", func(t *testing.T) {
		f := syncCmd.Flags().Lookup("dry-run")
		if f == nil {
			t.Fatal("expected --dry-run flag to be registered")
		}
		if f.DefValue != "false" {
			t.Errorf("dry-run default = %q; want false", f.DefValue)
		}
	})

	t.Run("metrics-addr defaults to empty", func(t *testing.T) {
		f := syncCmd.Flags().Lookup("metrics-addr")
		if f == nil {
			t.Fatal("expected --metrics-addr flag to be registered")
		}
		if f.DefValue != "" {
			t.Errorf("metrics-addr default = %q; want empty", f.DefValue)
		}
	})
}
