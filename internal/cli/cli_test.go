package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"reward-farming/internal/version"
)

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("amount", "1.5", 6)
	require.NoError(t, err)
	require.EqualValues(t, 1_500_000, v)

	v, err = parseAmount("amount", "18446744073709551615", 0)
	require.NoError(t, err)
	require.Equal(t, ^uint64(0), v)

	for _, bad := range []string{"", "0", "-1", "0.0000001", "18446744073709551616", "abc"} {
		_, err := parseAmount("amount", bad, 6)
		require.Error(t, err, bad)
	}
}

func TestParseHash(t *testing.T) {
	want := common.HexToHash("0xabc")
	got, err := parseHash("pool", want.Hex())
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = parseHash("pool", strings.TrimPrefix(want.Hex(), "0x"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	for _, bad := range []string{"", "0x1234", "0x" + strings.Repeat("zz", 32)} {
		_, err := parseHash("pool", bad)
		require.Error(t, err, bad)
	}
}

func TestParseAddress(t *testing.T) {
	_, err := parseAddress("caller", "")
	require.ErrorContains(t, err, "--caller is required")
	_, err = parseAddress("caller", "0x12")
	require.Error(t, err)

	addr, err := parseOptionalAddress("owner", "")
	require.NoError(t, err)
	require.Equal(t, common.Address{}, addr)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "version: "+version.Version)
}

func TestCommandsOnMemoryBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  backend: memory\nlogging:\n  level: error\n"), 0o600))
	t.Cleanup(func() {
		appHandle = nil
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"--config", path}, args...))
		require.NoError(t, rootCmd.Execute(), strings.Join(args, " "))
		return out.String()
	}

	authority := "0x00000000000000000000000000000000000000a1"
	out := run("pool", "init",
		"--authority", authority,
		"--staking-asset", "0x0000000000000000000000000000000000005a4e",
		"--reward-a", "0x000000000000000000000000000000000000aaaa",
		"--duration", "3600")
	require.Contains(t, out, "initialized")

	out = run("simulate", "--duration", "100", "--stakes", "100,300", "--fund-a", "1000", "--steps", "4")
	require.Contains(t, out, "remaining")
	require.Contains(t, out, "A=750")
}
