package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"tokenpools/internal/proof"
	"tokenpools/internal/scenario"
	"tokenpools/internal/storage"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestQuoteSignAndVerify(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	account := "0xa100000000000000000000000000000000000001"

	sig, err := execute(t, "quote", "sign", "--key", "0x"+testKey, "--account", account, "--amount", "5000")
	require.NoError(t, err)
	sig = strings.TrimSpace(sig)
	require.Len(t, sig, 132)

	out, err := execute(t, "quote", "verify", "--signer", signer, "--signature", sig, "--account", account, "--amount", "5000")
	require.NoError(t, err)
	require.Contains(t, out, "ok")

	_, err = execute(t, "quote", "verify", "--signer", signer, "--signature", sig, "--account", account, "--amount", "5001")
	require.Error(t, err)
	_, err = execute(t, "quote", "sign", "--key", "zz", "--account", account, "--amount", "1")
	require.Error(t, err)
}

func TestWhitelistCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "whitelist.csv")
	out := filepath.Join(dir, "out", "proofs.json")
	csv := "pid,address,amount\n0,0x1000000000000000000000000000000000000001,100\n0,0x2000000000000000000000000000000000000002,250\n"
	require.NoError(t, os.WriteFile(in, []byte(csv), 0o644))

	root, err := execute(t, "whitelist", "--in", in, "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var file proof.WhitelistFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Equal(t, strings.TrimSpace(root), file.Root.Hex())
	require.Len(t, file.Proofs, 2)
	require.NoError(t, file.Verify())
}

func TestVestingCommand(t *testing.T) {
	out, err := execute(t, "vesting", "--total", "10000", "--cliff", "5d", "--tranches", "50:10d,25:10d,25:20d", "--step", "5d")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// header, then 0d..45d every 5 days
	require.Len(t, lines, 11)
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), " 0"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[4]), " 5000"))
	require.True(t, strings.HasSuffix(strings.TrimSpace(lines[10]), " 10000"))

	_, err = execute(t, "vesting", "--total", "1", "--tranches", "50:1d")
	require.Error(t, err)
}

func TestSimulateThenInspect(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")
	snapshot := filepath.Join(dir, "snapshot.json")

	out, err := execute(t, "simulate",
		"--scenario", filepath.Join("..", "..", "internal", "scenario", "testdata", "lifecycle.yaml"),
		"--events", events,
		"--snapshot", snapshot,
	)
	require.NoError(t, err)

	var rep scenario.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Pools, 3)

	written, err := storage.ReadEvents(events)
	require.NoError(t, err)
	require.NotEmpty(t, written)

	table, err := execute(t, "inspect", "--snapshot", snapshot)
	require.NoError(t, err)
	require.Contains(t, table, "sale")
	require.Contains(t, table, "finalized")
	require.Contains(t, table, "wallet")

	_, err = execute(t, "inspect", "--snapshot", filepath.Join(dir, "missing.json"))
	require.ErrorContains(t, err, "no snapshot")
}
