// Command approvalkeys manages an agent's Ed25519 approval-signing
// keyring: initial creation, passphrase unlock probing, and rotation.
//
// Generalized from the teacher's cmd/keytest, a throwaway bubbletea
// keybinding probe, into a real key-management entry point — the keyring
// this command maintains is the same file internal/bootstrap loads on
// every cmd/agentworker and cmd/agentctl startup.
//
// Usage:
//
//	approvalkeys create  -agent myagent
//	approvalkeys status  -agent myagent
//	approvalkeys unlock  -agent myagent
//	approvalkeys rotate  -agent myagent
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autopoiesis-dev/agentcore/internal/approval"
	"github.com/autopoiesis-dev/agentcore/internal/sandbox"
	"github.com/autopoiesis-dev/agentcore/internal/workspace"
)

const keyringFileName = "keyring.json"

func main() {
	if sandbox.MaybeReexec() {
		return
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	agent := fs.String("agent", "", "agent id (default: AUTOPOIESIS_AGENT env or \"default\")")
	home := fs.String("home", "", "workspace home root (default: AUTOPOIESIS_HOME env)")
	passphrase := fs.String("passphrase", "", "keyring passphrase (default: AUTOPOIESIS_KEY_PASSPHRASE env)")
	fs.Parse(os.Args[2:])

	if *passphrase == "" {
		*passphrase = os.Getenv("AUTOPOIESIS_KEY_PASSPHRASE")
	}

	paths, err := workspace.Resolve(*home, *agent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	if err := paths.MkdirAll(); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	keyringPath := filepath.Join(paths.KeysDir, keyringFileName)

	switch os.Args[1] {
	case "create":
		runCreate(keyringPath, *passphrase)
	case "status":
		runStatus(keyringPath)
	case "unlock":
		runUnlock(keyringPath, *passphrase)
	case "rotate":
		runRotate(keyringPath, *passphrase)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: approvalkeys <create|status|unlock|rotate> [flags]")
}

func runCreate(keyringPath, passphrase string) {
	if _, err := os.Stat(keyringPath); err == nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: keyring already exists at %s\n", keyringPath)
		os.Exit(1)
	}
	km := approval.NewKeyManager()
	rec, err := km.CreateInitialKey(passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	if err := km.SaveKeyring(keyringPath); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created key %s at %s\n", rec.KeyID, keyringPath)
}

func runStatus(keyringPath string) {
	km := approval.NewKeyManager()
	if err := km.LoadKeyring(keyringPath); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("current key: %s\nlocked: %v\n", km.CurrentKeyID(), km.Locked())
}

func runUnlock(keyringPath, passphrase string) {
	km := approval.NewKeyManager()
	if err := km.LoadKeyring(keyringPath); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	if err := km.Unlock(passphrase); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runRotate(keyringPath, passphrase string) {
	km := approval.NewKeyManager()
	if err := km.LoadKeyring(keyringPath); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	if err := km.Unlock(passphrase); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	rec, err := km.Rotate(passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	if err := km.SaveKeyring(keyringPath); err != nil {
		fmt.Fprintf(os.Stderr, "approvalkeys: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rotated to key %s\n", rec.KeyID)
}
