// Command adminctl is the admin consumer's operator CLI: it inspects
// and repairs the on-disk WatermarkStore a running (or stopped)
// consumer process uses, operating directly on a local credential file
// rather than through a running server's RPC surface.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/ziyaddin/venice/auth"
	"github.com/ziyaddin/venice/internal/watermark"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)
	inspectDir := inspectCmd.String("watermark-dir", "./data/watermark", "Path to the watermark store directory.")
	inspectCluster := inspectCmd.String("cluster", "", "Cluster name to inspect.")
	inspectStore := inspectCmd.String("store", "", "Store name to inspect the execution id for (optional; omit to inspect only the offset).")

	checkpointCmd := flag.NewFlagSet("checkpoint", flag.ExitOnError)
	checkpointDir := checkpointCmd.String("watermark-dir", "./data/watermark", "Path to the watermark store directory.")
	checkpointCluster := checkpointCmd.String("cluster", "", "Cluster name to checkpoint.")
	checkpointOffset := checkpointCmd.Uint64("offset", 0, "Offset to force-persist as the checkpoint.")

	resetCmd := flag.NewFlagSet("reset-execid", flag.ExitOnError)
	resetDir := resetCmd.String("watermark-dir", "./data/watermark", "Path to the watermark store directory.")
	resetCluster := resetCmd.String("cluster", "", "Cluster name to reset.")
	resetUserFile := resetCmd.String("user-file", "operators.db", "Path to the operator credential file.")
	resetUsername := resetCmd.String("username", "", "Operator username to authenticate as.")

	switch os.Args[1] {
	case "inspect":
		inspectCmd.Parse(os.Args[2:])
		handleInspect(inspectCmd, *inspectDir, *inspectCluster, *inspectStore)
	case "checkpoint":
		checkpointCmd.Parse(os.Args[2:])
		handleCheckpoint(checkpointCmd, *checkpointDir, *checkpointCluster, *checkpointOffset)
	case "reset-execid":
		resetCmd.Parse(os.Args[2:])
		handleReset(resetCmd, *resetDir, *resetCluster, *resetUserFile, *resetUsername)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: adminctl <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  inspect      - Print the persisted offset and execution id(s) for a cluster")
	fmt.Println("  checkpoint   - Force-persist an offset for a cluster")
	fmt.Println("  reset-execid - Clear a cluster's persisted offset and execution ids (operator-gated)")
	fmt.Println("\nUse 'adminctl <command> -h' for more information on a specific command.")
}

func handleInspect(fs *flag.FlagSet, dir, cluster, store string) {
	if cluster == "" {
		fmt.Println("Error: -cluster is required.")
		fs.Usage()
		os.Exit(1)
	}

	wm, err := watermark.NewFileStore(dir)
	if err != nil {
		fmt.Printf("Error opening watermark store: %v\n", err)
		os.Exit(1)
	}

	offset, found, err := wm.ReadOffset(cluster)
	if err != nil {
		fmt.Printf("Error reading offset: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Printf("cluster %q: no checkpoint persisted yet\n", cluster)
	} else {
		fmt.Printf("cluster %q: offset=%d\n", cluster, offset)
	}

	if store != "" {
		execID, found, err := wm.ReadExecutionID(cluster, store)
		if err != nil {
			fmt.Printf("Error reading execution id: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Printf("store %q: no execution id persisted yet\n", store)
		} else {
			fmt.Printf("store %q: executionId=%d\n", store, execID)
		}
	}
}

func handleCheckpoint(fs *flag.FlagSet, dir, cluster string, offset uint64) {
	if cluster == "" {
		fmt.Println("Error: -cluster is required.")
		fs.Usage()
		os.Exit(1)
	}

	wm, err := watermark.NewFileStore(dir)
	if err != nil {
		fmt.Printf("Error opening watermark store: %v\n", err)
		os.Exit(1)
	}

	if err := wm.WriteOffset(cluster, offset); err != nil {
		fmt.Printf("Error forcing checkpoint: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("cluster %q: checkpoint forced to offset %d\n", cluster, offset)
}

func handleReset(fs *flag.FlagSet, dir, cluster, userFile, username string) {
	if cluster == "" {
		fmt.Println("Error: -cluster is required.")
		fs.Usage()
		os.Exit(1)
	}
	if username == "" {
		fmt.Println("Error: -username is required.")
		fs.Usage()
		os.Exit(1)
	}

	authenticator, err := auth.NewAuthenticator(userFile, discardLogger())
	if err != nil {
		fmt.Printf("Error loading operator credential file: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("Operator password: ")
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		os.Exit(1)
	}

	if err := authenticator.AuthenticateUserPass(username, string(bytePassword)); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		os.Exit(1)
	}

	wm, err := watermark.NewFileStore(dir)
	if err != nil {
		fmt.Printf("Error opening watermark store: %v\n", err)
		os.Exit(1)
	}

	if err := wm.Reset(cluster); err != nil {
		fmt.Printf("Error resetting watermark: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("cluster %q: persisted offset and all execution ids cleared\n", cluster)
}
