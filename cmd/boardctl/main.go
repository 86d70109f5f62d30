// boardctl exercises the client library from the command line: create
// or join a room, draw a stroke, attach an image, watch the live feed,
// or clear the board.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"duoboard/internal/board"
	"duoboard/internal/client"
	"duoboard/internal/localstore"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: boardctl [-server URL] <command> [args]

Commands:
  create <name>                      create a room, print its code
  join <code>                        join an existing room
  watch <code>                       stream live snapshots to stdout
  draw <code> <path> <color> <width> commit a stroke, e.g. "M 10 10 L 50 50"
  image <code> <file>                upload a file and place it on the board
  clear <code>                       clear the whole board
  signout                            forget the cached identity
`)
	os.Exit(2)
}

func main() {
	server := flag.String("server", "http://localhost:8080", "duoboard server base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	flags, err := openFlags()
	if err != nil {
		log.Printf("Local cache unavailable (%v), continuing without it", err)
	}
	if flags != nil {
		defer flags.Close()
	}

	c := client.New(*server, flags)
	ctx := context.Background()

	switch args[0] {
	case "create":
		if len(args) != 2 {
			usage()
		}
		code := c.GenerateCode()
		if err := c.CreateRoom(ctx, code, args[1]); err != nil {
			log.Fatalf("Create failed: %v", err)
		}
		fmt.Println(code)

	case "join":
		if len(args) != 2 {
			usage()
		}
		code := strings.ToUpper(args[1])
		if !board.ValidCode(code) {
			log.Fatalf("Room codes are 6 characters A-Z0-9")
		}
		joined, err := c.JoinRoom(ctx, code)
		if err != nil {
			log.Fatalf("Join failed: %v", err)
		}
		if !joined {
			log.Fatalf("Room %s not found", code)
		}
		fmt.Printf("Joined %s\n", code)

	case "watch":
		if len(args) != 2 {
			usage()
		}
		watch(ctx, c, strings.ToUpper(args[1]))

	case "draw":
		if len(args) != 5 {
			usage()
		}
		width := 0
		if _, err := fmt.Sscanf(args[4], "%d", &width); err != nil || width <= 0 {
			log.Fatalf("Width must be a positive integer")
		}
		if err := c.CommitPath(ctx, strings.ToUpper(args[1]), args[2], args[3], width); err != nil {
			log.Fatalf("Draw failed: %v", err)
		}

	case "image":
		if len(args) != 3 {
			usage()
		}
		f, err := os.Open(args[2])
		if err != nil {
			log.Fatalf("Open %s: %v", args[2], err)
		}
		defer f.Close()
		if err := c.CommitImage(ctx, strings.ToUpper(args[1]), f, filepath.Base(args[2])); err != nil {
			log.Fatalf("Image failed: %v", err)
		}

	case "clear":
		if len(args) != 2 {
			usage()
		}
		fmt.Print("This erases the whole board for every member. Type yes to continue: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			fmt.Println("Aborted")
			return
		}
		if err := c.ClearBoard(ctx, strings.ToUpper(args[1])); err != nil {
			log.Fatalf("Clear failed: %v", err)
		}

	case "signout":
		if err := c.SignOut(); err != nil {
			log.Fatalf("Sign-out failed: %v", err)
		}

	default:
		usage()
	}
}

func watch(ctx context.Context, c *client.Client, code string) {
	sub, err := c.Subscribe(ctx, code, func(snap *board.Snapshot) {
		line, err := json.Marshal(map[string]any{
			"room":    snap.Code,
			"members": len(snap.Members),
			"paths":   len(snap.Paths),
			"images":  len(snap.Images),
		})
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})
	if err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		sub.Cancel()
	case <-sub.Done():
		log.Println("Subscription closed by server")
	}
}

func openFlags() (*localstore.Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".duoboard")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return localstore.Open(filepath.Join(dir, "flags.db"))
}
