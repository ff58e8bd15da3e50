package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// saveCmd asks a running server to write a snapshot now.
func saveCmd(args []string) {
	fs := flag.NewFlagSet("snapshot save", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	postAndPrint(*baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
}

const worldUsage = "usage: admin world fill|load|unload [flags]"

// worldCmd edits the world of a running server.
func worldCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, worldUsage)
		os.Exit(2)
	}
	fs := flag.NewFlagSet("world "+args[0], flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")

	var (
		path string
		body func() any
	)
	switch args[0] {
	case "fill":
		aabb := fs.String("aabb", "", "box x1,y1,z1:x2,y2,z2 (required)")
		block := fs.String("block", "", "block id, e.g. FENCE (required)")
		path = "/admin/v1/fill"
		body = func() any {
			min, max, err := parseAABB(*aabb)
			if err != nil || strings.TrimSpace(*block) == "" {
				fmt.Fprintln(os.Stderr, "need -aabb x1,y1,z1:x2,y2,z2 and -block")
				os.Exit(2)
			}
			return map[string]any{"min": min, "max": max, "block": *block}
		}
	case "load":
		x := fs.Int("x", 0, "center x")
		z := fs.Int("z", 0, "center z")
		radius := fs.Int("radius", 16, "radius in blocks")
		path = "/admin/v1/chunks/load"
		body = func() any { return map[string]int{"x": *x, "z": *z, "radius": *radius} }
	case "unload":
		cx := fs.Int("cx", 0, "chunk x")
		cz := fs.Int("cz", 0, "chunk z")
		path = "/admin/v1/chunks/unload"
		body = func() any { return map[string]int{"cx": *cx, "cz": *cz} }
	default:
		fmt.Fprintln(os.Stderr, worldUsage)
		os.Exit(2)
	}
	_ = fs.Parse(args[1:])
	postAndPrint(*baseURL, path, body(), 10*time.Second)
}

func postAndPrint(baseURL, path string, body any, timeout time.Duration) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		rd = bytes.NewReader(b)
	}
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, _ := http.NewRequest(http.MethodPost, u, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
