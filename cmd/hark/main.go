// hark is the command-line client for harkd. It sends one request over
// the daemon socket, prints the response, and can optionally stay
// attached to stream events.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"hark/internal/config"
	"hark/internal/protocol"
)

func main() {
	socketPath := flag.String("socket", defaultSocketPath(), "path to daemon socket")
	params := flag.String("params", "", "request params as a JSON object")
	follow := flag.Bool("follow", false, "subscribe and stream events after the response")
	timeout := flag.Duration("timeout", 10*time.Second, "response wait timeout")
	flag.Parse()

	method := flag.Arg(0)
	if method == "" {
		fmt.Fprintln(os.Stderr, "usage: hark [flags] <method>")
		fmt.Fprintln(os.Stderr, "example: hark -params '{\"max_duration\": 30}' record.start")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*socketPath, method, *params, *follow, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "hark: %v\n", err)
		os.Exit(1)
	}
}

func defaultSocketPath() string {
	if v := os.Getenv(config.EnvPrefix + "SOCKET_PATH"); v != "" {
		return v
	}
	return "data/hark.sock"
}

func run(socketPath, method, params string, follow bool, timeout time.Duration) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dial %s (is harkd running?): %w", socketPath, err)
	}
	defer conn.Close()

	var rawParams json.RawMessage
	if strings.TrimSpace(params) != "" {
		if !json.Valid([]byte(params)) {
			return fmt.Errorf("params is not valid JSON: %s", params)
		}
		rawParams = json.RawMessage(params)
	}

	reqID := uuid.NewString()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	if follow {
		if err := send(conn, protocol.Request{ID: uuid.NewString(), Method: "events.subscribe"}); err != nil {
			return err
		}
		if _, err := awaitResponse(conn, scanner, timeout); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	if err := send(conn, protocol.Request{ID: reqID, Method: method, Params: rawParams}); err != nil {
		return err
	}

	resp, err := awaitResponse(conn, scanner, timeout)
	if err != nil {
		return err
	}
	printFrame(resp)

	var respEnv protocol.Response
	if json.Unmarshal(resp, &respEnv) == nil && respEnv.Status == protocol.StatusError {
		return fmt.Errorf("%s", respEnv.Error.Error())
	}

	if !follow {
		return nil
	}
	for scanner.Scan() {
		printFrame(scanner.Bytes())
	}
	return scanner.Err()
}

func send(conn net.Conn, req protocol.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// awaitResponse reads frames until a response arrives, printing any
// events that interleave with it.
func awaitResponse(conn net.Conn, scanner *bufio.Scanner, timeout time.Duration) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for scanner.Scan() {
		line := scanner.Bytes()
		var probe struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(line, &probe) == nil && probe.Event != "" {
			printFrame(line)
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return nil, fmt.Errorf("connection closed before response")
}

func printFrame(line []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, line, "", "  "); err != nil {
		fmt.Println(string(line))
		return
	}
	fmt.Println(buf.String())
}
