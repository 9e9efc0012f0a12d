// ws_bridge exposes a stdio agent over a WebSocket. Each connection starts a
// fresh agent subprocess (typically `hearth -acp`), forwards incoming
// WebSocket messages to its stdin line by line, and streams its stdout and
// stderr back as JSON-framed messages.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bridgeMessage is one line of subprocess output, framed for the client.
type bridgeMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "Address to listen on")
	flag.Parse()

	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		cmdArgs = []string{"hearth", "-acp"}
	}

	http.HandleFunc("/ws", handleWS(cmdArgs))

	fmt.Printf("WebSocket bridge running on ws://localhost%s/ws (agent: %v)\n", *addr, cmdArgs)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer cmd.Wait()

		// The connection allows only one concurrent writer, and stdout and
		// stderr are forwarded from separate goroutines.
		var writeMu sync.Mutex
		writeFrame := func(payload []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		forward := func(kind string, src *bufio.Scanner) {
			for src.Scan() {
				payload, err := json.Marshal(bridgeMessage{Type: kind, Data: src.Text()})
				if err != nil {
					log.Println("Marshal error:", err)
					return
				}
				if err := writeFrame(payload); err != nil {
					log.Println("WS write error:", err)
					return
				}
			}
		}

		go forward("stdout", bufio.NewScanner(stdout))
		go forward("stderr", bufio.NewScanner(stderr))

		// WebSocket messages → agent stdin, one line each.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}
