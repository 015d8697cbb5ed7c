// Package main provides the room CLI client for testing.
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("waveroom-roomcli", "waveroom room client for testing")
	server = app.Flag("server", "Server address").Default("ws://localhost:8080").String()
	room   = app.Flag("room", "Room name").Default("test").String()
	user   = app.Flag("user", "User id").String()

	// watch command
	watchCmd = app.Command("watch", "Join the room and print every event")

	// play command
	playCmd      = app.Command("play", "Start playback")
	playPosition = playCmd.Arg("position", "Playback position in seconds").Default("0").Float64()
	playURL      = playCmd.Flag("url", "Song URL").String()
	playName     = playCmd.Flag("name", "Song name").String()
	playArtist   = playCmd.Flag("artist", "Artist name").String()

	// pause command
	pauseCmd      = app.Command("pause", "Pause playback")
	pausePosition = pauseCmd.Arg("position", "Playback position in seconds").Required().Float64()

	// resume command
	resumeCmd      = app.Command("resume", "Resume playback")
	resumePosition = resumeCmd.Arg("position", "Playback position in seconds").Required().Float64()

	// seek command
	seekCmd      = app.Command("seek", "Seek to a position")
	seekPosition = seekCmd.Arg("position", "Playback position in seconds").Required().Float64()

	// change command
	changeCmd      = app.Command("change", "Change the song")
	changeURL      = changeCmd.Arg("url", "Song URL").Required().String()
	changeName     = changeCmd.Flag("name", "Song name").String()
	changeArtist   = changeCmd.Flag("artist", "Artist name").String()
	changeAutoPlay = changeCmd.Flag("auto-play", "Start playing immediately").Bool()

	// sync command
	syncCmd = app.Command("sync", "Request the current room state")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	conn := dial()
	defer conn.Close()

	switch command {
	case watchCmd.FullCommand():
		watch(conn)
	case playCmd.FullCommand():
		msg := map[string]any{"type": "play", "position": *playPosition}
		if *playURL != "" {
			msg["song_url"] = *playURL
			msg["song_name"] = *playName
			msg["artist_name"] = *playArtist
		}
		sendAndReport(conn, msg)
	case pauseCmd.FullCommand():
		sendAndReport(conn, map[string]any{"type": "pause", "position": *pausePosition})
	case resumeCmd.FullCommand():
		sendAndReport(conn, map[string]any{"type": "resume", "position": *resumePosition})
	case seekCmd.FullCommand():
		sendAndReport(conn, map[string]any{"type": "seek", "position": *seekPosition})
	case changeCmd.FullCommand():
		sendAndReport(conn, map[string]any{
			"type":        "song_change",
			"song_url":    *changeURL,
			"song_name":   *changeName,
			"artist_name": *changeArtist,
			"auto_play":   *changeAutoPlay,
		})
	case syncCmd.FullCommand():
		sendAndReport(conn, map[string]any{"type": "sync_request"})
	}
}

func dial() *websocket.Conn {
	u, err := url.Parse(*server)
	if err != nil {
		fmt.Printf("Error: invalid server address: %v\n", err)
		os.Exit(1)
	}
	u.Path = "/ws/music/" + *room
	if *user != "" {
		u.RawQuery = url.Values{"user_id": {*user}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			fmt.Printf("Error: dial failed (%s): %v\n", resp.Status, err)
		} else {
			fmt.Printf("Error: dial failed: %v\n", err)
		}
		os.Exit(1)
	}
	return conn
}

// watch prints every event until interrupted.
func watch(conn *websocket.Conn) {
	fmt.Printf("Watching room %q. Press Ctrl+C to exit.\n", *room)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nLeaving...")
		conn.WriteJSON(map[string]any{"type": "leaveroom"})
		conn.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Connection closed: %v\n", err)
			return
		}
		printEvent(data)
	}
}

// sendAndReport issues one command and prints the replies that arrive
// within a short window (the join snapshot, the control echo, or an
// error from the server).
func sendAndReport(conn *websocket.Conn, msg map[string]any) {
	if err := conn.WriteJSON(msg); err != nil {
		fmt.Printf("Error: send failed: %v\n", err)
		os.Exit(1)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		printEvent(data)
	}
}

func printEvent(data []byte) {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		fmt.Printf("?? %s\n", data)
		return
	}

	typ, _ := event["type"].(string)
	switch typ {
	case "room_joined":
		fmt.Printf("=== JOINED (host: %v) ===\n", event["is_host"])
		fmt.Printf("  Participants: %v\n", event["participants"])
		if state, ok := event["room_state"].(map[string]any); ok {
			fmt.Printf("  Playing: %v at %.1fs\n", state["is_playing"], num(state["current_position"]))
		}
	case "music_control":
		fmt.Printf("[control] %v position=%.1f\n", event["action"], num(event["position"]))
	case "time_sync":
		fmt.Printf("[sync] position=%.1f playing=%v\n", num(event["current_position"]), event["is_playing"])
	case "sync_response":
		fmt.Printf("[state] position=%.1f playing=%v song=%v\n",
			num(event["current_position"]), event["is_playing"], event["song_data"])
	case "user_joined":
		fmt.Printf("[+] %v joined, participants: %v\n", event["user_id"], event["participants"])
	case "user_left":
		fmt.Printf("[-] %v left, participants: %v\n", event["user_id"], event["participants"])
	case "host_changed":
		fmt.Printf("[host] new host: %v\n", event["new_host"])
	case "error":
		fmt.Printf("Error from server: %v\n", event["message"])
	default:
		fmt.Printf("[%s] %s\n", typ, data)
	}
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}
