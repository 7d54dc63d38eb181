package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/akudrin/lobbywire/internal/proto"
)

const heartbeatInterval = 20 * time.Second

// serverMsg is the union of all fields the server may send; Type decides
// which ones are meaningful.
type serverMsg struct {
	Type     string           `json:"type"`
	Username string           `json:"username"`
	Reason   string           `json:"reason"`
	Message  string           `json:"message"`
	From     string           `json:"from"`
	Name     string           `json:"name"`
	RoomID   int              `json:"room_id"`
	Rooms    []proto.RoomInfo `json:"rooms"`
	Peers    []proto.PeerInfo `json:"peers"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("lobby client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:12000", "lobby server address")
	user := flag.String("user", "", "username to log in with")
	flag.Parse()

	if *user == "" {
		return fmt.Errorf("-user is required")
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v any) error {
		frame, err := proto.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err = conn.Write(frame)
		return err
	}

	if err := send(proto.Inbound{Type: proto.TypeLogin, Username: *user}); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(conn)
	}()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := send(proto.Inbound{Type: proto.TypeHeartbeat}); err != nil {
				return
			}
		}
	}()

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Commands: /list, /create <name> [max], /join <id>, /leave, /quit. Anything else is chat.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-done:
			return fmt.Errorf("server closed the connection")
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, quit := parseLine(line)
		if quit {
			return nil
		}
		if msg == nil {
			continue
		}
		if err := send(*msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	return scanner.Err()
}

func parseLine(line string) (*proto.Inbound, bool) {
	if !strings.HasPrefix(line, "/") {
		return &proto.Inbound{Type: proto.TypeChat, Message: line}, false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return nil, true
	case "/list":
		return &proto.Inbound{Type: proto.TypeRoomList}, false
	case "/leave":
		return &proto.Inbound{Type: proto.TypeRoomLeave}, false
	case "/create":
		msg := proto.Inbound{Type: proto.TypeRoomCreate}
		if len(fields) > 1 {
			msg.Name = fields[1]
		}
		if len(fields) > 2 {
			if max, err := strconv.Atoi(fields[2]); err == nil {
				msg.MaxPlayers = &max
			}
		}
		return &msg, false
	case "/join":
		if len(fields) < 2 {
			fmt.Println("usage: /join <room id>")
			return nil, false
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("usage: /join <room id>")
			return nil, false
		}
		return &proto.Inbound{Type: proto.TypeRoomJoin, RoomID: &id}, false
	default:
		fmt.Printf("unknown command %s\n", fields[0])
		return nil, false
	}
}

func readLoop(conn net.Conn) {
	buf := proto.NewBuffer(0)
	chunk := make([]byte, 4096)

	for {
		space := buf.Free()
		if space == 0 {
			log.Printf("receive: %v", proto.ErrBufferOverflow)
			return
		}
		if space > len(chunk) {
			space = len(chunk)
		}

		n, err := conn.Read(chunk[:space])
		if n > 0 {
			if werr := buf.Write(chunk[:n]); werr != nil {
				log.Printf("receive: %v", werr)
				return
			}
			for {
				payload, derr := buf.Next()
				if derr != nil {
					log.Printf("receive: %v", derr)
					return
				}
				if payload == nil {
					break
				}
				printMessage(payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func printMessage(payload []byte) {
	var msg serverMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("bad message from server: %v", err)
		return
	}

	switch msg.Type {
	case proto.TypeLoginOK:
		fmt.Printf("* logged in as %s\n", msg.Username)
	case proto.TypeLoginFail:
		fmt.Printf("* login failed: %s\n", msg.Reason)
	case proto.TypeRoomListRes:
		if len(msg.Rooms) == 0 {
			fmt.Println("* no rooms")
			return
		}
		for _, r := range msg.Rooms {
			fmt.Printf("* room %d %q %d/%d\n", r.ID, r.Name, r.Players, r.Max)
		}
	case proto.TypeRoomCreated:
		fmt.Printf("* created room %d %q\n", msg.RoomID, msg.Name)
	case proto.TypeRoomJoined:
		fmt.Printf("* joined room %d %q\n", msg.RoomID, msg.Name)
	case proto.TypeRoomLeft:
		fmt.Println("* left the room")
	case proto.TypeRoomPeers:
		names := make([]string, 0, len(msg.Peers))
		for _, p := range msg.Peers {
			names = append(names, p.Username)
		}
		fmt.Printf("* in room: %s\n", strings.Join(names, ", "))
	case proto.TypePlayerJoined:
		fmt.Printf("* %s joined\n", msg.Username)
	case proto.TypePlayerLeft:
		fmt.Printf("* %s left\n", msg.Username)
	case proto.TypeChatMsg:
		fmt.Printf("<%s> %s\n", msg.From, msg.Message)
	case proto.TypeError:
		fmt.Printf("* error: %s\n", msg.Message)
	case proto.TypeHeartbeatAck:
		// Keep the console quiet.
	default:
		fmt.Printf("* %s\n", string(payload))
	}
}
