// Command simclient drives one proctored session against a running proctord,
// playing the part of the exam client.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const aiAnswer = "As an AI language model, I would explain that photosynthesis converts light " +
	"energy into chemical energy stored in glucose, using carbon dioxide and water " +
	"while releasing oxygen as a by-product."

type wsMessage struct {
	Type     string `json:"type"`
	Hidden   bool   `json:"hidden,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	ResultID string `json:"resultId,omitempty"`
}

func main() {
	httpAddr := flag.String("http", "http://localhost:8080", "proctord HTTP base URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "proctord gRPC address for the health check")
	participant := flag.String("participant", "candidate-"+time.Now().Format("150405"), "Participant ID")
	duration := flag.Int("duration", 120, "Session duration in seconds")
	tabSwitches := flag.Int("tab-switches", 3, "Number of times the exam tab is hidden")
	frames := flag.Int("frames", 5, "Number of camera frames to push")
	useAI := flag.Bool("ai-answer", true, "Answer the essay question with AI-sounding text")
	flag.Parse()

	checkHealth(*grpcAddr)

	client := &http.Client{Timeout: 60 * time.Second}
	base := *httpAddr + "/v1/sessions"

	var status struct {
		SessionID string `json:"sessionId"`
		State     string `json:"state"`
	}
	mustDo(client, http.MethodPost, base, map[string]any{
		"participantId":   *participant,
		"durationSeconds": *duration,
		"questions": []map[string]string{
			{"id": "q1", "text": "State Newton's first law."},
			{"id": "q2", "text": "Explain photosynthesis."},
		},
	}, http.StatusCreated, &status)
	log.Printf("Session created: sessionId=%s state=%s", status.SessionID, status.State)
	session := base + "/" + status.SessionID

	var grant struct {
		VideoGranted bool `json:"videoGranted"`
		AudioGranted bool `json:"audioGranted"`
	}
	mustDo(client, http.MethodPost, session+"/consent", nil, http.StatusOK, &grant)
	log.Printf("Consent granted: video=%v audio=%v", grant.VideoGranted, grant.AudioGranted)

	wsURL, err := url.Parse(session + "/ws")
	if err != nil {
		log.Fatalf("Invalid URL: %v", err)
	}
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		log.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	completed := make(chan wsMessage, 1)
	go func() {
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(completed)
				return
			}
			switch msg.Type {
			case "completed":
				completed <- msg
				return
			case "error":
				log.Printf("Server rejected message: %s", msg.Error)
			}
		}
	}()

	for i := 0; i < *frames; i++ {
		frame := bytes.Repeat([]byte{byte(i)}, 1024)
		if err := conn.WriteJSON(wsMessage{Type: "frame", Data: frame}); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}
		time.Sleep(300 * time.Millisecond)
	}
	for i := 0; i < *tabSwitches; i++ {
		log.Printf("Hiding exam tab (%d/%d)", i+1, *tabSwitches)
		if err := conn.WriteJSON(wsMessage{Type: "visibility", Hidden: true}); err != nil {
			log.Fatalf("Failed to send visibility: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
		if err := conn.WriteJSON(wsMessage{Type: "visibility", Hidden: false}); err != nil {
			log.Fatalf("Failed to send visibility: %v", err)
		}
	}

	mustDo(client, http.MethodPut, session+"/answers/q1",
		map[string]string{"answer": "A body remains at rest or in uniform motion unless acted on by a force."},
		http.StatusNoContent, nil)
	essay := "Plants turn sunlight, water and carbon dioxide into sugar and oxygen."
	if *useAI {
		essay = aiAnswer
	}
	mustDo(client, http.MethodPut, session+"/answers/q2", map[string]string{"answer": essay}, http.StatusNoContent, nil)
	log.Println("Answers saved")

	// Give the content checks a moment before submitting.
	time.Sleep(time.Second)

	var result json.RawMessage
	mustDo(client, http.MethodPost, session+"/submit", nil, http.StatusOK, &result)

	select {
	case msg, ok := <-completed:
		if ok {
			log.Printf("Server reported completion: resultId=%s", msg.ResultID)
		}
	case <-time.After(5 * time.Second):
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		log.Fatalf("Invalid result JSON: %v", err)
	}
	fmt.Println(pretty.String())
}

func checkHealth(addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}
	log.Printf("Connected to server: health=%s", resp.GetStatus())
}

func mustDo(client *http.Client, method, target string, body any, want int, out any) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("encode request: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, rdr)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		log.Fatalf("%s %s: status %d, want %d: %s", method, target, resp.StatusCode, want, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode response: %v", err)
		}
	}
}
