package obs

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

type recordedRequest struct {
	Type string
	Data json.RawMessage
}

type fakeResult struct {
	status requestStatus
	data   any
}

// fakeOBS is a minimal OBS WebSocket v5 server for tests.
type fakeOBS struct {
	t        *testing.T
	srv      *httptest.Server
	password string
	salt     string
	chal     string

	mu       sync.Mutex
	requests []recordedRequest
	results  map[string]fakeResult
	conns    []*websocket.Conn
	writeMu  map[*websocket.Conn]*sync.Mutex
}

func newFakeOBS(t *testing.T, password string) *fakeOBS {
	t.Helper()
	f := &fakeOBS{
		t:        t,
		password: password,
		salt:     "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=",
		chal:     "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=",
		results:  make(map[string]fakeResult),
		writeMu:  make(map[*websocket.Conn]*sync.Mutex),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOBS) endpoint() Endpoint {
	host, portStr, _ := net.SplitHostPort(f.srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return Endpoint{Host: host, Port: port, Password: f.password}
}

// respond sets the outcome of every later request of the given type.
func (f *fakeOBS) respond(requestType string, ok bool, code int, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[requestType] = fakeResult{status: requestStatus{Result: ok, Code: code}, data: data}
}

func (f *fakeOBS) requestTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Type
	}
	return out
}

func (f *fakeOBS) lastRequest(requestType string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Type == requestType {
			return f.requests[i].Data, true
		}
	}
	return nil, false
}

// emit pushes an event to every identified connection.
func (f *fakeOBS) emit(eventType string, data any) {
	raw, _ := json.Marshal(data)
	msg, _ := encode(opEvent, event{EventType: eventType, EventIntent: eventSubOutputs, EventData: raw})
	f.mu.Lock()
	conns := append([]*websocket.Conn(nil), f.conns...)
	f.mu.Unlock()
	for _, c := range conns {
		f.write(c, msg)
	}
}

func (f *fakeOBS) write(c *websocket.Conn, msg message) {
	f.mu.Lock()
	mu := f.writeMu[c]
	f.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()
	_ = c.WriteJSON(msg)
}

func (f *fakeOBS) serve(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h := hello{OBSWebSocketVersion: "5.5.0", RPCVersion: rpcVersion}
	if f.password != "" {
		h.Authentication = &authChallenge{Challenge: f.chal, Salt: f.salt}
	}
	msg, _ := encode(opHello, h)
	if err := conn.WriteJSON(msg); err != nil {
		return
	}

	var in message
	if err := conn.ReadJSON(&in); err != nil || in.Op != opIdentify {
		return
	}
	var id identify
	_ = json.Unmarshal(in.D, &id)
	if f.password != "" && id.Authentication != authResponse(f.password, f.salt, f.chal) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(4009, "Authentication failed."))
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.writeMu[conn] = &sync.Mutex{}
	f.mu.Unlock()

	out, _ := encode(opIdentified, identified{NegotiatedRPCVersion: rpcVersion})
	f.write(conn, out)

	for {
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Op != opRequest {
			continue
		}
		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		_ = json.Unmarshal(in.D, &req)

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Type: req.RequestType, Data: req.RequestData})
		res, ok := f.results[req.RequestType]
		f.mu.Unlock()
		if !ok {
			res = fakeResult{status: requestStatus{Result: true, Code: 100}}
		}

		resp := requestResponse{
			RequestType:   req.RequestType,
			RequestID:     req.RequestID,
			RequestStatus: res.status,
		}
		if res.data != nil {
			resp.ResponseData, _ = json.Marshal(res.data)
		}
		out, _ := encode(opRequestResponse, resp)
		f.write(conn, out)
	}
}
